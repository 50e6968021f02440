// Package cache provides durable cache slots: named on-disk locations that each hold one payload
// and are replaced atomically.
package cache

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
)

const (
	slotExt   = ".json"
	tempExt   = ".tmp"
	dirPerm   = 0o750
	slotPerm  = 0o640
	keySep    = "/"
	tempIntro = "."
)

// ErrSlotNotFound is returned by Read when the slot was never written or has been deleted.
var ErrSlotNotFound = errors.New("cache slot not found")

// ErrInvalidKey is returned for resource keys that cannot be mapped to a file name.
var ErrInvalidKey = errors.New("invalid cache key")

// renameFile is swapped in tests to simulate a crash between writing and publishing a slot.
var renameFile = os.Rename

// Slot is a single named durable location holding one serialized payload.
type Slot struct {
	key  string
	path string
}

// Key returns the resource key the slot was opened for.
func (s *Slot) Key() string {
	return s.key
}

// Path returns the file backing the slot.
func (s *Slot) Path() string {
	return s.path
}

// Read returns the last committed payload.
func (s *Slot) Read() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrSlotNotFound
		}
		return nil, errors.Wrapf(err, "failed to read cache slot %s", s.key)
	}
	return data, nil
}

// Exists reports whether the slot currently holds a payload.
func (s *Slot) Exists() bool {
	info, err := os.Stat(s.path)
	return err == nil && info.Mode().IsRegular()
}

// Write replaces the slot content. Readers observe either the previous payload or data, never a mix.
func (s *Slot) Write(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return errors.Wrapf(err, "failed to create cache directory %s", dir)
	}

	tmpPath := filepath.Join(dir, tempIntro+filepath.Base(s.path)+"."+shortuuid.New()+tempExt)
	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, slotPerm)
	if err != nil {
		return errors.Wrapf(err, "failed to create temp file for %s", s.key)
	}
	published := false
	defer func() {
		if !published {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "failed to write temp file for %s", s.key)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "failed to sync temp file for %s", s.key)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close temp file for %s", s.key)
	}
	if err := renameFile(tmpPath, s.path); err != nil {
		return errors.Wrapf(err, "failed to publish cache slot %s", s.key)
	}
	published = true

	if err := syncDir(dir); err != nil {
		// The slot is already published; only durability across power loss is weakened.
		slog.Warn("cache directory sync failed", slog.String("dir", dir), slog.String("error", err.Error()))
	}
	return nil
}

// Delete removes the slot. Deleting an empty slot is not an error.
func (s *Slot) Delete() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrapf(err, "failed to delete cache slot %s", s.key)
	}
	return nil
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// Dir maps resource keys to slots under one root directory.
// A key such as "rounds/tiger-woods" is stored at <root>/rounds/tiger-woods.json.
type Dir struct {
	root string

	mu    sync.Mutex
	slots map[string]*Slot
}

// OpenDir opens (creating if needed) a slot directory and removes temp files left by interrupted writes.
func OpenDir(root string) (*Dir, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("cache root is required")
	}
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, errors.Wrapf(err, "failed to create cache root %s", root)
	}

	d := &Dir{
		root:  root,
		slots: make(map[string]*Slot),
	}
	if err := d.removeTemps(); err != nil {
		return nil, err
	}
	return d, nil
}

// Root returns the directory holding the slots.
func (d *Dir) Root() string {
	return d.root
}

// Slot returns the slot for key. Repeated calls return the same *Slot.
func (d *Dir) Slot(key string) (*Slot, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if slot, ok := d.slots[key]; ok {
		return slot, nil
	}
	slot := &Slot{
		key:  key,
		path: filepath.Join(d.root, filepath.FromSlash(key)+slotExt),
	}
	d.slots[key] = slot
	return slot, nil
}

// Keys lists the keys of every slot currently holding a payload, optionally restricted to a prefix such as "rounds/".
func (d *Dir) Keys(prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), slotExt) || strings.HasPrefix(entry.Name(), tempIntro) {
			return nil
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		key := strings.TrimSuffix(filepath.ToSlash(rel), slotExt)
		if strings.HasPrefix(key, prefix) && validateKey(key) == nil {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list cache slots")
	}
	return keys, nil
}

// Clear deletes every slot under the root.
func (d *Dir) Clear() error {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return errors.Wrapf(err, "failed to read cache root %s", d.root)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(d.root, entry.Name())); err != nil {
			return errors.Wrapf(err, "failed to clear %s", entry.Name())
		}
	}
	return nil
}

func (d *Dir) removeTemps() error {
	return filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, tempIntro) && strings.HasSuffix(name, tempExt) {
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return errors.Wrapf(err, "failed to remove stale temp file %s", path)
			}
		}
		return nil
	})
}

func validateKey(key string) error {
	if key == "" {
		return errors.Wrap(ErrInvalidKey, "empty key")
	}
	for _, segment := range strings.Split(key, keySep) {
		if !validSegment(segment) {
			return errors.Wrapf(ErrInvalidKey, "%q", key)
		}
	}
	return nil
}

func validSegment(s string) bool {
	if s == "" || s[0] == '.' || s[0] == '-' {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return !strings.Contains(s, "..")
}
