package store

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/fairway/internal/profile"
	"github.com/hrygo/fairway/store/cache"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store owns every cache slot and freshness record of the process.
// Collaborators receive it by reference; nothing else writes the slots or the records.
type Store struct {
	profile *profile.Profile
	driver  Driver
	slots   *cache.Dir
}

// New creates a new instance of Store with slots rooted at the profile's cache directory.
func New(driver Driver, profile *profile.Profile) (*Store, error) {
	if driver == nil {
		return nil, errors.New("driver is nil")
	}
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	slots, err := cache.OpenDir(profile.CacheDir())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open cache directory")
	}

	return &Store{
		profile: profile,
		driver:  driver,
		slots:   slots,
	}, nil
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// Slot returns the cache slot for a resource key.
func (s *Store) Slot(key string) (*cache.Slot, error) {
	return s.slots.Slot(key)
}

// SlotKeys lists the keys of populated slots with the given prefix.
func (s *Store) SlotKeys(prefix string) ([]string, error) {
	return s.slots.Keys(prefix)
}

func (s *Store) UpsertFreshnessRecord(ctx context.Context, upsert *FreshnessRecord) (*FreshnessRecord, error) {
	if upsert.UpdatedTs == 0 {
		upsert.UpdatedTs = time.Now().Unix()
	}
	return s.driver.UpsertFreshnessRecord(ctx, upsert)
}

func (s *Store) ListFreshnessRecords(ctx context.Context, find *FindFreshnessRecord) ([]*FreshnessRecord, error) {
	return s.driver.ListFreshnessRecords(ctx, find)
}

// GetFreshnessRecord returns the record for key, or ErrNotFound.
func (s *Store) GetFreshnessRecord(ctx context.Context, key string) (*FreshnessRecord, error) {
	list, err := s.driver.ListFreshnessRecords(ctx, &FindFreshnessRecord{Key: &key})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return list[0], nil
}

func (s *Store) DeleteFreshnessRecord(ctx context.Context, delete *DeleteFreshnessRecord) error {
	return s.driver.DeleteFreshnessRecord(ctx, delete)
}

// ClearAll deletes every cache slot and every freshness record.
func (s *Store) ClearAll(ctx context.Context) error {
	if err := s.slots.Clear(); err != nil {
		return errors.Wrap(err, "failed to clear cache slots")
	}
	if err := s.driver.DeleteFreshnessRecord(ctx, &DeleteFreshnessRecord{}); err != nil {
		return errors.Wrap(err, "failed to clear freshness records")
	}
	return nil
}
