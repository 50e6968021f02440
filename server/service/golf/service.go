// Package golf is the collaborator-facing facade over the golf data cache.
//
// It keeps an in-memory mirror of each collection's last accepted envelope so reads
// never block, drives collection refreshes through the sync pipeline, and delegates
// per-player history to the two-tier resolver.
package golf

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/fairway/server/service/freshness"
	"github.com/hrygo/fairway/server/service/history"
	"github.com/hrygo/fairway/server/service/syncer"
	"github.com/hrygo/fairway/store"
	"github.com/hrygo/fairway/store/cache"
)

// ErrUnknownCollection is returned for collection names other than players and courses.
var ErrUnknownCollection = errors.New("unknown collection")

// Config configures the service.
type Config struct {
	// RemoteBaseURL is the origin serving players.json, courses.json and rounds/<slug>.json.
	RemoteBaseURL string
	// EmbeddedRounds bounds GetEmbeddedHistory.
	EmbeddedRounds int
}

// mirror holds the decoded items of the envelope a collection slot last accepted.
type mirror[T store.Entity] struct {
	mu     sync.RWMutex
	loaded bool
	header store.Header
	items  []T
}

func (m *mirror[T]) get() ([]T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.items, m.loaded
}

func (m *mirror[T]) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = false
	m.header = store.Header{}
	m.items = nil
}

// reload decodes slot into the mirror. The mirror only moves forward: an envelope that is not
// newer than the one it holds is ignored, so a slow reload cannot undo a later one.
func (m *mirror[T]) reload(slot *cache.Slot, codec *store.Codec[T]) error {
	data, err := slot.Read()
	if err != nil {
		if errors.Is(err, cache.ErrSlotNotFound) {
			return nil
		}
		return err
	}
	envelope, err := codec.Decode(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded && !envelope.UpdatedAt.After(m.header.UpdatedAt) {
		return nil
	}
	m.loaded = true
	m.header = envelope.Header
	m.items = envelope.Items
	if dups := store.DuplicateSlugs(envelope.Items); len(dups) > 0 {
		slog.Warn("cached collection repeats slugs; lookups use the first entry",
			slog.String("resource", slot.Key()),
			slog.Any("slugs", dups),
		)
	}
	return nil
}

type service struct {
	store    *store.Store
	pipeline *syncer.Pipeline
	gate     *freshness.Gate
	history  *history.Loader
	baseURL  string

	players mirror[*store.Player]
	courses mirror[*store.Course]
}

// NewService creates the facade and warms the collection mirrors from the cache.
func NewService(st *store.Store, pipeline *syncer.Pipeline, gate *freshness.Gate, config *Config) (Service, error) {
	if st == nil || pipeline == nil || gate == nil {
		return nil, errors.New("store, pipeline and gate are required")
	}
	if config == nil {
		config = &Config{}
	}
	if config.RemoteBaseURL != "" {
		u, err := url.Parse(config.RemoteBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, errors.Errorf("invalid remote base URL %q", config.RemoteBaseURL)
		}
	}

	s := &service{
		store:    st,
		pipeline: pipeline,
		gate:     gate,
		history:  history.NewLoader(st, pipeline, gate, config.EmbeddedRounds),
		baseURL:  strings.TrimRight(config.RemoteBaseURL, "/"),
	}
	for _, name := range Collections {
		if err := s.reload(name); err != nil {
			slog.Warn("ignoring unreadable cached collection", slog.String("resource", name.Key()), slog.String("error", err.Error()))
		}
	}
	return s, nil
}

// CollectionLocation returns the remote location of a collection under baseURL.
func CollectionLocation(baseURL string, name Collection) (string, error) {
	if baseURL == "" {
		return "", errors.Errorf("no location for %s: remote base URL is not configured", name)
	}
	return url.JoinPath(baseURL, name.Key()+".json")
}

// RoundsLocation returns the remote location of a player's round set under baseURL.
func RoundsLocation(baseURL, slug string) (string, error) {
	if baseURL == "" {
		return "", errors.Errorf("no location for %s: remote base URL is not configured", slug)
	}
	return url.JoinPath(baseURL, "rounds", slug+".json")
}

func (s *service) reload(name Collection) error {
	slot, err := s.store.Slot(name.Key())
	if err != nil {
		return err
	}
	switch name {
	case Players:
		return s.players.reload(slot, store.PlayersCodec)
	case Courses:
		return s.courses.reload(slot, store.CoursesCodec)
	}
	return errors.Wrap(ErrUnknownCollection, string(name))
}

func (s *service) validator(name Collection) syncer.Validator {
	if name == Players {
		return store.PlayersCodec
	}
	return store.CoursesCodec
}

func (s *service) GetCachedCollection(name Collection) ([]store.Entity, error) {
	items, _, err := s.LookupCollection(name)
	return items, err
}

func (s *service) LookupCollection(name Collection) ([]store.Entity, bool, error) {
	switch name {
	case Players:
		items, ok := s.players.get()
		return entities(items), ok, nil
	case Courses:
		items, ok := s.courses.get()
		return entities(items), ok, nil
	}
	return []store.Entity{}, false, errors.Wrap(ErrUnknownCollection, string(name))
}

func entities[T store.Entity](items []T) []store.Entity {
	list := make([]store.Entity, 0, len(items))
	for _, item := range items {
		list = append(list, item)
	}
	return list
}

func (s *service) CachedPlayers() ([]*store.Player, bool) {
	return s.players.get()
}

func (s *service) CachedCourses() ([]*store.Course, bool) {
	return s.courses.get()
}

func (s *service) FindPlayer(slug string) (*store.Player, bool) {
	players, _ := s.players.get()
	for _, p := range players {
		if p.Slug == slug {
			return p, true
		}
	}
	return nil, false
}

func (s *service) RefreshCollection(ctx context.Context, name Collection, location string) (*syncer.Result, error) {
	if !name.Valid() {
		return nil, errors.Wrap(ErrUnknownCollection, string(name))
	}
	if location == "" {
		var err error
		if location, err = CollectionLocation(s.baseURL, name); err != nil {
			return nil, err
		}
	}
	slot, err := s.store.Slot(name.Key())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open slot for %s", name)
	}

	result := s.pipeline.Run(ctx, &syncer.Request{
		Kind:      name.Key(),
		Location:  location,
		Slot:      slot,
		Validator: s.validator(name),
	})
	if result.HasData() {
		if err := s.reload(name); err != nil {
			slog.Warn("failed to reload cached collection", slog.String("resource", name.Key()), slog.String("error", err.Error()))
		}
	}
	return result, nil
}

func (s *service) RefreshAll(ctx context.Context) (map[Collection]*syncer.Result, error) {
	var mu sync.Mutex
	results := make(map[Collection]*syncer.Result, len(Collections))

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range Collections {
		g.Go(func() error {
			result, err := s.RefreshCollection(gctx, name, "")
			if err != nil {
				return err
			}
			mu.Lock()
			results[name] = result
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (s *service) GetEmbeddedHistory(player *store.Player) []*store.Round {
	return s.history.Embedded(player)
}

func (s *service) PlayerHistory(slug string) (history.State, []*store.Round) {
	player, _ := s.FindPlayer(slug)
	return s.history.View(slug, player)
}

func (s *service) LoadFullHistory(ctx context.Context, slug, location string) (*syncer.Result, error) {
	if location == "" {
		var err error
		if location, err = RoundsLocation(s.baseURL, slug); err != nil {
			return nil, err
		}
	}
	return s.history.Load(ctx, slug, location)
}

func (s *service) ClearAllCaches(ctx context.Context) error {
	if err := s.store.ClearAll(ctx); err != nil {
		return err
	}
	s.players.reset()
	s.courses.reset()
	s.history.Reset()
	slog.Info("cleared all caches")
	return nil
}
