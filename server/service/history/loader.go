// Package history resolves a player's round history in two tiers: the embedded recent subset
// shipped with the player summary, upgraded on request to the full per-player round set.
package history

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pkg/errors"

	syncerrors "github.com/hrygo/fairway/server/internal/errors"
	"github.com/hrygo/fairway/server/service/freshness"
	"github.com/hrygo/fairway/server/service/syncer"
	"github.com/hrygo/fairway/store"
)

// KeyPrefix prefixes every per-player round set resource key.
const KeyPrefix = "rounds/"

// DefaultEmbeddedLimit bounds the embedded subset when no limit is configured.
const DefaultEmbeddedLimit = 10

// State is the resolver state of one entity.
type State int

const (
	// Embedded serves the recent subset shipped inside the summary record.
	Embedded State = iota
	// FullyLoaded serves the full round set for the rest of the session.
	FullyLoaded
)

func (s State) String() string {
	if s == FullyLoaded {
		return "fully_loaded"
	}
	return "embedded"
}

// MarshalText renders the state in API output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Key returns the resource key of a player's round set.
func Key(slug string) string {
	return KeyPrefix + slug
}

type entity struct {
	// load admits one Load at a time; it is a channel so waiters can give up.
	load chan struct{}

	mu      sync.RWMutex
	state   State
	rounds  []*store.Round
	settled *syncer.Result
}

// Loader is the two-tier history resolver. One Loader spans one session.
type Loader struct {
	store    *store.Store
	pipeline *syncer.Pipeline
	gate     *freshness.Gate
	limit    int

	mu       sync.Mutex
	entities map[string]*entity
}

// NewLoader creates a resolver. embeddedLimit bounds Embedded; zero or less means DefaultEmbeddedLimit.
func NewLoader(st *store.Store, pipeline *syncer.Pipeline, gate *freshness.Gate, embeddedLimit int) *Loader {
	if embeddedLimit <= 0 {
		embeddedLimit = DefaultEmbeddedLimit
	}
	return &Loader{
		store:    st,
		pipeline: pipeline,
		gate:     gate,
		limit:    embeddedLimit,
		entities: make(map[string]*entity),
	}
}

func (l *Loader) entity(slug string) *entity {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entities[slug]
	if !ok {
		e = &entity{load: make(chan struct{}, 1)}
		l.entities[slug] = e
	}
	return e
}

// Embedded returns the player's embedded rounds, most recent first, bounded by the embedded limit.
// It never touches the network.
func (l *Loader) Embedded(player *store.Player) []*store.Round {
	if player == nil {
		return []*store.Round{}
	}
	return store.RecentRounds(player.RecentRounds, l.limit)
}

// State returns the resolver state for slug.
func (l *Loader) State(slug string) State {
	l.mu.Lock()
	e, ok := l.entities[slug]
	l.mu.Unlock()
	if !ok {
		return Embedded
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// View returns what the resolver serves for slug: the full round set once loaded,
// otherwise the embedded subset of player.
func (l *Loader) View(slug string, player *store.Player) (State, []*store.Round) {
	l.mu.Lock()
	e, ok := l.entities[slug]
	l.mu.Unlock()
	if ok {
		e.mu.RLock()
		defer e.mu.RUnlock()
		if e.state == FullyLoaded {
			return FullyLoaded, e.rounds
		}
	}
	return Embedded, l.Embedded(player)
}

// Load upgrades slug to FullyLoaded.
//
// The freshness gate is consulted first; when it denies and a decodable cached round set exists, no network
// call happens. The entity becomes FullyLoaded whenever a round set is available afterwards, fresh or
// cached. An Unavailable or canceled result leaves the entity Embedded so a later Load can retry.
// Once FullyLoaded, Load returns the settled result without any I/O.
func (l *Loader) Load(ctx context.Context, slug, location string) (*syncer.Result, error) {
	if !store.ValidSlug(slug) {
		return nil, errors.Errorf("invalid player slug %q", slug)
	}
	e := l.entity(slug)

	select {
	case e.load <- struct{}{}:
	case <-ctx.Done():
		return &syncer.Result{Outcome: syncer.Unavailable, Err: syncerrors.Canceled(ctx.Err())}, nil
	}
	defer func() { <-e.load }()

	e.mu.RLock()
	if e.state == FullyLoaded {
		settled := e.settled
		e.mu.RUnlock()
		return settled, nil
	}
	e.mu.RUnlock()

	key := Key(slug)
	slot, err := l.store.Slot(key)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open slot for %s", slug)
	}
	validator := &roundSetValidator{slug: slug}

	// A cached round set that no longer decodes counts as missing, so the gate cannot keep it.
	var cached *store.Header
	refresh := l.gate.ShouldRefresh(ctx, key)
	if !refresh {
		cached, err = syncer.Current(slot, validator)
		if err != nil {
			slog.Warn("failed to read cached round set", slog.String("resource", key), slog.String("error", err.Error()))
		}
		refresh = cached == nil
	}

	var result *syncer.Result
	if refresh {
		result = l.pipeline.Run(ctx, &syncer.Request{Kind: "rounds", Location: location, Slot: slot, Validator: validator})
		if result.Fetched {
			if err := l.gate.MarkRefreshed(ctx, key); err != nil {
				slog.Warn("failed to persist freshness marker", slog.String("resource", key), slog.String("error", err.Error()))
			}
		}
	} else {
		result = &syncer.Result{Outcome: syncer.StaleOK, Header: cached}
	}

	if !result.HasData() || syncerrors.IsCode(result.Err, syncerrors.ErrCodeCanceled) {
		return result, nil
	}

	data, err := slot.Read()
	if err != nil {
		return &syncer.Result{Outcome: syncer.Unavailable, Err: syncerrors.IO("read "+key, err)}, nil
	}
	envelope, err := store.RoundsCodec.Decode(data)
	if err != nil {
		return &syncer.Result{Outcome: syncer.Unavailable, Err: syncerrors.Decode("decode cached "+key, err)}, nil
	}

	e.mu.Lock()
	e.state = FullyLoaded
	e.rounds = store.RecentRounds(envelope.Items, 0)
	e.settled = result
	e.mu.Unlock()
	return result, nil
}

// Reset returns every entity to Embedded, as at the start of a session.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entities = make(map[string]*entity)
}

// roundSetValidator rejects round sets naming a different player.
type roundSetValidator struct {
	slug string
}

func (v *roundSetValidator) Validate(data []byte) (store.Header, error) {
	header, err := store.RoundsCodec.Validate(data)
	if err != nil {
		return store.Header{}, err
	}
	if header.Slug != "" && header.Slug != v.slug {
		return store.Header{}, errors.Wrapf(store.ErrMalformedPayload, "round set belongs to %q, want %q", header.Slug, v.slug)
	}
	return header, nil
}
