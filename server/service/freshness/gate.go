// Package freshness gates per-entity refreshes to at most one successful fetch per local calendar day.
package freshness

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/fairway/server/timezone"
	"github.com/hrygo/fairway/store"
)

// Gate decides whether a refresh-gated resource may hit the network today.
type Gate struct {
	store *store.Store
	loc   *time.Location
	now   func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

// NewGate creates a gate persisting markers in st, computing days in loc.
func NewGate(st *store.Store, loc *time.Location, opts ...Option) *Gate {
	if loc == nil {
		loc = timezone.Local
	}
	g := &Gate{store: st, loc: loc, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Today returns the current calendar-day marker.
func (g *Gate) Today() string {
	return timezone.DayMarker(g.now(), g.loc)
}

// ShouldRefresh is true unless key was already marked refreshed today.
// An unreadable record or a malformed marker counts as absent.
func (g *Gate) ShouldRefresh(ctx context.Context, key string) bool {
	record, err := g.store.GetFreshnessRecord(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("failed to read freshness record", slog.String("resource", key), slog.String("error", err.Error()))
		}
		return true
	}
	if _, err := timezone.ParseDayMarker(record.Day, g.loc); err != nil {
		slog.Warn("ignoring malformed freshness marker", slog.String("resource", key), slog.String("day", record.Day))
		return true
	}
	return record.Day != g.Today()
}

// MarkRefreshed records today's marker for key.
func (g *Gate) MarkRefreshed(ctx context.Context, key string) error {
	_, err := g.store.UpsertFreshnessRecord(ctx, &store.FreshnessRecord{
		Key:       key,
		Day:       g.Today(),
		UpdatedTs: g.now().Unix(),
	})
	if err != nil {
		return errors.Wrapf(err, "failed to mark %s refreshed", key)
	}
	return nil
}

// LastRefreshed returns the stored marker for key, or "" when none exists.
func (g *Gate) LastRefreshed(ctx context.Context, key string) (string, error) {
	record, err := g.store.GetFreshnessRecord(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return record.Day, nil
}
