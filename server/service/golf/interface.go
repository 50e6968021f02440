package golf

import (
	"context"
	"time"

	"github.com/hrygo/fairway/server/service/history"
	"github.com/hrygo/fairway/server/service/syncer"
	"github.com/hrygo/fairway/store"
)

// Service is the only surface collaborators use to read cached golf data and trigger fetches.
// Nothing outside this layer writes cache slots or freshness records.
type Service interface {
	// GetCachedCollection returns the cached entities of a collection, or an empty slice if it was
	// never fetched. It does not block on I/O.
	GetCachedCollection(name Collection) ([]store.Entity, error)

	// LookupCollection is GetCachedCollection with "never fetched" reported as ok == false.
	LookupCollection(name Collection) (items []store.Entity, ok bool, err error)

	// CachedPlayers and CachedCourses are typed variants of LookupCollection.
	CachedPlayers() ([]*store.Player, bool)
	CachedCourses() ([]*store.Course, bool)

	// FindPlayer returns the cached summary record for slug.
	FindPlayer(slug string) (*store.Player, bool)

	// RefreshCollection fetches a collection unconditionally. An empty location means the
	// collection's default location under the remote base URL.
	RefreshCollection(ctx context.Context, name Collection, location string) (*syncer.Result, error)

	// RefreshAll refreshes every collection concurrently, as on a cold start.
	RefreshAll(ctx context.Context) (map[Collection]*syncer.Result, error)

	// GetEmbeddedHistory returns the bounded recent rounds shipped inside player.
	GetEmbeddedHistory(player *store.Player) []*store.Round

	// PlayerHistory returns what the history resolver currently serves for slug.
	PlayerHistory(slug string) (history.State, []*store.Round)

	// LoadFullHistory upgrades a player to the full round set, applying the freshness gate.
	// It is idempotent once the full set has loaded. An empty location means the default.
	LoadFullHistory(ctx context.Context, slug, location string) (*syncer.Result, error)

	// ClearAllCaches deletes every cache slot and freshness record and resets in-memory state.
	ClearAllCaches(ctx context.Context) error

	// Status describes every known slot.
	Status(ctx context.Context) (*Status, error)

	// InspectRounds summarizes the field layout of cached round sets.
	InspectRounds(opts *InspectOptions) (*RoundsReport, error)
}

// Collection names a collection resource.
type Collection string

const (
	// Players is the players collection, players.json.
	Players Collection = "players"
	// Courses is the courses collection, courses.json.
	Courses Collection = "courses"
)

// Collections lists every collection refreshed on a cold start.
var Collections = []Collection{Players, Courses}

// Valid reports whether c names a known collection.
func (c Collection) Valid() bool {
	return c == Players || c == Courses
}

// Key returns the collection's resource key.
func (c Collection) Key() string {
	return string(c)
}

// Status is a point-in-time view of the cache.
type Status struct {
	Day   string        `json:"day"`
	Slots []*SlotStatus `json:"slots"`
}

// SlotStatus describes one cache slot.
type SlotStatus struct {
	Key       string     `json:"key"`
	Exists    bool       `json:"exists"`
	Readable  bool       `json:"readable"`
	Version   int        `json:"version,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	Items     int        `json:"items"`
	// Refreshed is the calendar day of the last successful refresh, for gated resources.
	Refreshed string `json:"refreshed,omitempty"`
	// Loaded is the resolver state, for per-player round sets.
	Loaded string `json:"loaded,omitempty"`
}
