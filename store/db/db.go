package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/fairway/internal/profile"
	"github.com/hrygo/fairway/store"
	"github.com/hrygo/fairway/store/db/bolt"
	"github.com/hrygo/fairway/store/db/postgres"
	"github.com/hrygo/fairway/store/db/sqlite"
)

// ============================================================================
// FRESHNESS STORE SUPPORT POLICY
// ============================================================================
// SQLite:     default, one local file next to the cache slots.
// BoltDB:     pure key-value alternative for hosts without SQL tooling.
// PostgreSQL: shared freshness markers for processes sharing a cache volume.
// ============================================================================

// NewDBDriver creates new db driver based on profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	case "bolt":
		driver, err = bolt.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver %q: only 'sqlite', 'postgres' and 'bolt' are supported", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
