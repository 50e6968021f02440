package postgres

import (
	"context"
	"database/sql"
	"log"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/fairway/internal/profile"
	"github.com/hrygo/fairway/store"
)

// ============================================================================
// POSTGRESQL SUPPORT (Shared freshness store)
// ============================================================================
// PostgreSQL lets several fairway processes that share one cache volume agree
// on the day each resource was last refreshed. Cache slots stay on disk.
// ============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS freshness_record (
	resource_key TEXT PRIMARY KEY,
	day          TEXT NOT NULL,
	updated_ts   BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())
);`

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	// Open the PostgreSQL connection
	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		log.Printf("Failed to open database: %s", err)
		return nil, errors.Wrapf(err, "failed to open database: %s", profile.DSN)
	}

	// Freshness records are written at most once per resource per day.
	db.SetMaxOpenConns(3)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(2 * time.Hour)
	db.SetConnMaxIdleTime(15 * time.Minute)

	// Verify connection is working before returning
	if err := db.Ping(); err != nil {
		log.Printf("Failed to ping database: %s", err)
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to migrate freshness_record table")
	}

	var driver store.Driver = &DB{
		db:      db,
		profile: profile,
	}
	return driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}
