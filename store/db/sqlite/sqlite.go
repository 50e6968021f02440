package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/fairway/internal/profile"
	"github.com/hrygo/fairway/store"
)

// ============================================================================
// SQLITE SUPPORT (Default)
// ============================================================================
// SQLite is the default freshness store: a single local file next to the cache
// slots, suitable for the single-process usage pattern fairway is built for.
// ============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS freshness_record (
	resource_key TEXT PRIMARY KEY,
	day          TEXT NOT NULL,
	updated_ts   BIGINT NOT NULL DEFAULT (strftime('%s', 'now'))
);`

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a db instance.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// Connect to the database with some sane settings:
	// - No shared-cache: it's obsolete; WAL journal mode is a better solution.
	// - No foreign key constraints: fairway keeps a single table.
	// - Journal mode set to WAL: it's the recommended journal mode for most applications
	//   as it prevents locking issues.
	// - busy_timeout lets concurrent writers wait instead of failing with SQLITE_BUSY.
	sqliteDB, err := sql.Open("sqlite", profile.DSN+dsnParams(profile.DSN))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}
	// A single connection serializes writes; freshness records are tiny and rarely written.
	sqliteDB.SetMaxOpenConns(1)

	if _, err := sqliteDB.ExecContext(context.Background(), schema); err != nil {
		_ = sqliteDB.Close()
		return nil, errors.Wrap(err, "failed to migrate freshness_record table")
	}

	driver := DB{db: sqliteDB, profile: profile}
	return &driver, nil
}

func dsnParams(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)"
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}
