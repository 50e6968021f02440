package test

import (
	"context"
	"os"
	"testing"

	"github.com/hrygo/fairway/internal/profile"
	"github.com/hrygo/fairway/store"
	"github.com/hrygo/fairway/store/db"
)

// NewTestingStore opens a store backed by driver in a fresh temporary data directory.
func NewTestingStore(ctx context.Context, t *testing.T, driver string) *store.Store {
	t.Helper()

	p := &profile.Profile{
		Mode:   "dev",
		Data:   t.TempDir(),
		Driver: driver,
	}
	if driver == "postgres" {
		p.DSN = os.Getenv("FAIRWAY_POSTGRES_TEST_DSN")
		if p.DSN == "" {
			t.Skip("FAIRWAY_POSTGRES_TEST_DSN is not set")
		}
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("failed to validate profile: %v", err)
	}

	dbDriver, err := db.NewDBDriver(p)
	if err != nil {
		t.Fatalf("failed to create db driver: %v", err)
	}
	ts, err := store.New(dbDriver, p)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		if driver == "postgres" {
			_ = ts.DeleteFreshnessRecord(ctx, &store.DeleteFreshnessRecord{})
		}
		_ = ts.Close()
	})
	return ts
}

// Drivers lists the drivers every store test runs against.
var Drivers = []string{"sqlite", "bolt", "postgres"}
