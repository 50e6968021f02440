package store

import (
	"context"
)

// Driver is an interface for the freshness record store.
// It contains all methods that a store driver should implement.
type Driver interface {
	Close() error

	// FreshnessRecord model related methods.
	UpsertFreshnessRecord(ctx context.Context, upsert *FreshnessRecord) (*FreshnessRecord, error)
	ListFreshnessRecords(ctx context.Context, find *FindFreshnessRecord) ([]*FreshnessRecord, error)
	DeleteFreshnessRecord(ctx context.Context, delete *DeleteFreshnessRecord) error
}
