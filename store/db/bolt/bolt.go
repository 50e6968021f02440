// Package bolt implements the freshness store on a BoltDB file.
package bolt

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/hrygo/fairway/internal/profile"
	"github.com/hrygo/fairway/store"
)

const freshnessBucket = "freshness"

type DB struct {
	db      *bbolt.DB
	profile *profile.Profile
}

type freshnessValue struct {
	Day       string `json:"day"`
	UpdatedTs int64  `json:"updatedTs"`
}

// NewDB opens the BoltDB file named by the profile DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}
	if strings.TrimSpace(profile.DSN) == "" {
		return nil, errors.New("dsn required")
	}

	db, err := bbolt.Open(filepath.Clean(profile.DSN), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "open storage db")
	}

	driver := &DB{db: db, profile: profile}
	if err := driver.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return driver, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) UpsertFreshnessRecord(ctx context.Context, upsert *store.FreshnessRecord) (*store.FreshnessRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(upsert.Key) == "" {
		return nil, errors.New("freshness key is required")
	}

	payload, err := json.Marshal(freshnessValue{Day: upsert.Day, UpdatedTs: upsert.UpdatedTs})
	if err != nil {
		return nil, errors.Wrap(err, "marshal freshness record")
	}
	err = d.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(freshnessBucket))
		if bucket == nil {
			return errors.New("freshness bucket is missing")
		}
		return bucket.Put([]byte(upsert.Key), payload)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert freshness record")
	}

	return &store.FreshnessRecord{Key: upsert.Key, Day: upsert.Day, UpdatedTs: upsert.UpdatedTs}, nil
}

func (d *DB) ListFreshnessRecords(ctx context.Context, find *store.FindFreshnessRecord) ([]*store.FreshnessRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	list := []*store.FreshnessRecord{}
	err := d.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(freshnessBucket))
		if bucket == nil {
			return errors.New("freshness bucket is missing")
		}
		if find.Key != nil {
			payload := bucket.Get([]byte(*find.Key))
			if payload == nil {
				return nil
			}
			record, err := decodeRecord(*find.Key, payload)
			if err != nil {
				return err
			}
			list = append(list, record)
			return nil
		}
		// Bolt iterates keys in byte order, matching the SQL drivers' ORDER BY.
		return bucket.ForEach(func(k, v []byte) error {
			record, err := decodeRecord(string(k), v)
			if err != nil {
				return err
			}
			list = append(list, record)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list freshness records")
	}
	return list, nil
}

func (d *DB) DeleteFreshnessRecord(ctx context.Context, delete *store.DeleteFreshnessRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := d.db.Update(func(tx *bbolt.Tx) error {
		if delete.Key != nil {
			bucket := tx.Bucket([]byte(freshnessBucket))
			if bucket == nil {
				return errors.New("freshness bucket is missing")
			}
			return bucket.Delete([]byte(*delete.Key))
		}
		if err := tx.DeleteBucket([]byte(freshnessBucket)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket([]byte(freshnessBucket))
		return err
	})
	if err != nil {
		return errors.Wrap(err, "failed to delete freshness records")
	}
	return nil
}

func (d *DB) ensureBuckets() error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(freshnessBucket)); err != nil {
			return errors.Wrap(err, "create freshness bucket")
		}
		return nil
	})
}

func decodeRecord(key string, payload []byte) (*store.FreshnessRecord, error) {
	var value freshnessValue
	if err := json.Unmarshal(payload, &value); err != nil {
		return nil, errors.Wrapf(err, "unmarshal freshness record %s", key)
	}
	return &store.FreshnessRecord{Key: key, Day: value.Day, UpdatedTs: value.UpdatedTs}, nil
}
