package postgres

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/fairway/store"
)

func (d *DB) UpsertFreshnessRecord(ctx context.Context, upsert *store.FreshnessRecord) (*store.FreshnessRecord, error) {
	stmt := `INSERT INTO freshness_record (resource_key, day, updated_ts)
		VALUES (` + placeholders(3) + `)
		ON CONFLICT(resource_key) DO UPDATE SET day = excluded.day, updated_ts = excluded.updated_ts
		RETURNING resource_key, day, updated_ts`

	record := &store.FreshnessRecord{}
	if err := d.db.QueryRowContext(ctx, stmt, upsert.Key, upsert.Day, upsert.UpdatedTs).Scan(
		&record.Key,
		&record.Day,
		&record.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert freshness record")
	}
	return record, nil
}

func (d *DB) ListFreshnessRecords(ctx context.Context, find *store.FindFreshnessRecord) ([]*store.FreshnessRecord, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.Key; v != nil {
		where, args = append(where, "resource_key = "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `SELECT resource_key, day, updated_ts FROM freshness_record WHERE ` + strings.Join(where, " AND ") + ` ORDER BY resource_key ASC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list freshness records")
	}
	defer rows.Close()

	list := []*store.FreshnessRecord{}
	for rows.Next() {
		record := &store.FreshnessRecord{}
		if err := rows.Scan(&record.Key, &record.Day, &record.UpdatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan freshness record")
		}
		list = append(list, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *DB) DeleteFreshnessRecord(ctx context.Context, delete *store.DeleteFreshnessRecord) error {
	where, args := []string{"1 = 1"}, []any{}
	if v := delete.Key; v != nil {
		where, args = append(where, "resource_key = "+placeholder(len(args)+1)), append(args, *v)
	}

	stmt := `DELETE FROM freshness_record WHERE ` + strings.Join(where, " AND ")
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrap(err, "failed to delete freshness records")
	}
	return nil
}
