package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/fairway/store"
)

func TestFreshnessRecordStore(t *testing.T) {
	for _, driver := range Drivers {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			ts := NewTestingStore(ctx, t, driver)

			_, err := ts.GetFreshnessRecord(ctx, "rounds/tiger-woods")
			require.ErrorIs(t, err, store.ErrNotFound)

			created, err := ts.UpsertFreshnessRecord(ctx, &store.FreshnessRecord{Key: "rounds/tiger-woods", Day: "2024-01-01"})
			require.NoError(t, err)
			require.Equal(t, "rounds/tiger-woods", created.Key)
			require.Equal(t, "2024-01-01", created.Day)
			require.NotZero(t, created.UpdatedTs)

			updated, err := ts.UpsertFreshnessRecord(ctx, &store.FreshnessRecord{Key: "rounds/tiger-woods", Day: "2024-01-02", UpdatedTs: 42})
			require.NoError(t, err)
			require.Equal(t, "2024-01-02", updated.Day)
			require.Equal(t, int64(42), updated.UpdatedTs)

			got, err := ts.GetFreshnessRecord(ctx, "rounds/tiger-woods")
			require.NoError(t, err)
			require.Equal(t, "2024-01-02", got.Day)

			_, err = ts.UpsertFreshnessRecord(ctx, &store.FreshnessRecord{Key: "rounds/rory-mcilroy", Day: "2024-01-02"})
			require.NoError(t, err)

			list, err := ts.ListFreshnessRecords(ctx, &store.FindFreshnessRecord{})
			require.NoError(t, err)
			require.Len(t, list, 2)
			require.Equal(t, "rounds/rory-mcilroy", list[0].Key)
			require.Equal(t, "rounds/tiger-woods", list[1].Key)

			key := "rounds/rory-mcilroy"
			require.NoError(t, ts.DeleteFreshnessRecord(ctx, &store.DeleteFreshnessRecord{Key: &key}))
			list, err = ts.ListFreshnessRecords(ctx, &store.FindFreshnessRecord{})
			require.NoError(t, err)
			require.Len(t, list, 1)

			require.NoError(t, ts.DeleteFreshnessRecord(ctx, &store.DeleteFreshnessRecord{}))
			list, err = ts.ListFreshnessRecords(ctx, &store.FindFreshnessRecord{})
			require.NoError(t, err)
			require.Empty(t, list)
		})
	}
}

func TestStoreClearAll(t *testing.T) {
	for _, driver := range Drivers {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			ts := NewTestingStore(ctx, t, driver)

			for _, key := range []string{"players", "courses", "rounds/tiger-woods"} {
				slot, err := ts.Slot(key)
				require.NoError(t, err)
				require.NoError(t, slot.Write([]byte(`{}`)))
			}
			_, err := ts.UpsertFreshnessRecord(ctx, &store.FreshnessRecord{Key: "rounds/tiger-woods", Day: "2024-01-01"})
			require.NoError(t, err)

			require.NoError(t, ts.ClearAll(ctx))

			keys, err := ts.SlotKeys("")
			require.NoError(t, err)
			require.Empty(t, keys)
			list, err := ts.ListFreshnessRecords(ctx, &store.FindFreshnessRecord{})
			require.NoError(t, err)
			require.Empty(t, list)

			// Slots keep working after a clear.
			slot, err := ts.Slot("players")
			require.NoError(t, err)
			require.NoError(t, slot.Write([]byte(`{}`)))
			require.True(t, slot.Exists())
		})
	}
}
