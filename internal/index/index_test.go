package index

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/angelmondragon/clinicops-backend/internal/ledger"
	"github.com/angelmondragon/clinicops-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/clinicops-backend/pkg/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisIndex(t *testing.T) (*RedisIndex, *miniredis.Miniredis, string) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := pkgredis.Wrap(redis.NewClient(&redis.Options{Addr: srv.Addr()}))
	t.Cleanup(func() { _ = client.Close() })
	key := client.LedgerIndexKey("clinic-a")
	idx, err := NewRedisIndex(client, key)
	require.NoError(t, err)
	return idx, srv, key
}

func TestRedisIndexLookupAndUpsert(t *testing.T) {
	ctx := context.Background()
	idx, srv, key := newRedisIndex(t)
	at := time.Unix(1700000000, 5).UTC()

	_, found, err := idx.Lookup(ctx, "pay_1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, idx.Upsert(ctx, "pay_1", 4, at))
	assert.Equal(t, "4|1700000000000000005", srv.HGet(key, "pay_1"))

	pos, found, err := idx.Lookup(ctx, "pay_1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 4, pos)

	_, found, err = idx.Lookup(ctx, "PAY_1")
	require.NoError(t, err)
	assert.False(t, found, "lookups are case-sensitive")

	entries, err := idx.Entries(ctx)
	require.NoError(t, err)
	assert.Equal(t, Entry{Position: 4, TouchedAt: at}, entries["pay_1"])
}

func TestRedisIndexTreatsMalformedValuesAsMiss(t *testing.T) {
	ctx := context.Background()
	idx, srv, key := newRedisIndex(t)
	srv.HSet(key, "pay_1", "garbage")
	srv.HSet(key, "pay_2", "0|1")

	for _, k := range []string{"pay_1", "pay_2"} {
		_, found, err := idx.Lookup(ctx, k)
		require.NoError(t, err)
		assert.False(t, found, k)
	}
}

func TestRedisIndexReportsConnectionErrors(t *testing.T) {
	idx, srv, _ := newRedisIndex(t)
	srv.Close()
	_, _, err := idx.Lookup(context.Background(), "pay_1")
	require.Error(t, err)
}

func TestVerifyAndRepair(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, idx.Upsert(ctx, "pay_1", 1, now))
	require.NoError(t, idx.Upsert(ctx, "pay_2", 7, now))
	require.NoError(t, idx.Upsert(ctx, "pay_gone", 9, now))

	positions := map[string]int{"pay_1": 1, "pay_2": 2, "pay_3": 3}
	report, err := Verify(ctx, idx, positions)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Checked)
	assert.Equal(t, []string{"pay_3"}, report.Missing)
	assert.Equal(t, []string{"pay_2"}, report.Stale)
	assert.Equal(t, []string{"pay_gone"}, report.Orphaned)
	assert.False(t, report.Clean())

	require.NoError(t, Repair(ctx, idx, positions, report, now))

	report, err = Verify(ctx, idx, positions)
	require.NoError(t, err)
	assert.True(t, report.Clean())
}

func TestVerifyFlagsMalformedRedisEntries(t *testing.T) {
	ctx := context.Background()
	idx, srv, key := newRedisIndex(t)
	srv.HSet(key, "pay_1", "not-a-position")

	report, err := Verify(ctx, idx, map[string]int{"pay_1": 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"pay_1"}, report.Stale)

	require.NoError(t, Repair(ctx, idx, map[string]int{"pay_1": 1}, report, time.Unix(0, 1)))
	assert.Equal(t, "1|1", srv.HGet(key, "pay_1"))
}

func TestStoreWithRedisIndexSurvivesCorruption(t *testing.T) {
	ctx := context.Background()
	idx, srv, key := newRedisIndex(t)
	store, err := ledger.NewStore(ledger.StoreParams{
		Instance: "clinic-a",
		Sheet:    ledger.NewMemorySheet(),
		Index:    idx,
		Logger:   logger.New(logger.Options{ServiceName: "index-test", Output: io.Discard}),
	})
	require.NoError(t, err)

	for _, k := range []string{"pay_1", "pay_2"} {
		_, err := store.UpsertRow(ctx, k, ledger.Fields{ledger.FieldAmount: "1"})
		require.NoError(t, err)
	}

	srv.HSet(key, "pay_2", "1|0")
	srv.HDel(key, "pay_1")

	pos, found, err := store.FindRowByKey(ctx, "pay_2")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, pos)

	pos, found, err = store.FindRowByKey(ctx, "pay_1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, pos)

	positions, err := store.KeyPositions(ctx)
	require.NoError(t, err)
	report, err := Verify(ctx, idx, positions)
	require.NoError(t, err)
	assert.True(t, report.Clean(), "lookups repair the index lazily")
}
