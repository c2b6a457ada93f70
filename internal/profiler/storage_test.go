package profiler

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlab/driftwatch/internal/tracker"
)

func setupTestStorage(t *testing.T) *Storage {
	t.Helper()

	db, err := sql.Open("duckdb", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	storage, err := NewStorage(db, zerolog.Nop())
	require.NoError(t, err)
	return storage
}

func TestStorageStoreAggregates(t *testing.T) {
	ctx := context.Background()
	storage := setupTestStorage(t)
	now := time.Now()

	aggs := []tracker.SiteAggregate{
		{
			ID:        tracker.HashSite("main;alloc"),
			Site:      "main;alloc",
			Count:     10,
			Mean:      1024.5,
			Variance:  12.25,
			Std:       3.5,
			SEM:       1.11,
			Skewness:  0.2,
			Kurtosis:  -0.4,
			Peak:      2048,
			HasSpread: true,
		},
		{
			// Single observation: spread statistics stored as NULL.
			ID:       tracker.HashSite("main;once"),
			Site:     "main;once",
			Count:    1,
			Mean:     64,
			Kurtosis: -3,
			Peak:     64,
		},
	}

	require.NoError(t, storage.StoreAggregates(ctx, "session-1", now, aggs))

	var count int
	var variance sql.NullFloat64
	err := storage.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM site_aggregates_local WHERE session_id = ?
	`, "session-1").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	err = storage.db.QueryRowContext(ctx, `
		SELECT variance FROM site_aggregates_local WHERE site = ?
	`, "main;once").Scan(&variance)
	require.NoError(t, err)
	assert.False(t, variance.Valid)
}

func TestStorageStoreAggregatesEmpty(t *testing.T) {
	storage := setupTestStorage(t)
	assert.NoError(t, storage.StoreAggregates(context.Background(), "s", time.Now(), nil))
}

func TestStorageLeakCandidatesRoundTrip(t *testing.T) {
	ctx := context.Background()
	storage := setupTestStorage(t)
	now := time.Now()

	candidates := []tracker.LeakCandidate{
		{ID: tracker.HashSite("leaky;a"), Site: "leaky;a", PValue: 0.0001},
		{ID: tracker.HashSite("leaky;b"), Site: "leaky;b", PValue: 0.004},
	}

	require.NoError(t, storage.StoreLeakCandidates(ctx, "session-2", now, candidates))

	got, err := storage.QueryLeakCandidates(ctx, "session-2")
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Rank order preserved within the flush.
	assert.Equal(t, candidates[0], got[0])
	assert.Equal(t, candidates[1], got[1])

	// Other sessions stay invisible.
	other, err := storage.QueryLeakCandidates(ctx, "session-3")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestStorageSiteIDRoundTripsLargeHashes(t *testing.T) {
	ctx := context.Background()
	storage := setupTestStorage(t)

	// Site hashes routinely exceed MaxInt64; the UBIGINT column must keep
	// them intact.
	id := tracker.SiteID(^uint64(0) - 7)
	candidates := []tracker.LeakCandidate{{ID: id, Site: "big", PValue: 0.01}}
	require.NoError(t, storage.StoreLeakCandidates(ctx, "session-4", time.Now(), candidates))

	got, err := storage.QueryLeakCandidates(ctx, "session-4")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
}

func TestStoragePruneBefore(t *testing.T) {
	ctx := context.Background()
	storage := setupTestStorage(t)

	old := time.Now().Add(-2 * time.Hour)
	recent := time.Now()

	aggs := []tracker.SiteAggregate{{
		ID: tracker.HashSite("s"), Site: "s", Count: 1, Mean: 1, Kurtosis: -3, Peak: 1,
	}}
	require.NoError(t, storage.StoreAggregates(ctx, "session-5", old, aggs))
	require.NoError(t, storage.StoreAggregates(ctx, "session-5", recent, aggs))
	require.NoError(t, storage.StoreLeakCandidates(ctx, "session-5", old,
		[]tracker.LeakCandidate{{ID: tracker.HashSite("s"), Site: "s", PValue: 0.01}}))

	require.NoError(t, storage.PruneBefore(ctx, time.Now().Add(-time.Hour)))

	var count int
	err := storage.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM site_aggregates_local").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := storage.QueryLeakCandidates(ctx, "session-5")
	require.NoError(t, err)
	assert.Empty(t, got)
}
