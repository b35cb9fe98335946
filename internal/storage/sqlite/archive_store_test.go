package sqlite

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"option-pipeline/internal/domain"
	"option-pipeline/internal/storage"
)

func TestArchiveStore_ArchiveMovesAllRows(t *testing.T) {
	db := setupTestDB(t)
	store := NewArchiveStore(db)
	ctx := context.Background()

	seedHistory(t, db, "DONE1", 4, 0)

	outcome := store.Archive(ctx, "DONE1")
	require.Equal(t, storage.MoveSuccess, outcome.Status, "archive error: %v", outcome.Err)

	assert.Equal(t, 0, countRows(t, db, "contract_snapshots", "DONE1"))
	assert.Equal(t, 4, countRows(t, db, "contract_archive", "DONE1"))

	rows, err := store.HistoryByKey(ctx, "DONE1")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "DONE1", rows[0]["osi_key"])
	assert.Equal(t, "AAPL", rows[0]["symbol"])
	assert.Equal(t, 5.0, rows[0]["last_price"])
}

func TestArchiveStore_ArchiveWritesLifespanSummary(t *testing.T) {
	db := setupTestDB(t)
	store := NewArchiveStore(db)
	ctx := context.Background()

	seedHistory(t, db, "LIFE1", 3, 0)

	outcome := store.Archive(ctx, "LIFE1")
	require.Equal(t, storage.MoveSuccess, outcome.Status, "archive error: %v", outcome.Err)

	var (
		total      int
		startPrice float64
		endPrice   float64
		change     float64
	)
	err := db.Handle().QueryRow(`
		SELECT total_snapshots, start_price, end_price, total_change
		FROM contract_lifespans WHERE osi_key = ?`, "LIFE1",
	).Scan(&total, &startPrice, &endPrice, &change)
	require.NoError(t, err)

	// Seeded last prices run 5.0, 6.0, 7.0 in timestamp order.
	assert.Equal(t, 3, total)
	assert.Equal(t, 5.0, startPrice)
	assert.Equal(t, 7.0, endPrice)
	assert.Equal(t, 2.0, change)
}

func TestArchiveStore_ArchiveAbortsWhenStillActive(t *testing.T) {
	db := setupTestDB(t)
	store := NewArchiveStore(db)
	ctx := context.Background()

	// Two expired rows plus one that turned active again.
	seedHistory(t, db, "LATE1", 2, 0)
	require.NoError(t, NewSnapshotStore(db).UpsertBatch(ctx,
		[]*domain.Snapshot{testSnapshot("LATE1", 5, 3)}))

	outcome := store.Archive(ctx, "LATE1")
	require.Equal(t, storage.MoveFatal, outcome.Status)
	assert.ErrorIs(t, outcome.Err, storage.ErrStillActive)

	// Rolled back: hot rows untouched, nothing archived.
	assert.Equal(t, 3, countRows(t, db, "contract_snapshots", "LATE1"))
	assert.Equal(t, 0, countRows(t, db, "contract_archive", "LATE1"))
}

func TestArchiveStore_ArchiveIdempotentRerun(t *testing.T) {
	db := setupTestDB(t)
	store := NewArchiveStore(db)
	ctx := context.Background()

	seedHistory(t, db, "RERUN1", 3, 0)

	require.Equal(t, storage.MoveSuccess, store.Archive(ctx, "RERUN1").Status)
	// Second run finds no hot rows and converges without duplication.
	require.Equal(t, storage.MoveSuccess, store.Archive(ctx, "RERUN1").Status)

	assert.Equal(t, 3, countRows(t, db, "contract_archive", "RERUN1"))
}

func TestArchiveStore_Discard(t *testing.T) {
	db := setupTestDB(t)
	store := NewArchiveStore(db)
	ctx := context.Background()

	seedHistory(t, db, "SHORT1", 2, 0)
	seedHistory(t, db, "KEEP1", 2, 0)

	outcome := store.Discard(ctx, "SHORT1")
	require.Equal(t, storage.MoveSuccess, outcome.Status, "discard error: %v", outcome.Err)

	assert.Equal(t, 0, countRows(t, db, "contract_snapshots", "SHORT1"))
	assert.Equal(t, 0, countRows(t, db, "contract_archive", "SHORT1"))
	// Other keys untouched.
	assert.Equal(t, 2, countRows(t, db, "contract_snapshots", "KEEP1"))
}

func TestArchiveStore_KeysAndColumns(t *testing.T) {
	db := setupTestDB(t)
	store := NewArchiveStore(db)
	ctx := context.Background()

	seedHistory(t, db, "K1", 3, 0)
	seedHistory(t, db, "K2", 3, 0)
	require.Equal(t, storage.MoveSuccess, store.Archive(ctx, "K1").Status)
	require.Equal(t, storage.MoveSuccess, store.Archive(ctx, "K2").Status)

	keys, err := store.Keys(ctx, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"K1", "K2"}, keys)

	cols, err := store.Columns(ctx)
	require.NoError(t, err)
	names := make(map[string]string, len(cols))
	for _, c := range cols {
		names[c.Name] = c.Type
	}
	assert.Equal(t, "TEXT", names["osi_key"])
	assert.Equal(t, "TEXT", names["timestamp"])
	assert.Contains(t, names, "last_price")
	assert.Contains(t, names, "days_to_expiration")
}

// Concurrent movers on the same key: both attempts converge and the row
// count never inflates. Readers observing mid-move see either all rows
// hot or all rows archived, never a mix.
func TestArchiveStore_ConcurrentMovesConverge(t *testing.T) {
	db := setupTestDB(t)
	store := NewArchiveStore(db)
	ctx := context.Background()

	const key = "RACE1"
	seedHistory(t, db, key, 6, 0)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := storage.RetryMove(ctx, 5, 0, func(ctx context.Context) storage.MoveOutcome {
				return store.Archive(ctx, key)
			})
			assert.NoError(t, err)
		}()
	}

	// Single-statement read so both counts come from one snapshot.
	readTotal := func() int {
		var n int
		require.NoError(t, db.Handle().QueryRow(`
			SELECT (SELECT COUNT(*) FROM contract_snapshots WHERE osi_key = ?1)
			     + (SELECT COUNT(*) FROM contract_archive WHERE osi_key = ?1)`, key,
		).Scan(&n))
		return n
	}
	for i := 0; i < 20; i++ {
		assert.Equal(t, 6, readTotal(), "partial move visible to reader")
	}

	wg.Wait()
	assert.Equal(t, 0, countRows(t, db, "contract_snapshots", key))
	assert.Equal(t, 6, countRows(t, db, "contract_archive", key))
}
