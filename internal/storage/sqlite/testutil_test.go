package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"option-pipeline/internal/domain"
)

// setupTestDB opens a fresh database file in a per-test temp directory
// and applies migrations. The file is removed with the temp dir.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), Options{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		BusyTimeout: 2 * time.Second,
	})
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("failed to close test database: %v", err)
		}
	})
	return db
}

// testSnapshot builds one hot-table row for a contract. seq orders the
// timestamps; daysToExp controls whether the row counts as expired.
func testSnapshot(osiKey string, seq int, daysToExp float64) *domain.Snapshot {
	ts := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC).
		Add(time.Duration(seq) * time.Hour).
		Format(time.RFC3339)
	return &domain.Snapshot{
		OSIKey:           osiKey,
		Timestamp:        ts,
		Symbol:           "AAPL",
		OptionType:       domain.OptionTypeCall,
		StrikePrice:      180,
		LastPrice:        ptr(5.0 + float64(seq)),
		Bid:              ptr(4.9 + float64(seq)),
		Ask:              ptr(5.1 + float64(seq)),
		Volume:           ptr(float64(100 * (seq + 1))),
		IV:               ptr(0.25),
		Delta:            ptr(0.5),
		DaysToExpiration: daysToExp,
		MidPrice:         ptr(5.0 + float64(seq)),
	}
}

// seedHistory inserts n rows for a key, all sharing daysToExp.
func seedHistory(t *testing.T, db *DB, osiKey string, n int, daysToExp float64) {
	t.Helper()

	snaps := make([]*domain.Snapshot, n)
	for i := range snaps {
		snaps[i] = testSnapshot(osiKey, i, daysToExp)
	}
	require.NoError(t, NewSnapshotStore(db).UpsertBatch(context.Background(), snaps))
}

func countRows(t *testing.T, db *DB, table, osiKey string) int {
	t.Helper()

	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE osi_key = ?", table)
	require.NoError(t, db.Handle().QueryRow(query, osiKey).Scan(&n))
	return n
}

func ptr[T any](v T) *T {
	return &v
}
