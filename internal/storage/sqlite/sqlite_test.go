package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"option-pipeline/internal/storage"
)

func TestOpen_CreatesFileAndSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "store", "options.db")

	db, err := Open(context.Background(), Options{Path: path})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, path, db.Path())

	// All three migrated tables exist.
	for _, table := range []string{"contract_snapshots", "contract_archive", "contract_lifespans"} {
		var n int
		err := db.Handle().QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "missing table %s", table)
	}

	var mode string
	require.NoError(t, db.Handle().QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestOpen_MigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")

	db, err := Open(context.Background(), Options{Path: path})
	require.NoError(t, err)
	seedHistory(t, db, "PERSIST1", 2, 10)
	require.NoError(t, db.Close())

	// Reopening re-applies migrations; existing data survives.
	db2, err := Open(context.Background(), Options{Path: path})
	require.NoError(t, err)
	defer db2.Close()
	assert.Equal(t, 2, countRows(t, db2, "contract_snapshots", "PERSIST1"))
}

func TestWithImmediate_CommitAndRollback(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	outcome := db.WithImmediate(ctx, func(ctx context.Context, tx *Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO contract_snapshots (osi_key, timestamp, symbol, option_type, strike_price, days_to_expiration)
			VALUES ('TX1', '2024-03-01T09:30:00Z', 'AAPL', 0, 180, 10)`)
		return err
	})
	require.Equal(t, storage.MoveSuccess, outcome.Status, "commit error: %v", outcome.Err)
	assert.Equal(t, 1, countRows(t, db, "contract_snapshots", "TX1"))

	// An error from fn rolls back everything the fn wrote.
	boom := errors.New("boom")
	outcome = db.WithImmediate(ctx, func(ctx context.Context, tx *Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM contract_snapshots WHERE osi_key = 'TX1'"); err != nil {
			return err
		}
		return boom
	})
	require.Equal(t, storage.MoveFatal, outcome.Status)
	assert.ErrorIs(t, outcome.Err, boom)
	assert.Equal(t, 1, countRows(t, db, "contract_snapshots", "TX1"), "rollback lost")
}

func TestWithImmediate_ContendedLockIsRetryable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contended.db")
	ctx := context.Background()

	// Two handles on the same file, the second with a near-zero busy
	// timeout so contention surfaces immediately instead of waiting.
	holder, err := Open(ctx, Options{Path: path})
	require.NoError(t, err)
	defer holder.Close()

	waiter, err := Open(ctx, Options{Path: path, BusyTimeout: time.Millisecond})
	require.NoError(t, err)
	defer waiter.Close()

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan storage.MoveOutcome, 1)
	go func() {
		done <- holder.WithImmediate(ctx, func(ctx context.Context, tx *Tx) error {
			close(locked)
			<-release
			return nil
		})
	}()

	<-locked
	outcome := waiter.WithImmediate(ctx, func(ctx context.Context, tx *Tx) error {
		return nil
	})
	require.Equal(t, storage.MoveRetryable, outcome.Status)
	assert.ErrorIs(t, outcome.Err, storage.ErrBusy)

	close(release)
	require.Equal(t, storage.MoveSuccess, (<-done).Status)

	// Lock released; the waiter now succeeds.
	outcome = waiter.WithImmediate(ctx, func(ctx context.Context, tx *Tx) error {
		return nil
	})
	assert.Equal(t, storage.MoveSuccess, outcome.Status)
}

func TestIsBusy(t *testing.T) {
	assert.False(t, IsBusy(nil))
	assert.False(t, IsBusy(errors.New("plain")))
	assert.True(t, IsBusy(storage.ErrBusy))
}
