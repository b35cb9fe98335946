package storage

import (
	"context"

	"option-pipeline/internal/domain"
)

// Row is one dynamically-shaped table row, column name -> value.
// Values read from the store keep NULL as nil.
type Row map[string]any

// Column describes one column of a store table.
type Column struct {
	Name string
	Type string // declared SQL type, e.g. TEXT, REAL, INTEGER
}

// SnapshotStore provides access to the hot contract_snapshots table.
type SnapshotStore interface {
	// UpsertBatch inserts snapshots with insert-or-replace semantics on
	// (osi_key, timestamp), all within one short write transaction.
	UpsertBatch(ctx context.Context, snaps []*domain.Snapshot) error

	// ExpiredKeys returns up to limit contract keys whose every hot row
	// shows days_to_expiration <= 0.
	ExpiredKeys(ctx context.Context, limit int) ([]string, error)

	// HistoryByKey retrieves all hot rows for a key, ordered by timestamp ASC.
	HistoryByKey(ctx context.Context, osiKey string) ([]*domain.Snapshot, error)

	// Recent retrieves the most recent rows across all keys, newest first.
	Recent(ctx context.Context, limit int) ([]*domain.Snapshot, error)
}

// ArchiveStore owns the hot -> archive transition and access to the
// contract_archive table.
type ArchiveStore interface {
	// Keys returns up to limit distinct contract keys present in the archive.
	Keys(ctx context.Context, limit int) ([]string, error)

	// HistoryByKey retrieves all archive rows for a key as dynamic rows,
	// ordered by timestamp ASC.
	HistoryByKey(ctx context.Context, osiKey string) ([]Row, error)

	// Columns reports the archive table's current column set.
	Columns(ctx context.Context) ([]Column, error)

	// Archive atomically copies every hot row for the key into the archive
	// (upsert on conflict), records the contract's lifespan summary, and
	// deletes the hot rows, all under one immediate write lock. If any hot
	// row for the key is still active the move is rolled back and the
	// outcome is Fatal(ErrStillActive).
	Archive(ctx context.Context, osiKey string) MoveOutcome

	// Discard atomically deletes every hot row for the key without
	// archiving (history too short to be useful).
	Discard(ctx context.Context, osiKey string) MoveOutcome
}

// FeatureStore owns the archive -> feature transition and the
// contract_features table.
type FeatureStore interface {
	// EnsureSchema creates the feature table if missing and additively adds
	// any column required by the given archive schema. Run once at worker
	// start; never destructive.
	EnsureSchema(ctx context.Context, archiveCols []Column) error

	// InsertAndConsume atomically inserts the expanded permutation rows for
	// the key (upsert on conflict) and deletes the consumed archive rows,
	// all under one immediate write lock.
	InsertAndConsume(ctx context.Context, osiKey string, columns []string, rows []Row) MoveOutcome

	// DropHistory atomically deletes the archive rows for a key that has
	// too few observations to pair (dead-end cleanup).
	DropHistory(ctx context.Context, osiKey string) MoveOutcome

	// CountByKey reports how many feature rows exist for a key.
	CountByKey(ctx context.Context, osiKey string) (int, error)
}

// LifespanStore provides read access to the contract_lifespans summaries.
type LifespanStore interface {
	// Summaries retrieves up to limit lifespan records, most recent end date first.
	Summaries(ctx context.Context, limit int) ([]*domain.Lifespan, error)
}

// StatsStore reports row and key counts across the lifecycle tables.
type StatsStore interface {
	Summary(ctx context.Context) (*domain.StoreSummary, error)
}
