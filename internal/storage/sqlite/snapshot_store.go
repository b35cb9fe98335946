package sqlite

import (
	"context"
	"fmt"

	"option-pipeline/internal/domain"
	"option-pipeline/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore on the hot table.
type SnapshotStore struct {
	db *DB
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(db *DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// UpsertBatch inserts snapshots with insert-or-replace semantics on
// (osi_key, timestamp), all under one immediate write lock. This is the
// same upsert contract the pipeline's archive step relies on.
func (s *SnapshotStore) UpsertBatch(ctx context.Context, snaps []*domain.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	query := fmt.Sprintf(
		"INSERT OR REPLACE INTO contract_snapshots (%s) VALUES (%s)",
		snapshotColumnList(), placeholders(len(snapshotColumns)),
	)

	outcome := s.db.WithImmediate(ctx, func(ctx context.Context, tx *Tx) error {
		for _, snap := range snaps {
			if snap.OSIKey == "" || snap.Timestamp == "" {
				return fmt.Errorf("%w: snapshot missing osi_key or timestamp", storage.ErrInvalidInput)
			}
			if _, err := tx.Exec(ctx, query, snapshotArgs(snap)...); err != nil {
				return fmt.Errorf("insert snapshot %s@%s: %w", snap.OSIKey, snap.Timestamp, err)
			}
		}
		return nil
	})
	return outcome.Err
}

// ExpiredKeys returns up to limit contract keys whose every hot row shows
// days_to_expiration <= 0. Grouping with an aggregate filter, not a
// per-key table scan.
func (s *SnapshotStore) ExpiredKeys(ctx context.Context, limit int) ([]string, error) {
	query := `
		SELECT osi_key
		FROM contract_snapshots
		GROUP BY osi_key
		HAVING MAX(days_to_expiration) <= 0
		LIMIT ?
	`

	rows, err := s.db.sql.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select expired keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan expired key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// HistoryByKey retrieves all hot rows for a key, ordered by timestamp ASC.
func (s *SnapshotStore) HistoryByKey(ctx context.Context, osiKey string) ([]*domain.Snapshot, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM contract_snapshots WHERE osi_key = ? ORDER BY timestamp ASC",
		snapshotColumnList(),
	)

	rows, err := s.db.sql.QueryContext(ctx, query, osiKey)
	if err != nil {
		return nil, fmt.Errorf("get snapshots by key: %w", err)
	}
	defer rows.Close()

	var snaps []*domain.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// Recent retrieves the most recent rows across all keys, newest first.
func (s *SnapshotStore) Recent(ctx context.Context, limit int) ([]*domain.Snapshot, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM contract_snapshots ORDER BY timestamp DESC LIMIT ?",
		snapshotColumnList(),
	)

	rows, err := s.db.sql.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*domain.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}
