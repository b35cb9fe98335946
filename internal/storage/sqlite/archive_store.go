package sqlite

import (
	"context"
	"fmt"

	"option-pipeline/internal/storage"
)

// ArchiveStore implements storage.ArchiveStore. It owns the hot -> archive
// transition: it is the sole writer of contract_archive and the sole
// deleter of consumed contract_snapshots rows.
type ArchiveStore struct {
	db *DB
}

// NewArchiveStore creates a new ArchiveStore.
func NewArchiveStore(db *DB) *ArchiveStore {
	return &ArchiveStore{db: db}
}

// Compile-time interface check.
var _ storage.ArchiveStore = (*ArchiveStore)(nil)

// Keys returns up to limit distinct contract keys present in the archive.
func (s *ArchiveStore) Keys(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		"SELECT DISTINCT osi_key FROM contract_archive LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("select archive keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan archive key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// HistoryByKey retrieves all archive rows for a key as dynamic rows,
// ordered by timestamp ASC. Rows are dynamic because the archive schema
// may have grown beyond the compiled-in snapshot columns.
func (s *ArchiveStore) HistoryByKey(ctx context.Context, osiKey string) ([]storage.Row, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		"SELECT * FROM contract_archive WHERE osi_key = ? ORDER BY timestamp ASC", osiKey)
	if err != nil {
		return nil, fmt.Errorf("get archive history: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("archive history columns: %w", err)
	}

	var out []storage.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}
		row := make(storage.Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Columns reports the archive table's current column set.
func (s *ArchiveStore) Columns(ctx context.Context) ([]storage.Column, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		"SELECT name, type FROM pragma_table_info('contract_archive')")
	if err != nil {
		return nil, fmt.Errorf("introspect archive columns: %w", err)
	}
	defer rows.Close()

	var cols []storage.Column
	for rows.Next() {
		var c storage.Column
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, fmt.Errorf("scan archive column: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// lifespanSummarySQL aggregates a contract's full hot history into its
// contract_lifespans row. Executed inside the archive move transaction so
// the summary appears atomically with the relocation.
const lifespanSummarySQL = `
INSERT OR REPLACE INTO contract_lifespans (
	osi_key, symbol, option_type, strike_price, start_date, end_date,
	start_price, end_price, total_change,
	avg_iv, max_iv, min_iv,
	avg_delta, avg_gamma, avg_theta, avg_vega, avg_rho,
	avg_bid_ask_spread, avg_volume, avg_open_interest,
	avg_mid_price, avg_moneyness, total_snapshots
)
SELECT
	osi_key, MIN(symbol), MIN(option_type), MIN(strike_price),
	MIN(timestamp), MAX(timestamp),
	(SELECT last_price FROM contract_snapshots WHERE osi_key = ?1 ORDER BY timestamp ASC LIMIT 1),
	(SELECT last_price FROM contract_snapshots WHERE osi_key = ?1 ORDER BY timestamp DESC LIMIT 1),
	(SELECT last_price FROM contract_snapshots WHERE osi_key = ?1 ORDER BY timestamp DESC LIMIT 1)
		- (SELECT last_price FROM contract_snapshots WHERE osi_key = ?1 ORDER BY timestamp ASC LIMIT 1),
	AVG(iv), MAX(iv), MIN(iv),
	AVG(delta), AVG(gamma), AVG(theta), AVG(vega), AVG(rho),
	AVG(ask - bid), AVG(volume), AVG(open_interest),
	AVG(mid_price), AVG(moneyness), COUNT(*)
FROM contract_snapshots
WHERE osi_key = ?1
GROUP BY osi_key
`

// Archive atomically copies every hot row for the key into the archive,
// writes the contract's lifespan summary, and deletes the hot rows.
// The insert is an upsert on (osi_key, timestamp) so a re-run after a
// partial prior failure converges instead of erroring. A re-check inside
// the transaction aborts the move if any row for the key turned active
// again (late-arriving observations); the key then stays hot for the
// next cycle.
func (s *ArchiveStore) Archive(ctx context.Context, osiKey string) storage.MoveOutcome {
	return s.db.WithImmediate(ctx, func(ctx context.Context, tx *Tx) error {
		var active int
		err := tx.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM contract_snapshots WHERE osi_key = ? AND days_to_expiration > 0)",
			osiKey,
		).Scan(&active)
		if err != nil {
			return fmt.Errorf("re-check active rows: %w", err)
		}
		if active != 0 {
			return storage.ErrStillActive
		}

		copySQL := fmt.Sprintf(
			"INSERT OR REPLACE INTO contract_archive (%s) SELECT %s FROM contract_snapshots WHERE osi_key = ?",
			snapshotColumnList(), snapshotColumnList(),
		)
		if _, err := tx.Exec(ctx, copySQL, osiKey); err != nil {
			return fmt.Errorf("copy rows to archive: %w", err)
		}

		if _, err := tx.Exec(ctx, lifespanSummarySQL, osiKey); err != nil {
			return fmt.Errorf("write lifespan summary: %w", err)
		}

		if _, err := tx.Exec(ctx,
			"DELETE FROM contract_snapshots WHERE osi_key = ?", osiKey); err != nil {
			return fmt.Errorf("delete archived snapshots: %w", err)
		}
		return nil
	})
}

// Discard atomically deletes every hot row for the key without archiving.
func (s *ArchiveStore) Discard(ctx context.Context, osiKey string) storage.MoveOutcome {
	return s.db.WithImmediate(ctx, func(ctx context.Context, tx *Tx) error {
		if _, err := tx.Exec(ctx,
			"DELETE FROM contract_snapshots WHERE osi_key = ?", osiKey); err != nil {
			return fmt.Errorf("discard snapshots: %w", err)
		}
		return nil
	})
}
