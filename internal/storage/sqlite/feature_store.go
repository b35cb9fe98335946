package sqlite

import (
	"context"
	"fmt"
	"strings"

	"option-pipeline/internal/storage"
)

// FeatureStore implements storage.FeatureStore. It owns the archive ->
// feature transition: sole writer of contract_features and sole deleter
// of consumed contract_archive rows.
type FeatureStore struct {
	db *DB
}

// NewFeatureStore creates a new FeatureStore.
func NewFeatureStore(db *DB) *FeatureStore {
	return &FeatureStore{db: db}
}

// Compile-time interface check.
var _ storage.FeatureStore = (*FeatureStore)(nil)

// EnsureSchema creates contract_features if missing, or additively adds
// any column the given archive schema requires. Existing columns and rows
// are never touched; upstream schema growth needs no destructive
// migration. Run once at worker start, never mid-batch.
func (s *FeatureStore) EnsureSchema(ctx context.Context, archiveCols []storage.Column) error {
	desired := storage.ExpansionSchema(archiveCols)

	var exists int
	err := s.db.sql.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'contract_features'",
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check feature table: %w", err)
	}

	if exists == 0 {
		defs := make([]string, 0, len(desired))
		for _, c := range desired {
			defs = append(defs, fmt.Sprintf("%s %s", c.Name, c.Type))
		}
		ddl := fmt.Sprintf(
			"CREATE TABLE contract_features (%s, PRIMARY KEY (%s, %s, %s))",
			strings.Join(defs, ", "),
			storage.ColOSIKey, storage.ColBuyTimestamp, storage.ColSellTimestamp,
		)
		if _, err := s.db.sql.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create feature table: %w", err)
		}
	} else {
		existing, err := s.columns(ctx)
		if err != nil {
			return err
		}
		present := make(map[string]bool, len(existing))
		for _, c := range existing {
			present[c.Name] = true
		}
		for _, c := range desired {
			if present[c.Name] {
				continue
			}
			alter := fmt.Sprintf("ALTER TABLE contract_features ADD COLUMN %s %s", c.Name, c.Type)
			if _, err := s.db.sql.ExecContext(ctx, alter); err != nil {
				return fmt.Errorf("add feature column %s: %w", c.Name, err)
			}
		}
	}

	_, err = s.db.sql.ExecContext(ctx,
		"CREATE INDEX IF NOT EXISTS idx_contract_features_osi ON contract_features(osi_key)")
	if err != nil {
		return fmt.Errorf("ensure feature index: %w", err)
	}
	return nil
}

func (s *FeatureStore) columns(ctx context.Context) ([]storage.Column, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		"SELECT name, type FROM pragma_table_info('contract_features')")
	if err != nil {
		return nil, fmt.Errorf("introspect feature columns: %w", err)
	}
	defer rows.Close()

	var cols []storage.Column
	for rows.Next() {
		var c storage.Column
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, fmt.Errorf("scan feature column: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// InsertAndConsume atomically inserts the expanded permutation rows for a
// key and deletes the consumed archive rows under one immediate write
// lock. An external reader never sees features without the archive rows
// cleared, nor vice versa. Upsert on the (osi_key, buy_timestamp,
// sell_timestamp) key makes a re-run after partial failure a no-op.
func (s *FeatureStore) InsertAndConsume(ctx context.Context, osiKey string, columns []string, rows []storage.Row) storage.MoveOutcome {
	if len(rows) == 0 {
		return storage.Fatal(fmt.Errorf("%w: no rows to insert", storage.ErrInvalidInput))
	}

	insertSQL := fmt.Sprintf(
		"INSERT OR REPLACE INTO contract_features (%s) VALUES (%s)",
		strings.Join(columns, ", "), placeholders(len(columns)),
	)

	return s.db.WithImmediate(ctx, func(ctx context.Context, tx *Tx) error {
		args := make([]any, len(columns))
		for _, row := range rows {
			for i, col := range columns {
				args[i] = row[col]
			}
			if _, err := tx.Exec(ctx, insertSQL, args...); err != nil {
				return fmt.Errorf("insert feature row: %w", err)
			}
		}
		if _, err := tx.Exec(ctx,
			"DELETE FROM contract_archive WHERE osi_key = ?", osiKey); err != nil {
			return fmt.Errorf("delete consumed archive rows: %w", err)
		}
		return nil
	})
}

// DropHistory atomically deletes the archive rows for a key with too few
// observations to pair.
func (s *FeatureStore) DropHistory(ctx context.Context, osiKey string) storage.MoveOutcome {
	return s.db.WithImmediate(ctx, func(ctx context.Context, tx *Tx) error {
		if _, err := tx.Exec(ctx,
			"DELETE FROM contract_archive WHERE osi_key = ?", osiKey); err != nil {
			return fmt.Errorf("drop archive history: %w", err)
		}
		return nil
	})
}

// CountByKey reports how many feature rows exist for a key.
func (s *FeatureStore) CountByKey(ctx context.Context, osiKey string) (int, error) {
	var n int
	err := s.db.sql.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM contract_features WHERE osi_key = ?", osiKey).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count feature rows: %w", err)
	}
	return n, nil
}
