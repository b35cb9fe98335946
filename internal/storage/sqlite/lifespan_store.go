package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"option-pipeline/internal/domain"
	"option-pipeline/internal/storage"
)

// LifespanStore provides read access to the contract_lifespans summaries.
// Rows are written by ArchiveStore.Archive as part of the move transaction.
type LifespanStore struct {
	db *DB
}

// NewLifespanStore creates a new LifespanStore.
func NewLifespanStore(db *DB) *LifespanStore {
	return &LifespanStore{db: db}
}

// Compile-time interface check.
var _ storage.LifespanStore = (*LifespanStore)(nil)

// Summaries retrieves up to limit lifespan records, most recent end date first.
func (s *LifespanStore) Summaries(ctx context.Context, limit int) ([]*domain.Lifespan, error) {
	query := `
		SELECT osi_key, symbol, option_type, strike_price, start_date, end_date,
		       start_price, end_price, total_change,
		       avg_iv, max_iv, min_iv,
		       avg_delta, avg_gamma, avg_theta, avg_vega, avg_rho,
		       avg_bid_ask_spread, avg_volume, avg_open_interest,
		       avg_mid_price, avg_moneyness, total_snapshots
		FROM contract_lifespans
		ORDER BY end_date DESC
		LIMIT ?
	`

	rows, err := s.db.sql.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get lifespans: %w", err)
	}
	defer rows.Close()

	var out []*domain.Lifespan
	for rows.Next() {
		var (
			l                                          domain.Lifespan
			startPrice, endPrice, totalChange          sql.NullFloat64
			avgIV, maxIV, minIV                        sql.NullFloat64
			avgDelta, avgGamma, avgTheta               sql.NullFloat64
			avgVega, avgRho, avgSpread                 sql.NullFloat64
			avgVolume, avgOI, avgMid, avgMoneyness     sql.NullFloat64
		)
		err := rows.Scan(
			&l.OSIKey, &l.Symbol, &l.OptionType, &l.StrikePrice, &l.StartDate, &l.EndDate,
			&startPrice, &endPrice, &totalChange,
			&avgIV, &maxIV, &minIV,
			&avgDelta, &avgGamma, &avgTheta, &avgVega, &avgRho,
			&avgSpread, &avgVolume, &avgOI,
			&avgMid, &avgMoneyness, &l.TotalSnapshots,
		)
		if err != nil {
			return nil, fmt.Errorf("scan lifespan: %w", err)
		}
		l.StartPrice = nullFloat(startPrice)
		l.EndPrice = nullFloat(endPrice)
		l.TotalChange = nullFloat(totalChange)
		l.AvgIV = nullFloat(avgIV)
		l.MaxIV = nullFloat(maxIV)
		l.MinIV = nullFloat(minIV)
		l.AvgDelta = nullFloat(avgDelta)
		l.AvgGamma = nullFloat(avgGamma)
		l.AvgTheta = nullFloat(avgTheta)
		l.AvgVega = nullFloat(avgVega)
		l.AvgRho = nullFloat(avgRho)
		l.AvgBidAskSpread = nullFloat(avgSpread)
		l.AvgVolume = nullFloat(avgVolume)
		l.AvgOpenInterest = nullFloat(avgOI)
		l.AvgMidPrice = nullFloat(avgMid)
		l.AvgMoneyness = nullFloat(avgMoneyness)
		out = append(out, &l)
	}
	return out, rows.Err()
}

// StatsStore reports row and key counts across the lifecycle tables.
type StatsStore struct {
	db *DB
}

// NewStatsStore creates a new StatsStore.
func NewStatsStore(db *DB) *StatsStore {
	return &StatsStore{db: db}
}

var _ storage.StatsStore = (*StatsStore)(nil)

// Summary counts rows and distinct keys in each lifecycle table. Reads run
// without any lock; WAL isolation gives a consistent snapshot per query.
func (s *StatsStore) Summary(ctx context.Context) (*domain.StoreSummary, error) {
	var sum domain.StoreSummary
	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM contract_snapshots", &sum.Snapshots},
		{"SELECT COUNT(DISTINCT osi_key) FROM contract_snapshots", &sum.SnapshotContracts},
		{"SELECT COUNT(DISTINCT symbol) FROM contract_snapshots", &sum.SnapshotSymbols},
		{"SELECT COUNT(*) FROM contract_archive", &sum.ArchiveRows},
		{"SELECT COUNT(DISTINCT osi_key) FROM contract_archive", &sum.ArchiveContracts},
		{"SELECT COUNT(*) FROM contract_lifespans", &sum.Lifespans},
	}
	for _, c := range counts {
		if err := s.db.sql.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("store summary: %w", err)
		}
	}

	// The feature table only exists once the permutation worker has run.
	err := s.db.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM contract_features").Scan(&sum.FeatureRows)
	if err != nil {
		sum.FeatureRows = 0
	}
	return &sum, nil
}
