package sqlite

import (
	"database/sql"
	"strings"

	"option-pipeline/internal/domain"
)

// snapshotColumns is the canonical column order shared by
// contract_snapshots and contract_archive.
var snapshotColumns = []string{
	"osi_key", "timestamp", "symbol", "option_type", "strike_price",
	"last_price", "bid", "ask", "bid_size", "ask_size", "volume",
	"open_interest", "near_price", "in_the_money", "delta", "gamma",
	"theta", "vega", "rho", "iv", "days_to_expiration", "spread",
	"mid_price", "moneyness",
}

func snapshotColumnList() string {
	return strings.Join(snapshotColumns, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n-1)+"?", " ")
}

// snapshotArgs flattens a snapshot into insert arguments in canonical
// column order. Nil pointers become SQL NULL.
func snapshotArgs(s *domain.Snapshot) []any {
	return []any{
		s.OSIKey, s.Timestamp, s.Symbol, s.OptionType, s.StrikePrice,
		s.LastPrice, s.Bid, s.Ask, s.BidSize, s.AskSize, s.Volume,
		s.OpenInterest, s.NearPrice, s.InTheMoney, s.Delta, s.Gamma,
		s.Theta, s.Vega, s.Rho, s.IV, s.DaysToExpiration, s.Spread,
		s.MidPrice, s.Moneyness,
	}
}

// scanSnapshot scans one row in canonical column order.
func scanSnapshot(rows *sql.Rows) (*domain.Snapshot, error) {
	var (
		s          domain.Snapshot
		lastPrice  sql.NullFloat64
		bid        sql.NullFloat64
		ask        sql.NullFloat64
		bidSize    sql.NullFloat64
		askSize    sql.NullFloat64
		volume     sql.NullFloat64
		oi         sql.NullFloat64
		nearPrice  sql.NullFloat64
		itm        sql.NullInt64
		delta      sql.NullFloat64
		gamma      sql.NullFloat64
		theta      sql.NullFloat64
		vega       sql.NullFloat64
		rho        sql.NullFloat64
		iv         sql.NullFloat64
		spread     sql.NullFloat64
		midPrice   sql.NullFloat64
		moneyness  sql.NullFloat64
	)

	err := rows.Scan(
		&s.OSIKey, &s.Timestamp, &s.Symbol, &s.OptionType, &s.StrikePrice,
		&lastPrice, &bid, &ask, &bidSize, &askSize, &volume,
		&oi, &nearPrice, &itm, &delta, &gamma,
		&theta, &vega, &rho, &iv, &s.DaysToExpiration, &spread,
		&midPrice, &moneyness,
	)
	if err != nil {
		return nil, err
	}

	s.LastPrice = nullFloat(lastPrice)
	s.Bid = nullFloat(bid)
	s.Ask = nullFloat(ask)
	s.BidSize = nullFloat(bidSize)
	s.AskSize = nullFloat(askSize)
	s.Volume = nullFloat(volume)
	s.OpenInterest = nullFloat(oi)
	s.NearPrice = nullFloat(nearPrice)
	s.InTheMoney = nullInt(itm)
	s.Delta = nullFloat(delta)
	s.Gamma = nullFloat(gamma)
	s.Theta = nullFloat(theta)
	s.Vega = nullFloat(vega)
	s.Rho = nullFloat(rho)
	s.IV = nullFloat(iv)
	s.Spread = nullFloat(spread)
	s.MidPrice = nullFloat(midPrice)
	s.Moneyness = nullFloat(moneyness)
	return &s, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
