package permuter

import (
	"strconv"
	"time"

	"option-pipeline/internal/storage"
)

// expansionPlan is the feature row layout derived from the archive schema
// at worker start. It is fixed for the life of the worker; schema changes
// are picked up on the next start.
type expansionPlan struct {
	columns []string         // full insert order, matches EnsureSchema DDL
	carried []storage.Column // non-reserved archive columns with normalized types
}

func newExpansionPlan(archiveCols []storage.Column) *expansionPlan {
	schema := storage.ExpansionSchema(archiveCols)
	columns := make([]string, len(schema))
	for i, c := range schema {
		columns[i] = c.Name
	}

	var carried []storage.Column
	for _, c := range archiveCols {
		if storage.IsReserved(c.Name) {
			continue
		}
		carried = append(carried, storage.Column{Name: c.Name, Type: storage.NormalizeType(c.Type)})
	}

	return &expansionPlan{columns: columns, carried: carried}
}

// buildRow produces one feature row for "buy at observation buy, sell at
// observation sell". Carried-through raw values stay NULL when absent;
// missing counts as zero only for the computed delta, profit, and return
// fields. A non-parseable timestamp yields a zero hold duration, reported
// through the ok flag as a data-quality event.
func (p *expansionPlan) buildRow(osiKey string, buy, sell storage.Row) (row storage.Row, tsOK bool) {
	buyTS, _ := buy[storage.ColTimestamp].(string)
	sellTS, _ := sell[storage.ColTimestamp].(string)

	holdSeconds := 0.0
	tsOK = true
	buyTime, errBuy := parseTimestamp(buyTS)
	sellTime, errSell := parseTimestamp(sellTS)
	if errBuy != nil || errSell != nil {
		tsOK = false
	} else {
		holdSeconds = sellTime.Sub(buyTime).Seconds()
	}

	buyPrice := asFloat(buy["last_price"])
	sellPrice := asFloat(sell["last_price"])
	profit := sellPrice - buyPrice
	returnPct := 0.0
	if buyPrice != 0 {
		returnPct = profit / buyPrice
	}

	row = storage.Row{
		storage.ColOSIKey:        osiKey,
		storage.ColBuyTimestamp:  buyTS,
		storage.ColSellTimestamp: sellTS,
		storage.ColHoldSeconds:   holdSeconds,
		storage.ColProfit:        profit,
		storage.ColReturnPct:     returnPct,
	}

	for _, c := range p.carried {
		row["buy_"+c.Name] = buy[c.Name]
		row["sell_"+c.Name] = sell[c.Name]
		if storage.IsNumericType(c.Type) {
			row["delta_"+c.Name] = asFloat(sell[c.Name]) - asFloat(buy[c.Name])
		}
	}
	return row, tsOK
}

// expand produces all ordered (buy, sell) pairs with buy index < sell
// index from a chronologically sorted history. badTimestamps counts pairs
// whose hold duration defaulted to zero.
func (p *expansionPlan) expand(osiKey string, history []storage.Row) (rows []storage.Row, badTimestamps int) {
	n := len(history)
	if n < 2 {
		return nil, 0
	}

	rows = make([]storage.Row, 0, n*(n-1)/2)
	for i := 0; i < n-1; i++ {
		for j := i + 1; j < n; j++ {
			row, tsOK := p.buildRow(osiKey, history[i], history[j])
			if !tsOK {
				badTimestamps++
			}
			rows = append(rows, row)
		}
	}
	return rows, badTimestamps
}

// timestampLayouts are tried in order. Upstream feeds write RFC 3339 or a
// bare ISO-8601 local time with no zone.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// asFloat coerces a stored value to float64 for delta arithmetic.
// NULL and non-numeric text count as zero.
func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case int:
		return float64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
