package storage

import "strings"

// Feature-table key and computed column names.
const (
	ColOSIKey        = "osi_key"
	ColTimestamp     = "timestamp"
	ColBuyTimestamp  = "buy_timestamp"
	ColSellTimestamp = "sell_timestamp"
	ColHoldSeconds   = "hold_seconds"
	ColProfit        = "profit"
	ColReturnPct     = "return_pct"
)

// reserved column names are never carried through as buy_/sell_ copies.
var reserved = map[string]bool{
	ColOSIKey:        true,
	ColTimestamp:     true,
	ColBuyTimestamp:  true,
	ColSellTimestamp: true,
}

// IsReserved reports whether a source column is excluded from carry-through.
func IsReserved(name string) bool {
	return reserved[name]
}

// NormalizeType maps a declared SQLite column type to one of
// TEXT, INTEGER, or REAL. Unknown declarations default to REAL.
func NormalizeType(declared string) string {
	t := strings.ToUpper(strings.TrimSpace(declared))
	switch {
	case t == "":
		return "REAL"
	case strings.Contains(t, "INT"):
		return "INTEGER"
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		return "TEXT"
	default:
		return "REAL"
	}
}

// IsNumericType reports whether a normalized type takes a delta column.
func IsNumericType(normalized string) bool {
	return normalized == "REAL" || normalized == "INTEGER"
}

// ExpansionSchema derives the feature-table column set from the archive
// table's current columns: the composite key, a buy_/sell_ copy of every
// non-reserved column, a delta_ column for every numeric one, and the
// three computed scalars. Order is stable so insert statements and DDL
// agree.
func ExpansionSchema(archiveCols []Column) []Column {
	out := []Column{
		{Name: ColOSIKey, Type: "TEXT"},
		{Name: ColBuyTimestamp, Type: "TEXT"},
		{Name: ColSellTimestamp, Type: "TEXT"},
	}

	for _, c := range archiveCols {
		if IsReserved(c.Name) {
			continue
		}
		t := NormalizeType(c.Type)
		out = append(out,
			Column{Name: "buy_" + c.Name, Type: t},
			Column{Name: "sell_" + c.Name, Type: t},
		)
	}

	for _, c := range archiveCols {
		if IsReserved(c.Name) {
			continue
		}
		if IsNumericType(NormalizeType(c.Type)) {
			out = append(out, Column{Name: "delta_" + c.Name, Type: "REAL"})
		}
	}

	out = append(out,
		Column{Name: ColHoldSeconds, Type: "REAL"},
		Column{Name: ColProfit, Type: "REAL"},
		Column{Name: ColReturnPct, Type: "REAL"},
	)
	return out
}
