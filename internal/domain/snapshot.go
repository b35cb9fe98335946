package domain

// Snapshot is one observation of one option contract at one instant.
// Corresponds to the contract_snapshots and contract_archive tables,
// which share the same column shape and (osi_key, timestamp) key.
//
// Optional market fields are pointers so that values absent from an
// upstream feed stay NULL in the store instead of collapsing to zero.
type Snapshot struct {
	OSIKey           string   `json:"osiKey"`    // contract identifier (root symbol, expiry, strike, type)
	Timestamp        string   `json:"timestamp"` // ISO-8601 observation time, part of the primary key
	Symbol           string   `json:"symbol"`
	OptionType       int      `json:"optionType"` // OptionTypeCall | OptionTypePut
	StrikePrice      float64  `json:"strikePrice"`
	LastPrice        *float64 `json:"lastPrice"`
	Bid              *float64 `json:"bid"`
	Ask              *float64 `json:"ask"`
	BidSize          *float64 `json:"bidSize"`
	AskSize          *float64 `json:"askSize"`
	Volume           *float64 `json:"volume"`
	OpenInterest     *float64 `json:"openInterest"`
	NearPrice        *float64 `json:"nearPrice"`
	InTheMoney       *int     `json:"inTheMoney"`
	Delta            *float64 `json:"delta"`
	Gamma            *float64 `json:"gamma"`
	Theta            *float64 `json:"theta"`
	Vega             *float64 `json:"vega"`
	Rho              *float64 `json:"rho"`
	IV               *float64 `json:"iv"`
	DaysToExpiration float64  `json:"daysToExpiration"`
	Spread           *float64 `json:"spread"`
	MidPrice         *float64 `json:"midPrice"`
	Moneyness        *float64 `json:"moneyness"`
}

// Option type constants
const (
	OptionTypeCall = 0
	OptionTypePut  = 1
)
