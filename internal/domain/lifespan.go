package domain

// Lifespan is the per-contract aggregate written when a contract's full
// history is archived. Corresponds to the contract_lifespans table,
// keyed by osi_key alone.
type Lifespan struct {
	OSIKey          string
	Symbol          string
	OptionType      int
	StrikePrice     float64
	StartDate       string // timestamp of earliest observation
	EndDate         string // timestamp of latest observation
	StartPrice      *float64
	EndPrice        *float64
	TotalChange     *float64
	AvgIV           *float64
	MaxIV           *float64
	MinIV           *float64
	AvgDelta        *float64
	AvgGamma        *float64
	AvgTheta        *float64
	AvgVega         *float64
	AvgRho          *float64
	AvgBidAskSpread *float64
	AvgVolume       *float64
	AvgOpenInterest *float64
	AvgMidPrice     *float64
	AvgMoneyness    *float64
	TotalSnapshots  int
}
