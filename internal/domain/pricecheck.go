package domain

// Trailing-stop decision codes recorded on every evaluation.
const (
	DecisionHold = "HOLD"
	DecisionSell = "SELL"
)

// PriceCheck is the audit record of one trailing-stop evaluation.
// Corresponds to the price_checks table. Append-only, never mutated.
type PriceCheck struct {
	PositionID       string  // evaluated position
	CheckedAtMs      int64   // evaluation timestamp (ms)
	CurrentPrice     float64 // price used for the decision
	HighestPrice     float64 // position peak at evaluation time (already updated)
	ReferencePrice   float64 // peak above entry, entry price below entry
	DropFromHigh     float64 // (highest - current) / highest
	DropFromEntry    float64 // (entry - current) / entry; negative when in profit
	ToleranceApplied float64 // tolerance the decision was made against
	Decision         string  // HOLD | SELL
}
