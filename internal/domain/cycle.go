package domain

// Cycle represents one rise-then-retrace episode for a (coin, threshold) pair.
// Corresponds to the cycle_tracker table.
//
// A cycle opens at a local low and closes the instant price retraces
// Threshold below the highest price reached since the cycle started.
// Invariant: at most one open cycle (EndTimeMs == 0) per (coin, threshold).
type Cycle struct {
	ID                 string  // unique cycle identifier
	Coin               string  // token/coin symbol
	Threshold          float64 // drawdown fraction that closes the cycle (e.g. 0.003 = 0.3%)
	StartTimeMs        int64   // cycle open timestamp (ms)
	EndTimeMs          int64   // cycle close timestamp (ms); 0 while open
	SequenceStartPrice float64 // price at cycle open (previous cycle's bottom)
	HighestPrice       float64 // max price seen since open
	LowestPrice        float64 // min price seen since open
	MaxPercentIncrease float64 // max (highest - start) / start recorded
	TotalDataPoints    int64   // number of price points applied
}

// Open reports whether the cycle has not yet closed.
func (c *Cycle) Open() bool {
	return c.EndTimeMs == 0
}
