package domain

// Position status values. A position is terminal once status leaves pending.
const (
	PositionPending   = "pending"
	PositionSold      = "sold"
	PositionCancelled = "cancelled"
	PositionError     = "error"
)

// Position represents an open or closed trade.
// Corresponds to the positions table.
//
// Positions are created externally with status pending. The trailing-stop
// engine is the only writer of HighestPrice, Status, ExitPrice and
// ExitTimeMs; a stale-position janitor may independently force-cancel, so
// any non-pending status must be treated as terminal and never overwritten.
type Position struct {
	ID           string  // unique position identifier
	Token        string  // token/coin symbol
	EntryTimeMs  int64   // entry timestamp (ms)
	EntryPrice   float64 // fill price at entry
	Status       string  // pending | sold | cancelled | error
	HighestPrice float64 // max price seen while pending
	ExitPrice    float64 // fill price at exit; 0 while pending
	ExitTimeMs   int64   // exit timestamp (ms); 0 while pending
	Policy       string  // tolerance policy name governing the exit
}

// Pending reports whether the position is still live.
func (p *Position) Pending() bool {
	return p.Status == PositionPending
}
