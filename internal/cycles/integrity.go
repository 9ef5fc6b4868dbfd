package cycles

import (
	"fmt"

	"market-state-engine/internal/hotstore"
	"market-state-engine/internal/ingest"
)

// Violation kinds reported by the offline integrity check.
const (
	ViolationEndBeforeStart = "END_BEFORE_START"
	ViolationNegativePrice  = "NEGATIVE_PRICE"
	ViolationOrphanedCheck  = "ORPHANED_PRICE_CHECK"
)

// Violation describes one corrupted record found by the integrity check.
// The online state machines never auto-correct these; they are flagged for
// the offline repair pass.
type Violation struct {
	Kind     string
	RecordID string
	Detail   string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %s: %s", v.Kind, v.RecordID, v.Detail)
}

// CheckIntegrity scans the hot window for data-integrity violations:
// cycles that end before they start, non-positive cycle prices, and audit
// rows referencing positions that do not exist.
func CheckIntegrity(store *hotstore.Store) []Violation {
	var out []Violation

	for _, c := range store.Cycles() {
		if !c.Open() && c.EndTimeMs < c.StartTimeMs {
			out = append(out, Violation{
				Kind:     ViolationEndBeforeStart,
				RecordID: c.ID,
				Detail:   fmt.Sprintf("end_time_ms %d < start_time_ms %d", c.EndTimeMs, c.StartTimeMs),
			})
			continue
		}
		if c.SequenceStartPrice <= 0 || c.HighestPrice <= 0 || c.LowestPrice <= 0 {
			out = append(out, Violation{
				Kind:     ViolationNegativePrice,
				RecordID: c.ID,
				Detail: fmt.Sprintf("start=%v highest=%v lowest=%v",
					c.SequenceStartPrice, c.HighestPrice, c.LowestPrice),
			})
		}
	}

	for _, check := range store.ChecksBetween(0, int64(1)<<62) {
		if _, err := store.Position(check.PositionID); err != nil {
			out = append(out, Violation{
				Kind:     ViolationOrphanedCheck,
				RecordID: check.PositionID,
				Detail:   fmt.Sprintf("price check at %d references missing position", check.CheckedAtMs),
			})
		}
	}

	return out
}

// PurgeCycles queues deletion of the corrupted cycle rows named in the
// violations. Deletes flow through the ingest queue like any other write.
func PurgeCycles(queue *ingest.Queue, violations []Violation) (int, error) {
	purged := 0
	for _, v := range violations {
		if v.Kind != ViolationEndBeforeStart && v.Kind != ViolationNegativePrice {
			continue
		}
		if err := queue.Push(hotstore.DeleteCycle{ID: v.RecordID}); err != nil {
			return purged, fmt.Errorf("purge cycle %s: %w", v.RecordID, err)
		}
		purged++
	}
	return purged, nil
}
