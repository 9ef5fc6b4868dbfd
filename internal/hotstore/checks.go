package hotstore

import (
	"sort"
	"sync"

	"market-state-engine/internal/domain"
)

// checkTable stores trailing-stop audit rows ordered by check time.
type checkTable struct {
	mu      sync.RWMutex
	rows    []domain.PriceCheck
	evicted int64
}

func (t *checkTable) init() {}

func (t *checkTable) insert(c domain.PriceCheck) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.rows); n == 0 || t.rows[n-1].CheckedAtMs <= c.CheckedAtMs {
		t.rows = append(t.rows, c)
		return
	}
	i := sort.Search(len(t.rows), func(i int) bool { return t.rows[i].CheckedAtMs > c.CheckedAtMs })
	t.rows = append(t.rows, domain.PriceCheck{})
	copy(t.rows[i+1:], t.rows[i:])
	t.rows[i] = c
}

func (t *checkTable) ByPosition(positionID string) []domain.PriceCheck {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []domain.PriceCheck
	for _, c := range t.rows {
		if c.PositionID == positionID {
			out = append(out, c)
		}
	}
	return out
}

func (t *checkTable) Between(after, upTo int64) []domain.PriceCheck {
	t.mu.RLock()
	defer t.mu.RUnlock()

	lo := sort.Search(len(t.rows), func(i int) bool { return t.rows[i].CheckedAtMs > after })
	hi := sort.Search(len(t.rows), func(i int) bool { return t.rows[i].CheckedAtMs > upTo })
	if lo >= hi {
		return nil
	}
	out := make([]domain.PriceCheck, hi-lo)
	copy(out, t.rows[lo:hi])
	return out
}

func (t *checkTable) evictBefore(cutoffMs int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := sort.Search(len(t.rows), func(i int) bool { return t.rows[i].CheckedAtMs >= cutoffMs })
	if i == 0 {
		return
	}
	t.evicted += int64(i)
	remaining := make([]domain.PriceCheck, len(t.rows)-i)
	copy(remaining, t.rows[i:])
	t.rows = remaining
}

func (t *checkTable) stats() TableStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return TableStats{Rows: len(t.rows), Evicted: t.evicted}
}
