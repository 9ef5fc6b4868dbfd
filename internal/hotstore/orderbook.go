package hotstore

import (
	"sort"
	"sync"

	"market-state-engine/internal/domain"
)

// orderBookTable stores order-book feature rows ordered by timestamp.
type orderBookTable struct {
	mu      sync.RWMutex
	rows    []domain.OrderBookFeatureRow
	evicted int64
}

func (t *orderBookTable) init() {}

func (t *orderBookTable) insert(row domain.OrderBookFeatureRow) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.rows); n == 0 || t.rows[n-1].TimestampMs <= row.TimestampMs {
		t.rows = append(t.rows, row)
		return
	}
	i := sort.Search(len(t.rows), func(i int) bool { return t.rows[i].TimestampMs > row.TimestampMs })
	t.rows = append(t.rows, domain.OrderBookFeatureRow{})
	copy(t.rows[i+1:], t.rows[i:])
	t.rows[i] = row
}

func (t *orderBookTable) Range(from, to int64) []domain.OrderBookFeatureRow {
	t.mu.RLock()
	defer t.mu.RUnlock()

	lo := sort.Search(len(t.rows), func(i int) bool { return t.rows[i].TimestampMs >= from })
	hi := sort.Search(len(t.rows), func(i int) bool { return t.rows[i].TimestampMs > to })
	if lo >= hi {
		return nil
	}
	out := make([]domain.OrderBookFeatureRow, hi-lo)
	copy(out, t.rows[lo:hi])
	return out
}

func (t *orderBookTable) evictBefore(cutoffMs int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := sort.Search(len(t.rows), func(i int) bool { return t.rows[i].TimestampMs >= cutoffMs })
	if i == 0 {
		return
	}
	t.evicted += int64(i)
	remaining := make([]domain.OrderBookFeatureRow, len(t.rows)-i)
	copy(remaining, t.rows[i:])
	t.rows = remaining
}

func (t *orderBookTable) stats() TableStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return TableStats{Rows: len(t.rows), Evicted: t.evicted}
}
