package hotstore

import (
	"sort"
	"sync"

	"market-state-engine/internal/domain"
)

// priceTable stores price points per token, ordered by timestamp.
type priceTable struct {
	mu      sync.RWMutex
	byToken map[string][]domain.PricePoint
	rows    int
	evicted int64
}

func (t *priceTable) init() {
	t.byToken = make(map[string][]domain.PricePoint)
}

// insert keeps the per-token series sorted. The common case is an in-order
// append; a late point is placed by binary search.
func (t *priceTable) insert(p domain.PricePoint) {
	t.mu.Lock()
	defer t.mu.Unlock()

	series := t.byToken[p.Token]
	if n := len(series); n == 0 || series[n-1].TimestampMs <= p.TimestampMs {
		t.byToken[p.Token] = append(series, p)
	} else {
		i := sort.Search(n, func(i int) bool { return series[i].TimestampMs > p.TimestampMs })
		series = append(series, domain.PricePoint{})
		copy(series[i+1:], series[i:])
		series[i] = p
		t.byToken[p.Token] = series
	}
	t.rows++
}

func (t *priceTable) Latest(token string) (domain.PricePoint, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	series := t.byToken[token]
	if len(series) == 0 {
		return domain.PricePoint{}, ErrNotFound
	}
	return series[len(series)-1], nil
}

func (t *priceTable) Range(token string, from, to int64) []domain.PricePoint {
	t.mu.RLock()
	defer t.mu.RUnlock()

	series := t.byToken[token]
	lo := sort.Search(len(series), func(i int) bool { return series[i].TimestampMs >= from })
	hi := sort.Search(len(series), func(i int) bool { return series[i].TimestampMs > to })
	if lo >= hi {
		return nil
	}
	out := make([]domain.PricePoint, hi-lo)
	copy(out, series[lo:hi])
	return out
}

// Between returns points across all tokens with timestamps in (after, upTo],
// ordered by timestamp then token for deterministic export.
func (t *priceTable) Between(after, upTo int64) []domain.PricePoint {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []domain.PricePoint
	for _, series := range t.byToken {
		lo := sort.Search(len(series), func(i int) bool { return series[i].TimestampMs > after })
		hi := sort.Search(len(series), func(i int) bool { return series[i].TimestampMs > upTo })
		out = append(out, series[lo:hi]...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TimestampMs != out[j].TimestampMs {
			return out[i].TimestampMs < out[j].TimestampMs
		}
		return out[i].Token < out[j].Token
	})
	return out
}

func (t *priceTable) evictBefore(cutoffMs int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for token, series := range t.byToken {
		i := sort.Search(len(series), func(i int) bool { return series[i].TimestampMs >= cutoffMs })
		if i == 0 {
			continue
		}
		t.evicted += int64(i)
		t.rows -= i
		if i == len(series) {
			delete(t.byToken, token)
			continue
		}
		remaining := make([]domain.PricePoint, len(series)-i)
		copy(remaining, series[i:])
		t.byToken[token] = remaining
	}
}

func (t *priceTable) stats() TableStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return TableStats{Rows: t.rows, Evicted: t.evicted}
}
