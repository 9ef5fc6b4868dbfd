package hotstore

import (
	"fmt"
	"sort"
	"sync"

	"market-state-engine/internal/domain"
)

// cycleTable stores cycles keyed by id with an index of open cycles per
// (coin, threshold). The index enforces the one-open-cycle invariant at the
// storage layer as well as in the tracker.
type cycleTable struct {
	mu      sync.RWMutex
	byID    map[string]domain.Cycle
	openKey map[string]string // (coin, threshold) key -> open cycle id
	evicted int64
}

func (t *cycleTable) init() {
	t.byID = make(map[string]domain.Cycle)
	t.openKey = make(map[string]string)
}

func cycleKey(coin string, threshold float64) string {
	return fmt.Sprintf("%s|%.6f", coin, threshold)
}

func (t *cycleTable) upsert(c domain.Cycle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := cycleKey(c.Coin, c.Threshold)
	if prev, ok := t.byID[c.ID]; ok && prev.Open() && !c.Open() {
		delete(t.openKey, key)
	}
	if c.Open() {
		t.openKey[key] = c.ID
	}
	t.byID[c.ID] = c
}

func (t *cycleTable) Open(coin string, threshold float64) (domain.Cycle, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	id, ok := t.openKey[cycleKey(coin, threshold)]
	if !ok {
		return domain.Cycle{}, ErrNotFound
	}
	return t.byID[id], nil
}

func (t *cycleTable) AllOpen() []domain.Cycle {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]domain.Cycle, 0, len(t.openKey))
	for _, id := range t.openKey {
		out = append(out, t.byID[id])
	}
	sortCycles(out)
	return out
}

func (t *cycleTable) All() []domain.Cycle {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]domain.Cycle, 0, len(t.byID))
	for _, c := range t.byID {
		out = append(out, c)
	}
	sortCycles(out)
	return out
}

func (t *cycleTable) ClosedBetween(after, upTo int64) []domain.Cycle {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []domain.Cycle
	for _, c := range t.byID {
		if !c.Open() && c.EndTimeMs > after && c.EndTimeMs <= upTo {
			out = append(out, c)
		}
	}
	sortCycles(out)
	return out
}

// evictBefore removes closed cycles that ended before the cutoff. Open
// cycles are live state and survive regardless of age.
func (t *cycleTable) evictBefore(cutoffMs int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, c := range t.byID {
		if !c.Open() && c.EndTimeMs < cutoffMs {
			delete(t.byID, id)
			t.evicted++
		}
	}
}

func (t *cycleTable) delete(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.byID[id]
	if !ok {
		return
	}
	if c.Open() {
		delete(t.openKey, cycleKey(c.Coin, c.Threshold))
	}
	delete(t.byID, id)
}

func (t *cycleTable) openPerThreshold() map[float64]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[float64]int)
	for _, id := range t.openKey {
		out[t.byID[id].Threshold]++
	}
	return out
}

func (t *cycleTable) stats() TableStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return TableStats{Rows: len(t.byID), Evicted: t.evicted}
}

func sortCycles(cycles []domain.Cycle) {
	sort.Slice(cycles, func(i, j int) bool {
		if cycles[i].StartTimeMs != cycles[j].StartTimeMs {
			return cycles[i].StartTimeMs < cycles[j].StartTimeMs
		}
		if cycles[i].Coin != cycles[j].Coin {
			return cycles[i].Coin < cycles[j].Coin
		}
		return cycles[i].Threshold < cycles[j].Threshold
	})
}
