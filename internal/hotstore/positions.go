package hotstore

import (
	"fmt"
	"sort"
	"sync"

	"market-state-engine/internal/domain"
)

// positionTable stores positions keyed by id with a pending index.
type positionTable struct {
	mu      sync.RWMutex
	byID    map[string]domain.Position
	pending map[string]struct{}
	evicted int64
}

func (t *positionTable) init() {
	t.byID = make(map[string]domain.Position)
	t.pending = make(map[string]struct{})
}

func (t *positionTable) insert(p domain.Position) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.byID[p.ID]; exists {
		return fmt.Errorf("insert position %s: duplicate id", p.ID)
	}
	if p.HighestPrice == 0 {
		p.HighestPrice = p.EntryPrice
	}
	t.byID[p.ID] = p
	if p.Pending() {
		t.pending[p.ID] = struct{}{}
	}
	return nil
}

// patch applies the trailing-stop engine's writable columns. Patching a
// non-pending position is a deliberate no-op.
func (t *positionTable) patch(op PositionPatch) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.byID[op.ID]
	if !ok {
		return fmt.Errorf("patch position %s: %w", op.ID, ErrNotFound)
	}
	if !p.Pending() {
		return nil
	}
	if op.HighestPrice != nil {
		p.HighestPrice = *op.HighestPrice
	}
	if op.Status != nil {
		p.Status = *op.Status
	}
	if op.ExitPrice != nil {
		p.ExitPrice = *op.ExitPrice
	}
	if op.ExitTimeMs != nil {
		p.ExitTimeMs = *op.ExitTimeMs
	}
	t.byID[op.ID] = p
	if !p.Pending() {
		delete(t.pending, op.ID)
	}
	return nil
}

func (t *positionTable) Get(id string) (domain.Position, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.byID[id]
	if !ok {
		return domain.Position{}, ErrNotFound
	}
	return p, nil
}

func (t *positionTable) Pending() []domain.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]domain.Position, 0, len(t.pending))
	for id := range t.pending {
		out = append(out, t.byID[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *positionTable) ClosedBetween(after, upTo int64) []domain.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []domain.Position
	for _, p := range t.byID {
		if !p.Pending() && p.ExitTimeMs > after && p.ExitTimeMs <= upTo {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ExitTimeMs != out[j].ExitTimeMs {
			return out[i].ExitTimeMs < out[j].ExitTimeMs
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// evictBefore removes terminal positions that exited before the cutoff.
// Pending positions survive regardless of age; force-cancelling stale ones
// is the janitor's call, not eviction's. A terminal row without an exit
// timestamp also survives: archival keys off ExitTimeMs, so evicting it
// would drop the row before it could ever be mirrored.
func (t *positionTable) evictBefore(cutoffMs int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, p := range t.byID {
		if !p.Pending() && p.ExitTimeMs > 0 && p.ExitTimeMs < cutoffMs {
			delete(t.byID, id)
			t.evicted++
		}
	}
}

func (t *positionTable) stats() TableStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return TableStats{Rows: len(t.byID), Evicted: t.evicted}
}
