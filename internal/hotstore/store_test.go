package hotstore

import (
	"errors"
	"sync"
	"testing"

	"market-state-engine/internal/domain"
	"market-state-engine/internal/schema"
)

func TestStore_InsertAndLatestPrice(t *testing.T) {
	s := New()

	for _, p := range []domain.PricePoint{
		{Token: "SOL", TimestampMs: 1000, Price: 1.0},
		{Token: "SOL", TimestampMs: 2000, Price: 1.1},
		{Token: "ETH", TimestampMs: 1500, Price: 2.0},
	} {
		if err := s.Apply(InsertPrice{Point: p}); err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
	}

	latest, err := s.LatestPrice("SOL")
	if err != nil {
		t.Fatalf("LatestPrice failed: %v", err)
	}
	if latest.TimestampMs != 2000 || latest.Price != 1.1 {
		t.Errorf("Unexpected latest point: %+v", latest)
	}

	if _, err := s.LatestPrice("BTC"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStore_LatePriceKeepsOrder(t *testing.T) {
	s := New()

	for _, ts := range []int64{1000, 3000, 2000} {
		err := s.Apply(InsertPrice{Point: domain.PricePoint{Token: "SOL", TimestampMs: ts, Price: float64(ts)}})
		if err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
	}

	points := s.PriceRange("SOL", 0, 4000)
	if len(points) != 3 {
		t.Fatalf("Expected 3 points, got %d", len(points))
	}
	for i := 1; i < len(points); i++ {
		if points[i].TimestampMs < points[i-1].TimestampMs {
			t.Errorf("Series not ordered: %d < %d", points[i].TimestampMs, points[i-1].TimestampMs)
		}
	}
}

func TestStore_PriceRangeInclusive(t *testing.T) {
	s := New()

	for _, ts := range []int64{1000, 2000, 3000} {
		s.Apply(InsertPrice{Point: domain.PricePoint{Token: "SOL", TimestampMs: ts, Price: 1.0}})
	}

	got := s.PriceRange("SOL", 1000, 2000)
	if len(got) != 2 {
		t.Errorf("Expected 2 points in [1000, 2000], got %d", len(got))
	}
}

func TestStore_PricesBetweenHalfOpen(t *testing.T) {
	s := New()

	for _, ts := range []int64{1000, 2000, 3000} {
		s.Apply(InsertPrice{Point: domain.PricePoint{Token: "SOL", TimestampMs: ts, Price: 1.0}})
	}

	got := s.PricesBetween(1000, 3000)
	if len(got) != 2 {
		t.Fatalf("Expected 2 points in (1000, 3000], got %d", len(got))
	}
	if got[0].TimestampMs != 2000 || got[1].TimestampMs != 3000 {
		t.Errorf("Unexpected window: %+v", got)
	}
}

func TestStore_OpenCycleIndex(t *testing.T) {
	s := New()

	open := domain.Cycle{
		ID: "c1", Coin: "SOL", Threshold: 0.05,
		StartTimeMs: 1000, SequenceStartPrice: 1.0, HighestPrice: 1.0, LowestPrice: 1.0,
	}
	if err := s.Apply(UpsertCycle{Cycle: open}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	got, err := s.OpenCycle("SOL", 0.05)
	if err != nil {
		t.Fatalf("OpenCycle failed: %v", err)
	}
	if got.ID != "c1" {
		t.Errorf("Expected c1, got %s", got.ID)
	}

	// Closing the cycle clears the open index.
	open.EndTimeMs = 2000
	s.Apply(UpsertCycle{Cycle: open})

	if _, err := s.OpenCycle("SOL", 0.05); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after close, got %v", err)
	}
	if len(s.CyclesClosedBetween(0, 3000)) != 1 {
		t.Error("Closed cycle missing from window query")
	}
}

func TestStore_DuplicatePositionRejected(t *testing.T) {
	s := New()

	p := domain.Position{ID: "p1", Token: "SOL", EntryTimeMs: 1000, EntryPrice: 2.0, Status: domain.PositionPending}
	if err := s.Apply(InsertPosition{Position: p}); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	if err := s.Apply(InsertPosition{Position: p}); err == nil {
		t.Error("Expected error for duplicate position id")
	}
}

func TestStore_PositionDefaultsHighestToEntry(t *testing.T) {
	s := New()

	s.Apply(InsertPosition{Position: domain.Position{
		ID: "p1", Token: "SOL", EntryTimeMs: 1000, EntryPrice: 2.0, Status: domain.PositionPending,
	}})

	got, err := s.Position("p1")
	if err != nil {
		t.Fatalf("Position failed: %v", err)
	}
	if got.HighestPrice != 2.0 {
		t.Errorf("Expected highest price 2.0, got %v", got.HighestPrice)
	}
}

func TestStore_PatchIdempotentExit(t *testing.T) {
	s := New()

	s.Apply(InsertPosition{Position: domain.Position{
		ID: "p1", Token: "SOL", EntryTimeMs: 1000, EntryPrice: 2.0, Status: domain.PositionPending,
	}})

	sold := domain.PositionSold
	exitPrice := 2.5
	exitTime := int64(5000)
	patch := PositionPatch{ID: "p1", Status: &sold, ExitPrice: &exitPrice, ExitTimeMs: &exitTime}
	if err := s.Apply(patch); err != nil {
		t.Fatalf("Patch failed: %v", err)
	}

	// Re-applying the exit, or patching anything else afterwards, is a no-op.
	laterPrice := 9.9
	if err := s.Apply(PositionPatch{ID: "p1", ExitPrice: &laterPrice}); err != nil {
		t.Fatalf("Second patch failed: %v", err)
	}

	got, _ := s.Position("p1")
	if got.ExitPrice != 2.5 || got.Status != domain.PositionSold {
		t.Errorf("Terminal position mutated: %+v", got)
	}
	if len(s.PendingPositions()) != 0 {
		t.Error("Sold position still pending")
	}
}

func TestStore_PatchMissingPosition(t *testing.T) {
	s := New()

	price := 1.0
	err := s.Apply(PositionPatch{ID: "nope", HighestPrice: &price})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStore_EvictSparesLiveState(t *testing.T) {
	s := New()

	// Old closed cycle, old open cycle.
	s.Apply(UpsertCycle{Cycle: domain.Cycle{
		ID: "closed", Coin: "SOL", Threshold: 0.05,
		StartTimeMs: 100, EndTimeMs: 200,
		SequenceStartPrice: 1, HighestPrice: 1, LowestPrice: 1,
	}})
	s.Apply(UpsertCycle{Cycle: domain.Cycle{
		ID: "open", Coin: "SOL", Threshold: 0.10,
		StartTimeMs: 100,
		SequenceStartPrice: 1, HighestPrice: 1, LowestPrice: 1,
	}})

	// Old terminal position, old pending position.
	s.Apply(InsertPosition{Position: domain.Position{
		ID: "done", Token: "SOL", EntryTimeMs: 100, EntryPrice: 1,
		Status: domain.PositionSold, ExitTimeMs: 200,
	}})
	s.Apply(InsertPosition{Position: domain.Position{
		ID: "live", Token: "SOL", EntryTimeMs: 100, EntryPrice: 1,
		Status: domain.PositionPending,
	}})

	s.Apply(Evict{TableName: schema.TableCycleTracker, CutoffMs: 1000})
	s.Apply(Evict{TableName: schema.TablePositions, CutoffMs: 1000})

	if len(s.Cycles()) != 1 || s.Cycles()[0].ID != "open" {
		t.Errorf("Open cycle should survive eviction: %+v", s.Cycles())
	}
	if _, err := s.Position("live"); err != nil {
		t.Error("Pending position should survive eviction")
	}
	if _, err := s.Position("done"); !errors.Is(err, ErrNotFound) {
		t.Error("Terminal position should have been evicted")
	}
}

func TestStore_EvictSparesUnarchivablePositions(t *testing.T) {
	s := New()

	// Force-cancelled by the stale-position janitor: terminal, but no exit
	// timestamp, so archival never selects it.
	s.Apply(InsertPosition{Position: domain.Position{
		ID: "cancelled", Token: "SOL", EntryTimeMs: 100, EntryPrice: 1,
		Status: domain.PositionCancelled,
	}})

	s.Apply(Evict{TableName: schema.TablePositions, CutoffMs: 1_000_000})

	if _, err := s.Position("cancelled"); err != nil {
		t.Errorf("Terminal position without an exit time must not be evicted: %v", err)
	}
}

func TestStore_EvictPrices(t *testing.T) {
	s := New()

	for _, ts := range []int64{1000, 2000, 3000} {
		s.Apply(InsertPrice{Point: domain.PricePoint{Token: "SOL", TimestampMs: ts, Price: 1.0}})
	}

	s.Apply(Evict{TableName: schema.TablePrices, CutoffMs: 2500})

	if got := s.PriceRange("SOL", 0, 4000); len(got) != 1 {
		t.Errorf("Expected 1 surviving point, got %d", len(got))
	}
	if s.Stats().Tables[schema.TablePrices].Evicted != 2 {
		t.Errorf("Expected 2 evicted, got %d", s.Stats().Tables[schema.TablePrices].Evicted)
	}
}

func TestStore_EvictUnknownTable(t *testing.T) {
	s := New()

	err := s.Apply(Evict{TableName: "swap_events", CutoffMs: 1000})
	if !errors.Is(err, schema.ErrUnknownTable) {
		t.Errorf("Expected ErrUnknownTable, got %v", err)
	}
}

func TestStore_DeleteCycle(t *testing.T) {
	s := New()

	s.Apply(UpsertCycle{Cycle: domain.Cycle{
		ID: "c1", Coin: "SOL", Threshold: 0.05, StartTimeMs: 100,
		SequenceStartPrice: 1, HighestPrice: 1, LowestPrice: 1,
	}})
	s.Apply(DeleteCycle{ID: "c1"})

	if len(s.Cycles()) != 0 {
		t.Error("Cycle should be deleted")
	}
	if _, err := s.OpenCycle("SOL", 0.05); !errors.Is(err, ErrNotFound) {
		t.Error("Open index should be cleared by delete")
	}
}

func TestStore_ChecksByPosition(t *testing.T) {
	s := New()

	for _, ts := range []int64{3000, 1000, 2000} {
		s.Apply(InsertPriceCheck{Check: domain.PriceCheck{
			PositionID: "p1", CheckedAtMs: ts, CurrentPrice: 1.0, HighestPrice: 1.0,
			ReferencePrice: 1.0, Decision: domain.DecisionHold,
		}})
	}
	s.Apply(InsertPriceCheck{Check: domain.PriceCheck{
		PositionID: "p2", CheckedAtMs: 1500, CurrentPrice: 1.0, HighestPrice: 1.0,
		ReferencePrice: 1.0, Decision: domain.DecisionHold,
	}})

	trail := s.ChecksByPosition("p1")
	if len(trail) != 3 {
		t.Fatalf("Expected 3 checks, got %d", len(trail))
	}
	for i := 1; i < len(trail); i++ {
		if trail[i].CheckedAtMs < trail[i-1].CheckedAtMs {
			t.Error("Audit trail not ordered by check time")
		}
	}
}

func TestStore_ConcurrentReadersDuringWrites(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Single writer, mirroring the drain worker.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5000; i++ {
			s.Apply(InsertPrice{Point: domain.PricePoint{Token: "SOL", TimestampMs: int64(i), Price: float64(i)}})
		}
		close(stop)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				points := s.PriceRange("SOL", 0, 1<<62)
				for i := 1; i < len(points); i++ {
					if points[i].TimestampMs < points[i-1].TimestampMs {
						t.Error("Reader observed unordered series")
						return
					}
				}
			}
		}()
	}

	wg.Wait()
}
