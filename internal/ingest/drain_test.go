package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"market-state-engine/internal/domain"
	"market-state-engine/internal/hotstore"
	"market-state-engine/internal/schema"
)

// drainAll closes the queue and runs the drainer until empty.
func drainAll(t *testing.T, q *Queue, store *hotstore.Store) {
	t.Helper()
	d := NewDrainer(q, store, DrainerOptions{Logger: zerolog.Nop()})
	q.Close()
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Drainer run failed: %v", err)
	}
}

func TestDrainer_AppliesQueuedOps(t *testing.T) {
	store := hotstore.New()
	q := NewQueue(64, nil)

	for i := int64(1); i <= 10; i++ {
		if err := q.Enqueue(schema.TablePrices, priceRow("SOL", i*1000, float64(i))); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}
	drainAll(t, q, store)

	points := store.PriceRange("SOL", 0, 1<<62)
	if len(points) != 10 {
		t.Fatalf("Expected 10 applied points, got %d", len(points))
	}
}

func TestDrainer_PreservesPerTableOrder(t *testing.T) {
	store := hotstore.New()
	q := NewQueue(64, nil)

	// Insert, patch, then the patch that exits. Order decides the outcome.
	if err := q.Push(hotstore.InsertPosition{Position: domain.Position{
		ID: "p1", Token: "SOL", EntryTimeMs: 1000, EntryPrice: 2.0, Status: domain.PositionPending,
	}}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	high := 2.4
	if err := q.Push(hotstore.PositionPatch{ID: "p1", HighestPrice: &high}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	sold := domain.PositionSold
	exitPrice := 2.3
	exitTime := int64(5000)
	if err := q.Push(hotstore.PositionPatch{ID: "p1", Status: &sold, ExitPrice: &exitPrice, ExitTimeMs: &exitTime}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	drainAll(t, q, store)

	got, err := store.Position("p1")
	if err != nil {
		t.Fatalf("Position failed: %v", err)
	}
	if got.Status != domain.PositionSold || got.HighestPrice != 2.4 || got.ExitPrice != 2.3 {
		t.Errorf("Ops applied out of order: %+v", got)
	}
}

func TestDrainer_DropsFailingOpAndContinues(t *testing.T) {
	store := hotstore.New()
	q := NewQueue(64, nil)

	p := domain.Position{ID: "p1", Token: "SOL", EntryTimeMs: 1000, EntryPrice: 2.0, Status: domain.PositionPending}
	q.Push(hotstore.InsertPosition{Position: p})
	q.Push(hotstore.InsertPosition{Position: p}) // duplicate, will be dropped
	q.Enqueue(schema.TablePrices, priceRow("SOL", 1000, 1.0))

	d := NewDrainer(q, store, DrainerOptions{MaxRetries: 1, Logger: zerolog.Nop()})
	q.Close()
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Drainer run failed: %v", err)
	}

	// The row behind the poisoned op still lands.
	if _, err := store.LatestPrice("SOL"); err != nil {
		t.Error("Row after dropped op was not applied")
	}
}

func TestDrainer_StopsOnContextCancel(t *testing.T) {
	store := hotstore.New()
	q := NewQueue(64, nil)
	d := NewDrainer(q, store, DrainerOptions{Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	q.Enqueue(schema.TablePrices, priceRow("SOL", 1000, 1.0))
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Drainer did not stop on cancel")
	}
}
