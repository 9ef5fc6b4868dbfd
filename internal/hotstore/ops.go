package hotstore

import (
	"fmt"

	"market-state-engine/internal/domain"
	"market-state-engine/internal/schema"
)

// InsertPrice appends one price point.
type InsertPrice struct {
	Point domain.PricePoint
}

func (op InsertPrice) Table() string { return schema.TablePrices }

func (op InsertPrice) apply(s *Store) error {
	if op.Point.Token == "" {
		return fmt.Errorf("insert price: empty token")
	}
	s.prices.insert(op.Point)
	return nil
}

// InsertOrderBook appends one order-book feature row.
type InsertOrderBook struct {
	Row domain.OrderBookFeatureRow
}

func (op InsertOrderBook) Table() string { return schema.TableOrderBook }

func (op InsertOrderBook) apply(s *Store) error {
	s.orderBook.insert(op.Row)
	return nil
}

// UpsertCycle creates or replaces a cycle row. The cycle tracker owns every
// field of the row, so a full upsert keyed by id is safe.
type UpsertCycle struct {
	Cycle domain.Cycle
}

func (op UpsertCycle) Table() string { return schema.TableCycleTracker }

func (op UpsertCycle) apply(s *Store) error {
	if op.Cycle.ID == "" {
		return fmt.Errorf("upsert cycle: empty id")
	}
	s.cycles.upsert(op.Cycle)
	return nil
}

// InsertPosition creates a new position row. Duplicate ids are rejected so
// an external producer cannot clobber a live position.
type InsertPosition struct {
	Position domain.Position
}

func (op InsertPosition) Table() string { return schema.TablePositions }

func (op InsertPosition) apply(s *Store) error {
	if op.Position.ID == "" {
		return fmt.Errorf("insert position: empty id")
	}
	return s.positions.insert(op.Position)
}

// PositionPatch updates only the columns the trailing-stop engine owns.
// Nil fields are left untouched. The patch is a no-op when the position is
// no longer pending, which keeps exits idempotent and keeps the engine from
// racing the stale-position janitor.
type PositionPatch struct {
	ID           string
	HighestPrice *float64
	Status       *string
	ExitPrice    *float64
	ExitTimeMs   *int64
}

func (op PositionPatch) Table() string { return schema.TablePositions }

func (op PositionPatch) apply(s *Store) error {
	return s.positions.patch(op)
}

// InsertPriceCheck appends one trailing-stop audit row.
type InsertPriceCheck struct {
	Check domain.PriceCheck
}

func (op InsertPriceCheck) Table() string { return schema.TablePriceChecks }

func (op InsertPriceCheck) apply(s *Store) error {
	if op.Check.PositionID == "" {
		return fmt.Errorf("insert price check: empty position id")
	}
	s.checks.insert(op.Check)
	return nil
}

// DeleteCycle removes a cycle row by id. Used by the offline integrity
// pass to purge corrupted rows; the online state machine never issues it.
type DeleteCycle struct {
	ID string
}

func (op DeleteCycle) Table() string { return schema.TableCycleTracker }

func (op DeleteCycle) apply(s *Store) error {
	s.cycles.delete(op.ID)
	return nil
}

// Evict deletes rows older than CutoffMs from one table. Open cycles and
// pending positions are live state, not history, and are never evicted.
type Evict struct {
	TableName string
	CutoffMs  int64
}

func (op Evict) Table() string { return op.TableName }

func (op Evict) apply(s *Store) error {
	switch op.TableName {
	case schema.TablePrices:
		s.prices.evictBefore(op.CutoffMs)
	case schema.TableOrderBook:
		s.orderBook.evictBefore(op.CutoffMs)
	case schema.TableCycleTracker:
		s.cycles.evictBefore(op.CutoffMs)
	case schema.TablePositions:
		s.positions.evictBefore(op.CutoffMs)
	case schema.TablePriceChecks:
		s.checks.evictBefore(op.CutoffMs)
	default:
		return fmt.Errorf("evict: %w: %s", schema.ErrUnknownTable, op.TableName)
	}
	return nil
}
