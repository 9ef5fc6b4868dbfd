// Package hotstore implements the in-memory market-state store.
//
// The store holds the hot window of every registered table. It is mutated
// exclusively through Apply, which must only ever be called by the single
// drain worker; readers take per-table read locks and receive copies, so
// an unbounded number of concurrent queries never observe a partially
// written row.
package hotstore

import (
	"errors"

	"market-state-engine/internal/domain"
	"market-state-engine/internal/schema"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store is the hot-data store for all registered tables.
type Store struct {
	prices    priceTable
	orderBook orderBookTable
	cycles    cycleTable
	positions positionTable
	checks    checkTable
}

// New creates an empty hot store.
func New() *Store {
	s := &Store{}
	s.prices.init()
	s.orderBook.init()
	s.cycles.init()
	s.positions.init()
	s.checks.init()
	return s
}

// Op is a single mutation applied to the store by the drain worker.
type Op interface {
	// Table names the table the op targets, for ordering and metrics.
	Table() string

	apply(s *Store) error
}

// Apply executes one op. Only the drain worker may call this.
func (s *Store) Apply(op Op) error {
	return op.apply(s)
}

// TableStats holds per-table row accounting.
type TableStats struct {
	Rows    int
	Evicted int64
}

// Stats is a point-in-time snapshot of store occupancy, polled by the
// health/metrics surface.
type Stats struct {
	Tables           map[string]TableStats
	OpenCycles       map[float64]int // open cycle count per threshold
	PendingPositions int
}

// Stats collects current row counts and eviction totals.
func (s *Store) Stats() Stats {
	st := Stats{Tables: make(map[string]TableStats, 5)}
	st.Tables[schema.TablePrices] = s.prices.stats()
	st.Tables[schema.TableOrderBook] = s.orderBook.stats()
	st.Tables[schema.TableCycleTracker] = s.cycles.stats()
	st.Tables[schema.TablePositions] = s.positions.stats()
	st.Tables[schema.TablePriceChecks] = s.checks.stats()
	st.OpenCycles = s.cycles.openPerThreshold()
	st.PendingPositions = len(s.positions.Pending())
	return st
}

// LatestPrice returns the most recent price point for a token.
func (s *Store) LatestPrice(token string) (domain.PricePoint, error) {
	return s.prices.Latest(token)
}

// PriceRange returns price points for a token within [from, to] inclusive,
// ordered by timestamp ascending.
func (s *Store) PriceRange(token string, from, to int64) []domain.PricePoint {
	return s.prices.Range(token, from, to)
}

// PricesBetween returns price points across all tokens with timestamps in
// (after, upTo], ordered by timestamp. Used by the archival sync.
func (s *Store) PricesBetween(after, upTo int64) []domain.PricePoint {
	return s.prices.Between(after, upTo)
}

// OrderBookRange returns feature rows within [from, to] inclusive.
func (s *Store) OrderBookRange(from, to int64) []domain.OrderBookFeatureRow {
	return s.orderBook.Range(from, to)
}

// OrderBookBetween returns feature rows with timestamps in (after, upTo].
func (s *Store) OrderBookBetween(after, upTo int64) []domain.OrderBookFeatureRow {
	return s.orderBook.Range(after+1, upTo)
}

// OpenCycle returns the currently open cycle for a (coin, threshold) key.
func (s *Store) OpenCycle(coin string, threshold float64) (domain.Cycle, error) {
	return s.cycles.Open(coin, threshold)
}

// OpenCycles returns every open cycle.
func (s *Store) OpenCycles() []domain.Cycle {
	return s.cycles.AllOpen()
}

// Cycles returns every cycle currently in the hot window, open and closed.
func (s *Store) Cycles() []domain.Cycle {
	return s.cycles.All()
}

// CyclesClosedBetween returns cycles whose end time lies in (after, upTo].
func (s *Store) CyclesClosedBetween(after, upTo int64) []domain.Cycle {
	return s.cycles.ClosedBetween(after, upTo)
}

// Position returns a position by id.
func (s *Store) Position(id string) (domain.Position, error) {
	return s.positions.Get(id)
}

// PendingPositions returns every position still in pending status.
func (s *Store) PendingPositions() []domain.Position {
	return s.positions.Pending()
}

// PositionsClosedBetween returns terminal positions whose exit time lies in
// (after, upTo].
func (s *Store) PositionsClosedBetween(after, upTo int64) []domain.Position {
	return s.positions.ClosedBetween(after, upTo)
}

// ChecksByPosition returns the audit trail for one position, ordered by
// check time ascending.
func (s *Store) ChecksByPosition(positionID string) []domain.PriceCheck {
	return s.checks.ByPosition(positionID)
}

// ChecksBetween returns audit rows with check times in (after, upTo].
func (s *Store) ChecksBetween(after, upTo int64) []domain.PriceCheck {
	return s.checks.Between(after, upTo)
}
