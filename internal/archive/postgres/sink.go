package postgres

import (
	"context"
	"fmt"

	"market-state-engine/internal/archive"
	"market-state-engine/internal/domain"
)

// Sink implements archive.Sink using PostgreSQL. Inserts use ON CONFLICT
// DO NOTHING on the natural key so a re-sent batch after a failed pass is
// harmless.
type Sink struct {
	pool *Pool
}

// NewSink creates a new Sink.
func NewSink(pool *Pool) *Sink {
	return &Sink{pool: pool}
}

// Compile-time interface check.
var _ archive.Sink = (*Sink)(nil)

// Name identifies the sink in logs and metrics.
func (s *Sink) Name() string { return "postgres" }

// Close releases the underlying pool.
func (s *Sink) Close() { s.pool.Close() }

// ArchivePrices mirrors price points.
func (s *Sink) ArchivePrices(ctx context.Context, rows []domain.PricePoint) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO prices (token, timestamp_ms, price)
		VALUES ($1, $2, $3)
		ON CONFLICT (token, timestamp_ms) DO NOTHING
	`
	for _, r := range rows {
		if _, err := tx.Exec(ctx, query, r.Token, r.TimestampMs, r.Price); err != nil {
			return fmt.Errorf("insert price: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ArchiveOrderBook mirrors order-book feature rows.
func (s *Sink) ArchiveOrderBook(ctx context.Context, rows []domain.OrderBookFeatureRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO order_book_features (
			timestamp_ms, mid_price, spread,
			bid_depth_1pct, ask_depth_1pct, bid_depth_5pct, ask_depth_5pct,
			imbalance_ratio, microprice_deviation, source
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (timestamp_ms, source) DO NOTHING
	`
	for _, r := range rows {
		_, err := tx.Exec(ctx, query,
			r.TimestampMs, r.MidPrice, r.Spread,
			r.BidDepth1Pct, r.AskDepth1Pct, r.BidDepth5Pct, r.AskDepth5Pct,
			r.ImbalanceRatio, r.MicropriceDeviation, r.Source,
		)
		if err != nil {
			return fmt.Errorf("insert order book row: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ArchiveCycles mirrors closed cycles.
func (s *Sink) ArchiveCycles(ctx context.Context, rows []domain.Cycle) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO cycle_tracker (
			id, coin, threshold, start_time_ms, end_time_ms,
			sequence_start_price, highest_price, lowest_price,
			max_percent_increase, total_data_points
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	for _, r := range rows {
		_, err := tx.Exec(ctx, query,
			r.ID, r.Coin, r.Threshold, r.StartTimeMs, r.EndTimeMs,
			r.SequenceStartPrice, r.HighestPrice, r.LowestPrice,
			r.MaxPercentIncrease, r.TotalDataPoints,
		)
		if err != nil {
			return fmt.Errorf("insert cycle: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ArchivePositions mirrors terminal positions.
func (s *Sink) ArchivePositions(ctx context.Context, rows []domain.Position) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO positions (
			id, token, entry_time_ms, entry_price, status,
			highest_price, exit_price, exit_time_ms, policy
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`
	for _, r := range rows {
		_, err := tx.Exec(ctx, query,
			r.ID, r.Token, r.EntryTimeMs, r.EntryPrice, r.Status,
			r.HighestPrice, r.ExitPrice, r.ExitTimeMs, r.Policy,
		)
		if err != nil {
			return fmt.Errorf("insert position: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ArchivePriceChecks mirrors trailing-stop audit rows.
func (s *Sink) ArchivePriceChecks(ctx context.Context, rows []domain.PriceCheck) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO price_checks (
			position_id, checked_at_ms, current_price, highest_price,
			reference_price, drop_from_high, drop_from_entry,
			tolerance_applied, decision
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (position_id, checked_at_ms) DO NOTHING
	`
	for _, r := range rows {
		_, err := tx.Exec(ctx, query,
			r.PositionID, r.CheckedAtMs, r.CurrentPrice, r.HighestPrice,
			r.ReferencePrice, r.DropFromHigh, r.DropFromEntry,
			r.ToleranceApplied, r.Decision,
		)
		if err != nil {
			return fmt.Errorf("insert price check: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
