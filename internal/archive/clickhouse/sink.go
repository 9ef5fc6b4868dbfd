package clickhouse

import (
	"context"
	"fmt"

	"market-state-engine/internal/archive"
	"market-state-engine/internal/domain"
)

// Sink implements archive.Sink using ClickHouse batch inserts.
type Sink struct {
	conn *Conn
}

// NewSink creates a new Sink.
func NewSink(conn *Conn) *Sink {
	return &Sink{conn: conn}
}

// Compile-time interface check.
var _ archive.Sink = (*Sink)(nil)

// Name identifies the sink in logs and metrics.
func (s *Sink) Name() string { return "clickhouse" }

// Close releases the underlying connection.
func (s *Sink) Close() { s.conn.Close() }

// ArchivePrices mirrors price points.
func (s *Sink) ArchivePrices(ctx context.Context, rows []domain.PricePoint) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO prices (token, timestamp_ms, price)
	`)
	if err != nil {
		return fmt.Errorf("prepare prices batch: %w", err)
	}

	for _, r := range rows {
		if err := batch.Append(r.Token, r.TimestampMs, r.Price); err != nil {
			return fmt.Errorf("append price: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send prices batch: %w", err)
	}
	return nil
}

// ArchiveOrderBook mirrors order-book feature rows.
func (s *Sink) ArchiveOrderBook(ctx context.Context, rows []domain.OrderBookFeatureRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO order_book_features (
			timestamp_ms, mid_price, spread,
			bid_depth_1pct, ask_depth_1pct, bid_depth_5pct, ask_depth_5pct,
			imbalance_ratio, microprice_deviation, source
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare order book batch: %w", err)
	}

	for _, r := range rows {
		err := batch.Append(
			r.TimestampMs, r.MidPrice, r.Spread,
			r.BidDepth1Pct, r.AskDepth1Pct, r.BidDepth5Pct, r.AskDepth5Pct,
			r.ImbalanceRatio, r.MicropriceDeviation, r.Source,
		)
		if err != nil {
			return fmt.Errorf("append order book row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send order book batch: %w", err)
	}
	return nil
}

// ArchiveCycles mirrors closed cycles.
func (s *Sink) ArchiveCycles(ctx context.Context, rows []domain.Cycle) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO cycle_tracker (
			id, coin, threshold, start_time_ms, end_time_ms,
			sequence_start_price, highest_price, lowest_price,
			max_percent_increase, total_data_points
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare cycles batch: %w", err)
	}

	for _, r := range rows {
		err := batch.Append(
			r.ID, r.Coin, r.Threshold, r.StartTimeMs, r.EndTimeMs,
			r.SequenceStartPrice, r.HighestPrice, r.LowestPrice,
			r.MaxPercentIncrease, r.TotalDataPoints,
		)
		if err != nil {
			return fmt.Errorf("append cycle: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send cycles batch: %w", err)
	}
	return nil
}

// ArchivePositions mirrors terminal positions.
func (s *Sink) ArchivePositions(ctx context.Context, rows []domain.Position) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO positions (
			id, token, entry_time_ms, entry_price, status,
			highest_price, exit_price, exit_time_ms, policy
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare positions batch: %w", err)
	}

	for _, r := range rows {
		err := batch.Append(
			r.ID, r.Token, r.EntryTimeMs, r.EntryPrice, r.Status,
			r.HighestPrice, r.ExitPrice, r.ExitTimeMs, r.Policy,
		)
		if err != nil {
			return fmt.Errorf("append position: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send positions batch: %w", err)
	}
	return nil
}

// ArchivePriceChecks mirrors trailing-stop audit rows.
func (s *Sink) ArchivePriceChecks(ctx context.Context, rows []domain.PriceCheck) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_checks (
			position_id, checked_at_ms, current_price, highest_price,
			reference_price, drop_from_high, drop_from_entry,
			tolerance_applied, decision
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare price checks batch: %w", err)
	}

	for _, r := range rows {
		err := batch.Append(
			r.PositionID, r.CheckedAtMs, r.CurrentPrice, r.HighestPrice,
			r.ReferencePrice, r.DropFromHigh, r.DropFromEntry,
			r.ToleranceApplied, r.Decision,
		)
		if err != nil {
			return fmt.Errorf("append price check: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send price checks batch: %w", err)
	}
	return nil
}
