package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"market-state-engine/internal/domain"
	"market-state-engine/internal/hotstore"
)

// Read-back queries for the durable mirror. These serve verification and
// offline analysis; the hot path never reads from the archive.

// PricesByToken retrieves archived price points for a token, ordered by
// timestamp ASC.
func (s *Sink) PricesByToken(ctx context.Context, token string) ([]domain.PricePoint, error) {
	query := `
		SELECT token, timestamp_ms, price
		FROM prices
		WHERE token = $1
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.pool.Query(ctx, query, token)
	if err != nil {
		return nil, fmt.Errorf("get prices by token: %w", err)
	}
	defer rows.Close()

	var out []domain.PricePoint
	for rows.Next() {
		var p domain.PricePoint
		if err := rows.Scan(&p.Token, &p.TimestampMs, &p.Price); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CycleByID retrieves one archived cycle.
func (s *Sink) CycleByID(ctx context.Context, id string) (domain.Cycle, error) {
	query := `
		SELECT id, coin, threshold, start_time_ms, end_time_ms,
		       sequence_start_price, highest_price, lowest_price,
		       max_percent_increase, total_data_points
		FROM cycle_tracker
		WHERE id = $1
	`

	var c domain.Cycle
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Coin, &c.Threshold, &c.StartTimeMs, &c.EndTimeMs,
		&c.SequenceStartPrice, &c.HighestPrice, &c.LowestPrice,
		&c.MaxPercentIncrease, &c.TotalDataPoints,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Cycle{}, hotstore.ErrNotFound
		}
		return domain.Cycle{}, fmt.Errorf("get cycle by id: %w", err)
	}
	return c, nil
}

// PositionByID retrieves one archived position.
func (s *Sink) PositionByID(ctx context.Context, id string) (domain.Position, error) {
	query := `
		SELECT id, token, entry_time_ms, entry_price, status,
		       highest_price, exit_price, exit_time_ms, policy
		FROM positions
		WHERE id = $1
	`

	var p domain.Position
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Token, &p.EntryTimeMs, &p.EntryPrice, &p.Status,
		&p.HighestPrice, &p.ExitPrice, &p.ExitTimeMs, &p.Policy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, hotstore.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("get position by id: %w", err)
	}
	return p, nil
}
