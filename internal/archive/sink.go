package archive

import (
	"context"

	"market-state-engine/internal/domain"
)

// Sink mirrors completed hot-store rows to a remote durable database.
// Implementations must be idempotent on replay: after a failed sync the
// same rows are re-sent on the next pass.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	ArchivePrices(ctx context.Context, rows []domain.PricePoint) error
	ArchiveOrderBook(ctx context.Context, rows []domain.OrderBookFeatureRow) error
	ArchiveCycles(ctx context.Context, rows []domain.Cycle) error
	ArchivePositions(ctx context.Context, rows []domain.Position) error
	ArchivePriceChecks(ctx context.Context, rows []domain.PriceCheck) error

	Close()
}
