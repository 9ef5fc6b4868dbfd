package archive

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"market-state-engine/internal/domain"
	"market-state-engine/internal/hotstore"
	"market-state-engine/internal/observability"
	"market-state-engine/internal/schema"
)

// SyncerOptions configures the archival sync job.
type SyncerOptions struct {
	// Interval is the cadence of sync passes. Default: 60s.
	Interval time.Duration
	// Lag keeps the freshest rows out of each pass so late points settle
	// before they are archived. Default: 5s.
	Lag time.Duration
	// RemoteTimeout bounds each remote sink call. Default: 30s.
	RemoteTimeout time.Duration

	Metrics *observability.Metrics
	Logger  zerolog.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Syncer periodically exports newly completed rows to a local snapshot
// partition and the remote durable sink. Rows count as archived only after
// both destinations succeed; on failure the checkpoint stays put and the
// same rows are retried on the next pass. Eviction never waits for it: the
// hot window is a hard cap regardless of sync health.
type Syncer struct {
	store         *hotstore.Store
	writer        *SnapshotWriter
	sink          Sink
	interval      time.Duration
	lag           time.Duration
	remoteTimeout time.Duration
	metrics       *observability.Metrics
	logger        zerolog.Logger
	now           func() time.Time

	checkpoints map[string]int64 // last archived timestamp per table
}

// NewSyncer creates the archival sync job.
func NewSyncer(store *hotstore.Store, writer *SnapshotWriter, sink Sink, opts SyncerOptions) *Syncer {
	interval := opts.Interval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	lag := opts.Lag
	if lag <= 0 {
		lag = 5 * time.Second
	}
	remoteTimeout := opts.RemoteTimeout
	if remoteTimeout <= 0 {
		remoteTimeout = 30 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Syncer{
		store:         store,
		writer:        writer,
		sink:          sink,
		interval:      interval,
		lag:           lag,
		remoteTimeout: remoteTimeout,
		metrics:       opts.Metrics,
		logger:        opts.Logger.With().Str("component", "archive").Logger(),
		now:           now,
		checkpoints:   make(map[string]int64),
	}
}

// Run executes sync passes until the context is cancelled. The syncer has
// its own schedule and communicates failure via logs and metrics; it never
// stalls ingestion or the state machines.
func (s *Syncer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.SyncOnce(ctx); err != nil {
				s.logger.Error().Err(err).Msg("archival sync pass failed")
			}
		}
	}
}

// SyncOnce runs one archival pass over every table.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	runID := uuid.NewString()
	watermark := s.now().Add(-s.lag).UnixMilli()
	logger := s.logger.With().Str("run_id", runID).Logger()

	var firstErr error
	for _, table := range schema.Tables() {
		if err := s.syncTable(ctx, table, watermark); err != nil {
			logger.Error().Err(err).Str("table", table).Msg("table sync failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
	}
	if firstErr == nil && s.metrics != nil {
		s.metrics.LastSuccessfulSync.Set(float64(s.now().Unix()))
	}
	return firstErr
}

func (s *Syncer) syncTable(ctx context.Context, table string, watermark int64) error {
	checkpoint := s.checkpoints[table]
	if watermark <= checkpoint {
		return nil
	}

	partitions, archive, count := s.collect(table, checkpoint, watermark)
	if count == 0 {
		s.checkpoints[table] = watermark
		return nil
	}

	for _, p := range partitions {
		if err := s.writer.Write(p); err != nil {
			s.fail("snapshot")
			return fmt.Errorf("write %s partition %d: %w", table, p.BucketStartMs, err)
		}
		if s.metrics != nil {
			s.metrics.SnapshotsWritten.Inc()
		}
	}

	if err := s.withRetry(ctx, archive); err != nil {
		s.fail("remote")
		return fmt.Errorf("mirror %s to %s: %w", table, s.sink.Name(), err)
	}

	s.checkpoints[table] = watermark
	if s.metrics != nil {
		s.metrics.RowsArchived.WithLabelValues(table).Add(float64(count))
	}
	return nil
}

// collect gathers the table's newly completed rows, bucketed into snapshot
// partitions, plus the closure that mirrors them to the remote sink.
// "Completed" means immutable: any row for the append-only tables, closed
// cycles, and terminal positions.
func (s *Syncer) collect(table string, after, upTo int64) ([]Partition, func(context.Context) error, int) {
	switch table {
	case schema.TablePrices:
		rows := s.store.PricesBetween(after, upTo)
		partitions := splitBuckets(rows,
			func(r domain.PricePoint) int64 { return r.TimestampMs },
			pricesPartition)
		return partitions, func(ctx context.Context) error { return s.sink.ArchivePrices(ctx, rows) }, len(rows)

	case schema.TableOrderBook:
		rows := s.store.OrderBookBetween(after, upTo)
		partitions := splitBuckets(rows,
			func(r domain.OrderBookFeatureRow) int64 { return r.TimestampMs },
			orderBookPartition)
		return partitions, func(ctx context.Context) error { return s.sink.ArchiveOrderBook(ctx, rows) }, len(rows)

	case schema.TableCycleTracker:
		rows := s.store.CyclesClosedBetween(after, upTo)
		partitions := splitBuckets(rows,
			func(r domain.Cycle) int64 { return r.EndTimeMs },
			cyclesPartition)
		return partitions, func(ctx context.Context) error { return s.sink.ArchiveCycles(ctx, rows) }, len(rows)

	case schema.TablePositions:
		rows := s.store.PositionsClosedBetween(after, upTo)
		partitions := splitBuckets(rows,
			func(r domain.Position) int64 { return r.ExitTimeMs },
			positionsPartition)
		return partitions, func(ctx context.Context) error { return s.sink.ArchivePositions(ctx, rows) }, len(rows)

	case schema.TablePriceChecks:
		rows := s.store.ChecksBetween(after, upTo)
		partitions := splitBuckets(rows,
			func(r domain.PriceCheck) int64 { return r.CheckedAtMs },
			checksPartition)
		return partitions, func(ctx context.Context) error { return s.sink.ArchivePriceChecks(ctx, rows) }, len(rows)

	default:
		return nil, nil, 0
	}
}

// splitBuckets groups rows by snapshot bucket and encodes one partition per
// bucket, preserving row order within each.
func splitBuckets[T any](rows []T, ts func(T) int64, encode func(int64, []T) Partition) []Partition {
	if len(rows) == 0 {
		return nil
	}
	grouped := make(map[int64][]T)
	var order []int64
	for _, r := range rows {
		b := bucketStart(ts(r))
		if _, ok := grouped[b]; !ok {
			order = append(order, b)
		}
		grouped[b] = append(grouped[b], r)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]Partition, 0, len(order))
	for _, b := range order {
		out = append(out, encode(b, grouped[b]))
	}
	return out
}

func (s *Syncer) withRetry(ctx context.Context, op func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	return backoff.Retry(func() error {
		callCtx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
		defer cancel()
		return op(callCtx)
	}, backoff.WithContext(backoff.WithMaxRetries(b, 4), ctx))
}

// RewriteCycles re-encodes closed cycles into bucketed partitions and
// rewrites their snapshot files. The offline repair pass uses this after
// purging corrupted rows.
func RewriteCycles(w *SnapshotWriter, rows []domain.Cycle) error {
	for _, p := range splitBuckets(rows, func(r domain.Cycle) int64 { return r.EndTimeMs }, cyclesPartition) {
		if err := w.Write(p); err != nil {
			return fmt.Errorf("rewrite cycle partition %d: %w", p.BucketStartMs, err)
		}
	}
	return nil
}

func (s *Syncer) fail(stage string) {
	if s.metrics != nil {
		s.metrics.SyncFailures.WithLabelValues(stage).Inc()
	}
}
