package archive

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"market-state-engine/internal/hotstore"
	"market-state-engine/internal/ingest"
	"market-state-engine/internal/observability"
)

// RetentionOptions configures the retention janitor.
type RetentionOptions struct {
	// Windows is the per-table hot window. Tables without an entry are
	// never evicted.
	Windows map[string]time.Duration
	// CleanupInterval is how often eviction runs. Default: 1h.
	CleanupInterval time.Duration

	Metrics *observability.Metrics
	Logger  zerolog.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Janitor enforces the per-table hot window. Evictions are issued as
// ordinary queued writes so they serialize with ingestion and run with
// minimal impact on concurrent reads.
type Janitor struct {
	store    *hotstore.Store
	queue    *ingest.Queue
	windows  map[string]time.Duration
	interval time.Duration
	metrics  *observability.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

// NewJanitor creates the retention janitor.
func NewJanitor(store *hotstore.Store, queue *ingest.Queue, opts RetentionOptions) *Janitor {
	interval := opts.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Janitor{
		store:    store,
		queue:    queue,
		windows:  opts.Windows,
		interval: interval,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With().Str("component", "retention").Logger(),
		now:      now,
	}
}

// Run evicts expired rows on the cleanup interval until the context is
// cancelled.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.EvictOnce()
		}
	}
}

// EvictOnce queues one eviction op per configured table.
func (j *Janitor) EvictOnce() {
	now := j.now()
	for table, window := range j.windows {
		cutoff := now.Add(-window).UnixMilli()
		if err := j.queue.Push(hotstore.Evict{TableName: table, CutoffMs: cutoff}); err != nil {
			j.logger.Warn().
				Err(err).
				Str("table", table).
				Msg("eviction op rejected by queue")
		}
	}
	j.publishGauges()
}

func (j *Janitor) publishGauges() {
	if j.metrics == nil {
		return
	}
	stats := j.store.Stats()
	for table, ts := range stats.Tables {
		j.metrics.RowsEvicted.WithLabelValues(table).Set(float64(ts.Evicted))
	}
}
