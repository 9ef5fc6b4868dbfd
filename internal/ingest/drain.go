package ingest

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"market-state-engine/internal/hotstore"
	"market-state-engine/internal/observability"
)

// DrainerOptions configures the drain worker.
type DrainerOptions struct {
	// BatchSize is the max rows applied per batch. Default: 256.
	BatchSize int
	// FlushInterval bounds how long a partial batch may wait. Default: 50ms.
	FlushInterval time.Duration
	// MaxRetries bounds the backoff retries for a failing op before it is
	// logged and dropped. Default: 5.
	MaxRetries uint64

	Metrics *observability.Metrics
	Logger  zerolog.Logger
}

// Drainer is the single writer of the hot store. It pulls batches off the
// ingest queue and applies them; nothing else may call store.Apply.
type Drainer struct {
	queue      *Queue
	store      *hotstore.Store
	batchSize  int
	flushEvery time.Duration
	maxRetries uint64
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

// NewDrainer creates the drain worker for a queue/store pair.
func NewDrainer(queue *Queue, store *hotstore.Store, opts DrainerOptions) *Drainer {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 256
	}
	flushEvery := opts.FlushInterval
	if flushEvery <= 0 {
		flushEvery = 50 * time.Millisecond
	}
	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 5
	}
	return &Drainer{
		queue:      queue,
		store:      store,
		batchSize:  batchSize,
		flushEvery: flushEvery,
		maxRetries: maxRetries,
		metrics:    opts.Metrics,
		logger:     opts.Logger.With().Str("component", "drain").Logger(),
	}
}

// Run drains the queue until the context is cancelled or the queue is
// closed and empty. It blocks; run it on its own goroutine.
func (d *Drainer) Run(ctx context.Context) error {
	batch := make([]entry, 0, d.batchSize)
	timer := time.NewTimer(d.flushEvery)
	defer timer.Stop()

	flush := func() {
		if len(batch) > 0 {
			d.applyBatch(ctx, batch)
			batch = batch[:0]
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(d.flushEvery)
	}

	for {
		select {
		case <-ctx.Done():
			d.applyBatch(context.Background(), batch)
			return ctx.Err()

		case e, ok := <-d.queue.ch:
			if !ok {
				flush()
				d.logger.Info().Msg("queue closed, drain worker stopping")
				return nil
			}
			batch = append(batch, e)
			if len(batch) >= d.batchSize {
				flush()
			}

		case <-timer.C:
			flush()
		}
	}
}

// applyBatch applies every op in the batch. A failing op is retried with
// bounded exponential backoff and finally logged and dropped; one malformed
// row never stalls the pipeline.
func (d *Drainer) applyBatch(ctx context.Context, batch []entry) {
	if len(batch) == 0 {
		return
	}
	now := time.Now()
	for _, e := range batch {
		if err := d.applyWithRetry(ctx, e.op); err != nil {
			d.logger.Error().
				Err(err).
				Str("table", e.op.Table()).
				Msg("dropping row after retries exhausted")
			if d.metrics != nil {
				d.metrics.RowsDropped.WithLabelValues(e.op.Table()).Inc()
			}
			continue
		}
		if d.metrics != nil {
			d.metrics.RowsApplied.WithLabelValues(e.op.Table()).Inc()
			d.metrics.DrainLag.Observe(now.Sub(e.enqueued).Seconds())
		}
	}
	if d.metrics != nil {
		d.metrics.BatchesApplied.Inc()
		d.metrics.QueueDepth.Set(float64(len(d.queue.ch)))
	}
}

func (d *Drainer) applyWithRetry(ctx context.Context, op hotstore.Op) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond

	return backoff.Retry(func() error {
		return d.store.Apply(op)
	}, backoff.WithContext(backoff.WithMaxRetries(b, d.maxRetries), ctx))
}
