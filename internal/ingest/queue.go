// Package ingest implements the bounded write queue in front of the hot
// store and the single drain worker that applies queued ops to it.
package ingest

import (
	"errors"
	"sync/atomic"
	"time"

	"market-state-engine/internal/hotstore"
	"market-state-engine/internal/observability"
	"market-state-engine/internal/schema"
)

// ErrQueueSaturated is returned when the queue is full. The producer owns
// backpressure: drop-oldest, retry, or shed load. The queue never blocks
// and never silently drops.
var ErrQueueSaturated = errors.New("ingest queue saturated")

// ErrQueueClosed is returned once the queue has been closed for shutdown.
var ErrQueueClosed = errors.New("ingest queue closed")

// entry wraps an op with its enqueue time so the drain worker can report lag.
type entry struct {
	op       hotstore.Op
	enqueued time.Time
}

// Queue is the bounded, ordered ingest queue. A single channel drained by
// one worker preserves enqueue order within every table.
type Queue struct {
	ch      chan entry
	closed  atomic.Bool
	metrics *observability.Metrics
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int, metrics *observability.Metrics) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch:      make(chan entry, capacity),
		metrics: metrics,
	}
}

// Enqueue validates a row map against the named table's schema and queues
// the resulting write. Unknown tables and unknown or malformed columns are
// a hard error; a full queue returns ErrQueueSaturated.
func (q *Queue) Enqueue(table string, row map[string]any) error {
	tbl, err := schema.Lookup(table)
	if err != nil {
		q.reject(table, "unknown_table")
		return err
	}
	normalized, err := tbl.NormalizeRow(row)
	if err != nil {
		q.reject(table, "schema_violation")
		return err
	}
	op, err := opFromRow(table, normalized)
	if err != nil {
		q.reject(table, "schema_violation")
		return err
	}
	return q.Push(op)
}

// Push queues an already-typed op. Internal producers (the cycle tracker
// and the trailing-stop engine) use this path so their derived writes flow
// through the same single-writer queue as external rows.
func (q *Queue) Push(op hotstore.Op) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	select {
	case q.ch <- entry{op: op, enqueued: time.Now()}:
		if q.metrics != nil {
			q.metrics.RowsEnqueued.WithLabelValues(op.Table()).Inc()
			q.metrics.QueueDepth.Set(float64(len(q.ch)))
		}
		return nil
	default:
		q.reject(op.Table(), "saturated")
		return ErrQueueSaturated
	}
}

// Depth returns the current number of queued ops.
func (q *Queue) Depth() int {
	return len(q.ch)
}

// Close stops the queue from accepting new ops. The drain worker keeps
// running until the channel is empty.
func (q *Queue) Close() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.ch)
	}
}

func (q *Queue) reject(table, reason string) {
	if q.metrics != nil {
		q.metrics.EnqueueRejected.WithLabelValues(table, reason).Inc()
	}
}
