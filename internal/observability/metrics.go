// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	// Ingest metrics
	RowsEnqueued    *prometheus.CounterVec
	EnqueueRejected *prometheus.CounterVec
	QueueDepth      prometheus.Gauge
	BatchesApplied  prometheus.Counter
	RowsApplied     *prometheus.CounterVec
	RowsDropped     *prometheus.CounterVec
	DrainLag        prometheus.Histogram
	RowsEvicted     *prometheus.GaugeVec

	// Archival metrics
	SnapshotsWritten   prometheus.Counter
	RowsArchived       *prometheus.CounterVec
	SyncFailures       *prometheus.CounterVec
	LastSuccessfulSync prometheus.Gauge

	// Cycle tracker metrics
	CyclesOpened prometheus.Counter
	CyclesClosed prometheus.Counter
	OpenCycles   *prometheus.GaugeVec

	// Feed metrics
	FeedMessages   *prometheus.CounterVec
	FeedReconnects prometheus.Counter

	// Trailing-stop metrics
	Evaluations        *prometheus.CounterVec
	EvaluationsSkipped prometheus.Counter
	PositionsExited    prometheus.Counter
	PendingPositions   prometheus.Gauge
}

// NewMetrics creates a Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "market_state_engine"
	}

	return &Metrics{
		RowsEnqueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "rows_enqueued_total",
			Help:      "Total rows accepted by the ingest queue",
		}, []string{"table"}),
		EnqueueRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "enqueue_rejected_total",
			Help:      "Total enqueue attempts rejected by reason",
		}, []string{"table", "reason"}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "queue_depth",
			Help:      "Current number of queued write ops",
		}),
		BatchesApplied: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "batches_applied_total",
			Help:      "Total batches applied by the drain worker",
		}),
		RowsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "rows_applied_total",
			Help:      "Total rows applied to the hot store",
		}, []string{"table"}),
		RowsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "rows_dropped_total",
			Help:      "Total rows dropped after retries were exhausted",
		}, []string{"table"}),
		DrainLag: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "drain_lag_seconds",
			Help:      "Time between enqueue and hot-store apply",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
		RowsEvicted: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hotstore",
			Name:      "rows_evicted",
			Help:      "Cumulative rows evicted from the hot store per table",
		}, []string{"table"}),

		SnapshotsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "snapshots_written_total",
			Help:      "Total snapshot partitions written to disk",
		}),
		RowsArchived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "rows_archived_total",
			Help:      "Total rows mirrored to durable storage per table",
		}, []string{"table"}),
		SyncFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "sync_failures_total",
			Help:      "Total archival sync failures by stage",
		}, []string{"stage"}),
		LastSuccessfulSync: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "last_successful_sync_timestamp",
			Help:      "Unix timestamp of the last fully successful archival sync",
		}),

		CyclesOpened: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycles",
			Name:      "opened_total",
			Help:      "Total cycles opened",
		}),
		CyclesClosed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycles",
			Name:      "closed_total",
			Help:      "Total cycles closed",
		}),
		OpenCycles: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycles",
			Name:      "open",
			Help:      "Currently open cycles per threshold",
		}, []string{"threshold"}),

		FeedMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "messages_total",
			Help:      "Total feed messages received by channel",
		}, []string{"channel"}),
		FeedReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "reconnects_total",
			Help:      "Total feed reconnect attempts",
		}),

		Evaluations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trailing",
			Name:      "evaluations_total",
			Help:      "Total trailing-stop evaluations by decision",
		}, []string{"decision"}),
		EvaluationsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trailing",
			Name:      "evaluations_skipped_total",
			Help:      "Evaluations skipped because no price was observable",
		}),
		PositionsExited: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trailing",
			Name:      "positions_exited_total",
			Help:      "Total positions exited by the trailing-stop engine",
		}),
		PendingPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trailing",
			Name:      "positions_pending",
			Help:      "Currently pending positions",
		}),
	}
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
