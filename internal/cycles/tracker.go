// Package cycles tracks bounded price cycles: rise-then-retrace episodes
// delimited by a configured percentage drawdown from the running peak.
package cycles

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"market-state-engine/internal/domain"
	"market-state-engine/internal/hotstore"
	"market-state-engine/internal/idhash"
	"market-state-engine/internal/ingest"
	"market-state-engine/internal/observability"
)

// TrackerOptions configures a cycle tracker.
type TrackerOptions struct {
	// Coins are the tokens to track.
	Coins []string
	// Thresholds are the drawdown fractions; one independent state machine
	// runs per (coin, threshold).
	Thresholds []float64
	// PollInterval is how often new price points are pulled from the store.
	// Default: 1s.
	PollInterval time.Duration

	Metrics *observability.Metrics
	Logger  zerolog.Logger
}

// Tracker maintains one cycle state machine per (coin, threshold). It is
// the sole owner of cycle rows: the in-memory machine state is
// authoritative and every transition is mirrored to the hot store through
// the ingest queue.
type Tracker struct {
	store        *hotstore.Store
	queue        *ingest.Queue
	coins        []string
	thresholds   []float64
	pollInterval time.Duration
	metrics      *observability.Metrics
	logger       zerolog.Logger

	// machines holds the open cycle per (coin, threshold); absence means
	// the NoCycle state.
	machines   map[string]*domain.Cycle
	watermarks map[string]int64 // last consumed price timestamp per coin
}

// NewTracker creates a cycle tracker over the given store and queue.
func NewTracker(store *hotstore.Store, queue *ingest.Queue, opts TrackerOptions) *Tracker {
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	thresholds := append([]float64(nil), opts.Thresholds...)
	sort.Float64s(thresholds)

	return &Tracker{
		store:        store,
		queue:        queue,
		coins:        append([]string(nil), opts.Coins...),
		thresholds:   thresholds,
		pollInterval: pollInterval,
		metrics:      opts.Metrics,
		logger:       opts.Logger.With().Str("component", "cycles").Logger(),
		machines:     make(map[string]*domain.Cycle),
		watermarks:   make(map[string]int64),
	}
}

func machineKey(coin string, threshold float64) string {
	return coin + "|" + strconv.FormatFloat(threshold, 'f', 6, 64)
}

// Seed adopts open cycles already present in the hot store, so a restart
// resumes the machines instead of opening duplicate cycles.
func (t *Tracker) Seed() {
	for _, c := range t.store.OpenCycles() {
		cycle := c
		t.machines[machineKey(c.Coin, c.Threshold)] = &cycle
	}
	// Every point already committed is reflected in the adopted cycles;
	// replaying them would inflate their stats. Polling resumes strictly
	// after the newest committed point.
	for _, coin := range t.coins {
		if latest, err := t.store.LatestPrice(coin); err == nil {
			t.watermarks[coin] = latest.TimestampMs
		}
	}
	t.logger.Info().
		Int("open_cycles", len(t.machines)).
		Floats64("thresholds", t.thresholds).
		Msg("cycle tracker seeded")
}

// Run polls the store for new price points and advances the machines until
// the context is cancelled. Each tick is cheap and independently skippable;
// a slow poll never blocks the next one.
func (t *Tracker) Run(ctx context.Context) error {
	t.Seed()
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.poll()
		}
	}
}

// poll consumes price points committed since each coin's watermark.
func (t *Tracker) poll() {
	for _, coin := range t.coins {
		latest, err := t.store.LatestPrice(coin)
		if err != nil {
			continue // no data yet
		}
		watermark := t.watermarks[coin]
		if latest.TimestampMs <= watermark {
			continue
		}
		for _, p := range t.store.PriceRange(coin, watermark+1, latest.TimestampMs) {
			t.ProcessPoint(p)
		}
		t.watermarks[coin] = latest.TimestampMs
	}
	t.publishGauges()
}

// ProcessPoint advances every threshold's machine with one price point.
// Thresholds are fully decoupled: each is evaluated and, when warranted,
// closed independently even on the same tick.
func (t *Tracker) ProcessPoint(p domain.PricePoint) {
	for _, threshold := range t.thresholds {
		t.advance(p, threshold)
	}
}

func (t *Tracker) advance(p domain.PricePoint, threshold float64) {
	key := machineKey(p.Token, threshold)
	cycle, ok := t.machines[key]
	if !ok {
		// NoCycle -> Open. Also covers an unmatched point after a cold
		// start: seed a fresh cycle rather than drop the tick.
		t.open(key, p, threshold, nil)
		return
	}

	cycle.TotalDataPoints++
	if p.Price > cycle.HighestPrice {
		cycle.HighestPrice = p.Price
	}
	if p.Price < cycle.LowestPrice {
		cycle.LowestPrice = p.Price
	}
	if inc := (cycle.HighestPrice - cycle.SequenceStartPrice) / cycle.SequenceStartPrice; inc > cycle.MaxPercentIncrease {
		cycle.MaxPercentIncrease = inc
	}

	if (cycle.HighestPrice-p.Price)/cycle.HighestPrice >= threshold {
		// Open -> Closed, then immediately reseed with the closing price
		// as the new cycle's zero point so cycles tile the series.
		cycle.EndTimeMs = p.TimestampMs
		t.mirror(*cycle)
		delete(t.machines, key)
		if t.metrics != nil {
			t.metrics.CyclesClosed.Inc()
		}
		t.logger.Debug().
			Str("coin", p.Token).
			Float64("threshold", threshold).
			Float64("peak", cycle.HighestPrice).
			Float64("close_price", p.Price).
			Msg("cycle closed")
		t.open(key, p, threshold, cycle)
		return
	}

	t.mirror(*cycle)
}

// open starts a cycle whose zero point is the given price: the first price
// seen for the key, or the price that closed the previous cycle. prev is
// that closed predecessor, or nil from the NoCycle state.
func (t *Tracker) open(key string, p domain.PricePoint, threshold float64, prev *domain.Cycle) {
	id := idhash.ComputeCycleID(p.Token, threshold, p.TimestampMs)
	if prev != nil && prev.StartTimeMs == p.TimestampMs {
		// The predecessor opened and closed within this millisecond, so the
		// base id would repeat it and the mirror upsert would overwrite the
		// closed row.
		id = idhash.ComputeReseedCycleID(p.Token, threshold, p.TimestampMs, prev.ID)
	}
	cycle := &domain.Cycle{
		ID:                 id,
		Coin:               p.Token,
		Threshold:          threshold,
		StartTimeMs:        p.TimestampMs,
		SequenceStartPrice: p.Price,
		HighestPrice:       p.Price,
		LowestPrice:        p.Price,
		TotalDataPoints:    1,
	}
	t.machines[key] = cycle
	t.mirror(*cycle)
	if t.metrics != nil {
		t.metrics.CyclesOpened.Inc()
	}
}

// mirror pushes the machine's current cycle row through the ingest queue.
// The queue is the only write path to the store; on saturation the row is
// not retried here because the next transition re-mirrors the full state.
func (t *Tracker) mirror(c domain.Cycle) {
	if err := t.queue.Push(hotstore.UpsertCycle{Cycle: c}); err != nil {
		t.logger.Warn().
			Err(err).
			Str("cycle_id", c.ID).
			Msg("cycle mirror write rejected")
	}
}

func (t *Tracker) publishGauges() {
	if t.metrics == nil {
		return
	}
	counts := make(map[float64]int, len(t.thresholds))
	for _, c := range t.machines {
		counts[c.Threshold]++
	}
	for _, threshold := range t.thresholds {
		label := strconv.FormatFloat(threshold, 'f', -1, 64)
		t.metrics.OpenCycles.WithLabelValues(label).Set(float64(counts[threshold]))
	}
}
