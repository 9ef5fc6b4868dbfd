// Package trailing implements the tiered trailing-stop exit engine. Once
// per polling interval it re-evaluates every pending position against the
// latest observed price and decides hold vs. exit.
package trailing

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"market-state-engine/internal/domain"
	"market-state-engine/internal/hotstore"
	"market-state-engine/internal/ingest"
	"market-state-engine/internal/observability"
)

// graceWidenFactor multiplies the selected tier tolerance while a position
// is within its grace window after printing a new high.
const graceWidenFactor = 2.0

// EngineOptions configures the trailing-stop engine.
type EngineOptions struct {
	// Policies are the validated tolerance policies, keyed by name.
	Policies PolicySet
	// DefaultPolicy names the policy used by positions that carry none.
	DefaultPolicy string
	// PollInterval is the evaluation cadence. Default: 1s.
	PollInterval time.Duration
	// MaxPriceAge rejects prices older than this as a feed gap. Zero
	// disables the staleness check.
	MaxPriceAge time.Duration

	Metrics *observability.Metrics
	Logger  zerolog.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// positionState is the engine's per-position smoothing state. It lives in
// the engine, not the store: it only influences the timing of the exit,
// never the recorded outcome.
type positionState struct {
	ticks      int     // evaluations since the engine first saw the position
	violations int     // consecutive violating evaluations
	graceLeft  int     // remaining widened-tolerance ticks after a new high
	peak       float64 // authoritative peak; store copy may lag behind the queue
}

// Engine is the trailing-stop decision engine. It is the sole owner of
// Position.status, exit fields, and highest_price_reached; all its writes
// flow through the ingest queue.
type Engine struct {
	store         *hotstore.Store
	queue         *ingest.Queue
	policies      PolicySet
	defaultPolicy string
	pollInterval  time.Duration
	maxPriceAge   time.Duration
	metrics       *observability.Metrics
	logger        zerolog.Logger
	now           func() time.Time

	state map[string]*positionState
}

// NewEngine creates a trailing-stop engine over the given store and queue.
func NewEngine(store *hotstore.Store, queue *ingest.Queue, opts EngineOptions) *Engine {
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:         store,
		queue:         queue,
		policies:      opts.Policies,
		defaultPolicy: opts.DefaultPolicy,
		pollInterval:  pollInterval,
		maxPriceAge:   opts.MaxPriceAge,
		metrics:       opts.Metrics,
		logger:        opts.Logger.With().Str("component", "trailing").Logger(),
		now:           now,
		state:         make(map[string]*positionState),
	}
}

// Run evaluates all pending positions once per polling interval until the
// context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.EvaluateAll()
		}
	}
}

// EvaluateAll runs one evaluation pass over every pending position.
func (e *Engine) EvaluateAll() {
	pending := e.store.PendingPositions()
	if e.metrics != nil {
		e.metrics.PendingPositions.Set(float64(len(pending)))
	}

	live := make(map[string]struct{}, len(pending))
	for _, p := range pending {
		live[p.ID] = struct{}{}
		e.evaluate(p)
	}
	// Drop smoothing state for positions that left pending status.
	for id := range e.state {
		if _, ok := live[id]; !ok {
			delete(e.state, id)
		}
	}
}

// evaluate runs one trailing-stop decision for a pending position.
func (e *Engine) evaluate(p domain.Position) {
	if !p.Pending() {
		// Terminal positions are a no-op, never an error.
		return
	}
	policy := e.policyFor(p)
	if policy == nil {
		e.logger.Error().
			Str("position_id", p.ID).
			Str("policy", p.Policy).
			Msg("no tolerance policy for position, skipping")
		return
	}

	now := e.now()
	point, err := e.store.LatestPrice(p.Token)
	if err != nil || e.stale(point, now) {
		// Feed gap: never invent a price and never write an audit row
		// claiming one was observed.
		if e.metrics != nil {
			e.metrics.EvaluationsSkipped.Inc()
		}
		e.logger.Warn().
			Str("position_id", p.ID).
			Str("token", p.Token).
			Msg("no observable price, skipping evaluation")
		return
	}
	price := point.Price

	st := e.state[p.ID]
	if st == nil {
		st = &positionState{}
		e.state[p.ID] = st
	}
	st.ticks++

	// The peak updates before the decision is computed. The engine's own
	// copy is authoritative: its queued patches may not have reached the
	// store yet.
	highest := p.HighestPrice
	if st.peak > highest {
		highest = st.peak
	}
	if highest < p.EntryPrice {
		highest = p.EntryPrice
	}
	if price > highest {
		highest = price
		st.graceLeft = policy.GraceTicks
	}
	st.peak = highest

	var (
		drop      float64
		tolerance float64
		reference float64
	)
	if price >= p.EntryPrice {
		tier := policy.TierFor((highest - p.EntryPrice) / p.EntryPrice)
		tolerance = tier.Tolerance
		if st.graceLeft > 0 {
			tolerance *= graceWidenFactor
		}
		drop = (highest - price) / highest
		reference = highest
	} else {
		tolerance = policy.StopLoss
		drop = (p.EntryPrice - price) / p.EntryPrice
		reference = p.EntryPrice
	}

	violated := drop > tolerance
	if violated {
		st.violations++
	} else {
		st.violations = 0
	}
	required := policy.ConsecutiveViolations
	if required < 1 {
		required = 1
	}
	exit := violated && st.violations >= required && st.ticks > policy.MinHoldTicks

	decision := domain.DecisionHold
	if exit {
		decision = domain.DecisionSell
	}

	e.pushCheck(domain.PriceCheck{
		PositionID:       p.ID,
		CheckedAtMs:      now.UnixMilli(),
		CurrentPrice:     price,
		HighestPrice:     highest,
		ReferencePrice:   reference,
		DropFromHigh:     (highest - price) / highest,
		DropFromEntry:    (p.EntryPrice - price) / p.EntryPrice,
		ToleranceApplied: tolerance,
		Decision:         decision,
	})

	patch := hotstore.PositionPatch{ID: p.ID, HighestPrice: &highest}
	if exit {
		status := domain.PositionSold
		exitTime := now.UnixMilli()
		patch.Status = &status
		patch.ExitPrice = &price
		patch.ExitTimeMs = &exitTime
	}
	if err := e.queue.Push(patch); err != nil {
		e.logger.Error().
			Err(err).
			Str("position_id", p.ID).
			Msg("position patch rejected by queue")
	}

	if st.graceLeft > 0 {
		st.graceLeft--
	}
	if e.metrics != nil {
		e.metrics.Evaluations.WithLabelValues(decision).Inc()
	}
	if exit {
		if e.metrics != nil {
			e.metrics.PositionsExited.Inc()
		}
		e.logger.Info().
			Str("position_id", p.ID).
			Float64("entry_price", p.EntryPrice).
			Float64("exit_price", price).
			Float64("peak", highest).
			Float64("drop", drop).
			Float64("tolerance", tolerance).
			Msg("position exited")
		delete(e.state, p.ID)
	}
}

func (e *Engine) policyFor(p domain.Position) *domain.TolerancePolicy {
	name := p.Policy
	if name == "" {
		name = e.defaultPolicy
	}
	return e.policies[name]
}

func (e *Engine) stale(point domain.PricePoint, now time.Time) bool {
	if e.maxPriceAge <= 0 {
		return false
	}
	return now.UnixMilli()-point.TimestampMs > e.maxPriceAge.Milliseconds()
}

func (e *Engine) pushCheck(check domain.PriceCheck) {
	if err := e.queue.Push(hotstore.InsertPriceCheck{Check: check}); err != nil {
		e.logger.Warn().
			Err(err).
			Str("position_id", check.PositionID).
			Msg("audit row rejected by queue")
	}
}
