package domain

import (
	"fmt"
	"math"
)

// ToleranceTier allows a bounded give-back while the position's peak gain
// is below UpperBound. Tiers are matched by an ordered range scan: tier i
// covers gains in [previous UpperBound, UpperBound).
type ToleranceTier struct {
	UpperBound float64 `yaml:"upper_bound"` // exclusive gain boundary; +Inf on the last tier
	Tolerance  float64 `yaml:"tolerance"`   // max allowed drop from peak before exit
}

// TolerancePolicy is the tiered trailing-stop rule set for one strategy.
//
// Policies are parsed from a YAML document and validated once at load time;
// the decision engine never revalidates at evaluation time.
type TolerancePolicy struct {
	Name                  string          `yaml:"name"`
	StopLoss              float64         `yaml:"stop_loss"`              // tolerance below entry price
	Tiers                 []ToleranceTier `yaml:"tiers"`                  // above-entry regime, ordered by upper_bound
	MinHoldTicks          int             `yaml:"min_hold_ticks"`         // evaluations before any exit is allowed
	ConsecutiveViolations int             `yaml:"consecutive_violations"` // violations required before acting
	GraceTicks            int             `yaml:"grace_ticks"`            // ticks of widened tolerance after a new high
}

// PolicyValidationError reports why a tolerance policy was rejected at load time.
type PolicyValidationError struct {
	Policy string
	Reason string
}

func (e *PolicyValidationError) Error() string {
	return fmt.Sprintf("invalid tolerance policy %q: %s", e.Policy, e.Reason)
}

func (p *TolerancePolicy) invalid(reason string) error {
	return &PolicyValidationError{Policy: p.Name, Reason: reason}
}

// Validate checks that the policy is usable: a positive stop loss and a
// tier list that covers every possible gain in [0, +Inf) with no gaps.
func (p *TolerancePolicy) Validate() error {
	if p.StopLoss <= 0 {
		return p.invalid("stop_loss must be positive")
	}
	if len(p.Tiers) == 0 {
		return p.invalid("at least one tier is required")
	}
	prev := 0.0
	for i, tier := range p.Tiers {
		if tier.Tolerance <= 0 {
			return p.invalid(fmt.Sprintf("tier %d: tolerance must be positive", i))
		}
		if tier.UpperBound <= prev {
			return p.invalid(fmt.Sprintf("tier %d: upper_bound %v does not extend coverage past %v", i, tier.UpperBound, prev))
		}
		prev = tier.UpperBound
	}
	if !math.IsInf(prev, 1) {
		return p.invalid("last tier must have upper_bound .inf to cover all gains")
	}
	if p.MinHoldTicks < 0 {
		return p.invalid("min_hold_ticks must not be negative")
	}
	if p.ConsecutiveViolations < 0 {
		return p.invalid("consecutive_violations must not be negative")
	}
	if p.GraceTicks < 0 {
		return p.invalid("grace_ticks must not be negative")
	}
	return nil
}

// TierFor returns the tolerance tier covering the given peak gain.
// Validate guarantees full coverage, so lookup cannot fail on a valid policy.
func (p *TolerancePolicy) TierFor(gain float64) ToleranceTier {
	for _, tier := range p.Tiers {
		if gain < tier.UpperBound {
			return tier
		}
	}
	return p.Tiers[len(p.Tiers)-1]
}
