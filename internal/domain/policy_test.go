package domain

import (
	"errors"
	"math"
	"testing"
)

func validPolicy() TolerancePolicy {
	return TolerancePolicy{
		Name:     "default",
		StopLoss: 0.03,
		Tiers: []ToleranceTier{
			{UpperBound: 0.02, Tolerance: 0.005},
			{UpperBound: 0.10, Tolerance: 0.01},
			{UpperBound: math.Inf(1), Tolerance: 0.02},
		},
	}
}

func TestTolerancePolicy_Valid(t *testing.T) {
	p := validPolicy()
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestTolerancePolicy_StopLossRequired(t *testing.T) {
	p := validPolicy()
	p.StopLoss = 0

	err := p.Validate()
	var verr *PolicyValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected PolicyValidationError, got %v", err)
	}
}

func TestTolerancePolicy_TiersMustIncrease(t *testing.T) {
	p := validPolicy()
	p.Tiers = []ToleranceTier{
		{UpperBound: 0.10, Tolerance: 0.01},
		{UpperBound: 0.02, Tolerance: 0.005}, // out of order
		{UpperBound: math.Inf(1), Tolerance: 0.02},
	}

	if err := p.Validate(); err == nil {
		t.Error("Expected error for unordered tiers")
	}
}

func TestTolerancePolicy_LastTierMustBeInf(t *testing.T) {
	p := validPolicy()
	p.Tiers = []ToleranceTier{
		{UpperBound: 0.02, Tolerance: 0.005},
		{UpperBound: 0.10, Tolerance: 0.01},
	}

	if err := p.Validate(); err == nil {
		t.Error("Expected error for missing +Inf tier")
	}
}

func TestTolerancePolicy_EmptyTiers(t *testing.T) {
	p := validPolicy()
	p.Tiers = nil

	if err := p.Validate(); err == nil {
		t.Error("Expected error for empty tier list")
	}
}

func TestTolerancePolicy_NegativeTolerance(t *testing.T) {
	p := validPolicy()
	p.Tiers[1].Tolerance = -0.01

	if err := p.Validate(); err == nil {
		t.Error("Expected error for negative tolerance")
	}
}

func TestTolerancePolicy_TierFor(t *testing.T) {
	p := validPolicy()

	cases := []struct {
		gain float64
		want float64
	}{
		{0.0, 0.005},
		{0.019, 0.005},
		{0.02, 0.01}, // boundary is exclusive
		{0.05, 0.01},
		{0.10, 0.02},
		{5.0, 0.02},
	}
	for _, c := range cases {
		got := p.TierFor(c.gain).Tolerance
		if got != c.want {
			t.Errorf("TierFor(%v) tolerance = %v, want %v", c.gain, got, c.want)
		}
	}
}

func TestPosition_Pending(t *testing.T) {
	p := Position{ID: "p1", Status: PositionPending}
	if !p.Pending() {
		t.Error("Expected pending position")
	}

	p.Status = PositionSold
	if p.Pending() {
		t.Error("Sold position should not be pending")
	}
}

func TestCycle_Open(t *testing.T) {
	c := Cycle{ID: "c1", StartTimeMs: 1000}
	if !c.Open() {
		t.Error("Cycle with zero end time should be open")
	}

	c.EndTimeMs = 2000
	if c.Open() {
		t.Error("Cycle with end time should be closed")
	}
}
