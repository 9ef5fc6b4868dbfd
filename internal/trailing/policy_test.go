package trailing

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

const policyYAML = `
name: default
stop_loss: 0.03
tiers:
  - upper_bound: 0.02
    tolerance: 0.005
  - upper_bound: 0.10
    tolerance: 0.01
  - upper_bound: .inf
    tolerance: 0.02
min_hold_ticks: 2
consecutive_violations: 1
grace_ticks: 0
`

func TestParsePolicy_Valid(t *testing.T) {
	p, err := ParsePolicy([]byte(policyYAML))
	if err != nil {
		t.Fatalf("ParsePolicy failed: %v", err)
	}
	if p.Name != "default" || p.StopLoss != 0.03 || len(p.Tiers) != 3 {
		t.Errorf("Unexpected policy: %+v", p)
	}
	if !math.IsInf(p.Tiers[2].UpperBound, 1) {
		t.Errorf("Expected .inf upper bound, got %v", p.Tiers[2].UpperBound)
	}
	if p.MinHoldTicks != 2 {
		t.Errorf("Expected min_hold_ticks 2, got %d", p.MinHoldTicks)
	}
}

func TestParsePolicy_InvalidRejected(t *testing.T) {
	bad := `
name: broken
stop_loss: 0.03
tiers:
  - upper_bound: 0.02
    tolerance: 0.005
`
	if _, err := ParsePolicy([]byte(bad)); err == nil {
		t.Error("Expected validation error for missing .inf tier")
	}
}

func TestParsePolicy_MalformedYAML(t *testing.T) {
	if _, err := ParsePolicy([]byte("{not yaml")); err == nil {
		t.Error("Expected parse error")
	}
}

func writePolicy(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestLoadPolicyFiles_Set(t *testing.T) {
	dir := t.TempDir()
	a := writePolicy(t, dir, "default.yaml", policyYAML)

	aggressive := `
name: aggressive
stop_loss: 0.05
tiers:
  - upper_bound: .inf
    tolerance: 0.03
`
	b := writePolicy(t, dir, "aggressive.yaml", aggressive)

	set, err := LoadPolicyFiles([]string{a, b})
	if err != nil {
		t.Fatalf("LoadPolicyFiles failed: %v", err)
	}
	if len(set) != 2 {
		t.Errorf("Expected 2 policies, got %d", len(set))
	}
	if set["aggressive"] == nil || set["aggressive"].StopLoss != 0.05 {
		t.Errorf("Unexpected aggressive policy: %+v", set["aggressive"])
	}
}

func TestLoadPolicyFiles_DuplicateName(t *testing.T) {
	dir := t.TempDir()
	a := writePolicy(t, dir, "a.yaml", policyYAML)
	b := writePolicy(t, dir, "b.yaml", policyYAML)

	if _, err := LoadPolicyFiles([]string{a, b}); err == nil {
		t.Error("Expected error for duplicate policy name")
	}
}

func TestLoadPolicyFiles_NameRequired(t *testing.T) {
	dir := t.TempDir()
	anon := `
stop_loss: 0.03
tiers:
  - upper_bound: .inf
    tolerance: 0.01
`
	path := writePolicy(t, dir, "anon.yaml", anon)

	if _, err := LoadPolicyFiles([]string{path}); err == nil {
		t.Error("Expected error for unnamed policy")
	}
}

func TestLoadPolicyFile_Missing(t *testing.T) {
	if _, err := LoadPolicyFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}
