package trailing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"market-state-engine/internal/domain"
)

// ParsePolicy decodes and validates one tolerance-policy YAML document.
// Validation failures surface here, at load time; a policy that parses is
// guaranteed evaluable for every possible gain value.
func ParsePolicy(data []byte) (*domain.TolerancePolicy, error) {
	var p domain.TolerancePolicy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse tolerance policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadPolicyFile reads one policy document from disk.
func LoadPolicyFile(path string) (*domain.TolerancePolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tolerance policy %s: %w", path, err)
	}
	p, err := ParsePolicy(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// PolicySet holds validated policies keyed by name.
type PolicySet map[string]*domain.TolerancePolicy

// LoadPolicyFiles loads and validates a set of policy documents. Duplicate
// names are rejected so a position's policy reference is unambiguous.
func LoadPolicyFiles(paths []string) (PolicySet, error) {
	set := make(PolicySet, len(paths))
	for _, path := range paths {
		p, err := LoadPolicyFile(path)
		if err != nil {
			return nil, err
		}
		if p.Name == "" {
			return nil, &domain.PolicyValidationError{Policy: path, Reason: "name is required"}
		}
		if _, exists := set[p.Name]; exists {
			return nil, &domain.PolicyValidationError{Policy: p.Name, Reason: "duplicate policy name"}
		}
		set[p.Name] = p
	}
	return set, nil
}
