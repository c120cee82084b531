package rules

import (
	"fmt"

	"github.com/pankaj-dahiya-devops/sgguard/internal/models"
)

// DefaultRuleRegistry is a simple, ordered, in-memory registry.
// Rules are evaluated in registration order.
// Register panics on duplicate rule IDs to catch wiring mistakes at startup.
type DefaultRuleRegistry struct {
	rules []Rule
	index map[string]struct{}
}

// NewDefaultRuleRegistry returns an empty registry ready for rule registration.
func NewDefaultRuleRegistry() *DefaultRuleRegistry {
	return &DefaultRuleRegistry{
		index: make(map[string]struct{}),
	}
}

// Register adds rule to the registry. Panics if the same ID is registered twice.
func (r *DefaultRuleRegistry) Register(rule Rule) {
	if _, exists := r.index[rule.ID()]; exists {
		panic(fmt.Sprintf("duplicate rule ID: %q", rule.ID()))
	}
	r.rules = append(r.rules, rule)
	r.index[rule.ID()] = struct{}{}
}

// All returns all registered rules in registration order.
func (r *DefaultRuleRegistry) All() []Rule {
	return r.rules
}

// EvaluateAll runs every registered rule against ctx and returns the merged
// findings slice. Rules are called sequentially in registration order.
func (r *DefaultRuleRegistry) EvaluateAll(ctx RuleContext) []models.Finding {
	var findings []models.Finding
	for _, rule := range r.rules {
		findings = append(findings, rule.Evaluate(ctx)...)
	}
	return findings
}

// DefaultChain is the ordered remediation filter chain.
type DefaultChain struct {
	checks []Check
	index  map[string]struct{}
}

// NewDefaultChain returns an empty chain.
func NewDefaultChain() *DefaultChain {
	return &DefaultChain{index: make(map[string]struct{})}
}

// Register appends check. Panics if the same ID is registered twice.
func (c *DefaultChain) Register(check Check) {
	if _, exists := c.index[check.ID()]; exists {
		panic(fmt.Sprintf("duplicate check ID: %q", check.ID()))
	}
	c.checks = append(c.checks, check)
	c.index[check.ID()] = struct{}{}
}

func (c *DefaultChain) Checks() []Check {
	return c.checks
}

func (c *DefaultChain) Evaluate(f models.Finding) (string, bool) {
	for _, check := range c.checks {
		if !check.Allows(f) {
			return check.Reason(), false
		}
	}
	return "", true
}
