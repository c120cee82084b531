package rules

import (
	"time"

	"github.com/pankaj-dahiya-devops/sgguard/internal/models"
	"github.com/pankaj-dahiya-devops/sgguard/internal/policy"
)

// RuleContext carries all collected data for a single scan.
// It is the sole input to Rule.Evaluate and must contain everything a rule
// needs; rules must never make network calls or read external state.
type RuleContext struct {
	// Inventory holds the security groups collected from the target
	// account and region.
	Inventory *models.AWSInventory

	// DetectPorts restricts which permissions are inspected.
	DetectPorts policy.PortSet

	// Now stamps detectedAt on every finding. Defaults to time.Now when nil.
	Now func() time.Time

	// NewID returns a unique finding id. Defaults to a random UUID when nil.
	NewID func() string
}

// Rule is a single deterministic detection rule.
// Rules must be stateless and safe to call concurrently.
// They must never call the AWS SDK or any external service.
type Rule interface {
	// ID returns the unique, stable identifier for this rule.
	ID() string

	// Name returns a short human-readable rule name.
	Name() string

	// Evaluate inspects the provided context and returns zero or more findings.
	Evaluate(ctx RuleContext) []models.Finding
}

// RuleRegistry manages the set of active detection rules.
type RuleRegistry interface {
	// Register adds a rule to the registry. Panics on duplicate ID.
	Register(rule Rule)

	// All returns all registered rules in registration order.
	All() []Rule

	// EvaluateAll runs every registered rule against ctx and merges results.
	EvaluateAll(ctx RuleContext) []models.Finding
}

// Check is one (predicate, reason) pair of the remediation filter chain.
type Check interface {
	// ID returns the unique, stable identifier for this check.
	ID() string

	// Allows reports whether the finding passes this check.
	Allows(f models.Finding) bool

	// Reason is recorded on SKIPPED results when Allows returns false.
	Reason() string
}

// Chain evaluates checks in a fixed order; the first failing check decides
// the skip reason.
type Chain interface {
	// Register appends a check. Panics on duplicate ID.
	Register(check Check)

	// Checks returns the checks in evaluation order.
	Checks() []Check

	// Evaluate returns ("", true) when every check passes, otherwise the
	// reason of the first failing check and false.
	Evaluate(f models.Finding) (reason string, ok bool)
}
