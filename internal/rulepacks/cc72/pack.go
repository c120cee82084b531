// Package cc72 provides the SOC2 CC7.2 detection rule pack.
//
// Convention: every rule pack lives in internal/rulepacks/<domain>/pack.go
// and exposes a single New() func returning []rules.Rule.
package cc72

import "github.com/pankaj-dahiya-devops/sgguard/internal/rules"

// New returns the detection rules run by the detector.
func New() []rules.Rule {
	return []rules.Rule{
		rules.WorldOpenIngressRule{}, // ingress from 0.0.0.0/0 or ::/0
	}
}
