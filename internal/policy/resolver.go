package policy

import (
	"fmt"
)

// Resolved is the effective remediation policy after merging the configured
// REMEDIATE_PORTS value with an optional policy file.
type Resolved struct {
	RemediatePorts PortSet
	ExemptGroups   map[string]struct{}
	Exemptions     []Exemption
}

// Resolve merges the environment-level port policy with cfg. A nil cfg
// yields the environment value and no exemptions. The policy file's
// remediate_ports, when set, takes precedence.
func Resolve(remediatePorts string, cfg *PolicyConfig) (*Resolved, error) {
	raw := remediatePorts
	if cfg != nil && cfg.RemediatePorts != "" {
		raw = cfg.RemediatePorts
	}
	ports, err := ParsePortSet(raw)
	if err != nil {
		return nil, fmt.Errorf("remediate ports: %w", err)
	}

	res := &Resolved{
		RemediatePorts: ports,
		ExemptGroups:   make(map[string]struct{}),
	}
	if cfg == nil {
		return res, nil
	}

	for _, id := range cfg.ExemptGroups {
		res.ExemptGroups[id] = struct{}{}
	}
	res.Exemptions, err = CompileExemptions(cfg.Exemptions)
	if err != nil {
		return nil, err
	}
	return res, nil
}
