package policy

// PolicyConfig is the optional remediation policy file.
type PolicyConfig struct {
	Version int `yaml:"version"`

	// RemediatePorts overrides REMEDIATE_PORTS when set ("ALL" or csv).
	RemediatePorts string `yaml:"remediate_ports,omitempty"`

	// ExemptGroups lists security group ids that are never auto-remediated.
	ExemptGroups []string `yaml:"exempt_groups,omitempty"`

	// Exemptions are named CEL expressions over the finding; a finding for
	// which any expression evaluates true is skipped.
	Exemptions []ExemptionConfig `yaml:"exemptions,omitempty"`
}

type ExemptionConfig struct {
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"`
}
