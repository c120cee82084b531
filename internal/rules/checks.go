package rules

import (
	"github.com/pankaj-dahiya-devops/sgguard/internal/models"
	"github.com/pankaj-dahiya-devops/sgguard/internal/policy"
)

// Skip reasons recorded on SKIPPED remediation results.
const (
	ReasonNotEligible   = "remediationEligible=false"
	ReasonNotWorldOpen  = "not ingress or not world-open"
	ReasonPortNotPolicy = "port not in policy"
)

// EligibleCheck requires remediationEligible to be true.
type EligibleCheck struct{}

func (EligibleCheck) ID() string                   { return "remediation-eligible" }
func (EligibleCheck) Reason() string               { return ReasonNotEligible }
func (EligibleCheck) Allows(f models.Finding) bool { return f.RemediationEligible }

// WorldOpenIngressCheck requires an ingress finding whose range is a
// world-open sentinel.
type WorldOpenIngressCheck struct{}

func (WorldOpenIngressCheck) ID() string     { return "ingress-world-open" }
func (WorldOpenIngressCheck) Reason() string { return ReasonNotWorldOpen }
func (WorldOpenIngressCheck) Allows(f models.Finding) bool {
	return f.Direction == models.DirectionIngress && f.WorldOpen()
}

// PortPolicyCheck requires the finding's port range to intersect the
// remediation port set.
type PortPolicyCheck struct {
	Ports policy.PortSet
}

func (PortPolicyCheck) ID() string     { return "port-policy" }
func (PortPolicyCheck) Reason() string { return ReasonPortNotPolicy }
func (c PortPolicyCheck) Allows(f models.Finding) bool {
	return c.Ports.MatchesRange(f.IPProtocol, f.FromPort, f.ToPort)
}

// ExemptGroupCheck rejects findings on explicitly exempted groups.
type ExemptGroupCheck struct {
	Groups map[string]struct{}
}

func (ExemptGroupCheck) ID() string     { return "exempt-group" }
func (ExemptGroupCheck) Reason() string { return "exempted by policy: exempt_groups" }
func (c ExemptGroupCheck) Allows(f models.Finding) bool {
	_, exempt := c.Groups[f.GroupID]
	return !exempt
}

// ExemptionCheck rejects findings matched by one named policy expression.
type ExemptionCheck struct {
	Exemption policy.Exemption
}

func (c ExemptionCheck) ID() string                   { return "exemption:" + c.Exemption.Name }
func (c ExemptionCheck) Reason() string               { return "exempted by policy: " + c.Exemption.Name }
func (c ExemptionCheck) Allows(f models.Finding) bool { return !c.Exemption.Matches(f) }

// NewRemediationChain builds the remediation filter chain in its fixed order:
// eligibility, ingress/world-open, port policy, then any policy-file
// exemptions.
func NewRemediationChain(res *policy.Resolved) *DefaultChain {
	c := NewDefaultChain()
	c.Register(EligibleCheck{})
	c.Register(WorldOpenIngressCheck{})
	c.Register(PortPolicyCheck{Ports: res.RemediatePorts})
	if len(res.ExemptGroups) > 0 {
		c.Register(ExemptGroupCheck{Groups: res.ExemptGroups})
	}
	for _, ex := range res.Exemptions {
		c.Register(ExemptionCheck{Exemption: ex})
	}
	return c
}
