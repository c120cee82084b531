package rules

import (
	"time"

	"github.com/google/uuid"

	"github.com/pankaj-dahiya-devops/sgguard/internal/models"
)

const (
	riskWorldOpenIPv4 = "Security group ingress open to world"
	riskWorldOpenIPv6 = "Security group ingress open to world (IPv6)"
)

// WorldOpenIngressRule flags every ingress range equal to 0.0.0.0/0 or ::/0
// on a permission that matches the detect-port policy. IPv4 and IPv6 ranges
// are inspected independently: a permission open on both yields two findings.
// There is no deduplication across groups, permissions, or runs.
type WorldOpenIngressRule struct{}

func (r WorldOpenIngressRule) ID() string   { return "SG_WORLD_OPEN_INGRESS" }
func (r WorldOpenIngressRule) Name() string { return "Security Group Ingress Open To The Internet" }

// Evaluate returns one finding per world-open range. remediationEligible is
// always true here; policy exclusion happens at remediation time.
func (r WorldOpenIngressRule) Evaluate(ctx RuleContext) []models.Finding {
	if ctx.Inventory == nil {
		return nil
	}
	now := ctx.Now
	if now == nil {
		now = time.Now
	}
	newID := ctx.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	var findings []models.Finding
	for _, sg := range ctx.Inventory.SecurityGroups {
		for _, perm := range sg.Ingress {
			if !ctx.DetectPorts.MatchesRange(perm.IPProtocol, perm.FromPort, perm.ToPort) {
				continue
			}
			for _, rng := range perm.IPv4Ranges {
				if rng.CIDR != models.WorldOpenIPv4 {
					continue
				}
				f := newFinding(ctx.Inventory, sg, perm, rng, newID(), now().UTC())
				f.CIDR = stringPtr(rng.CIDR)
				f.Exposure = models.ExposureWorldIPv4
				f.Risk = riskWorldOpenIPv4
				findings = append(findings, f)
			}
			for _, rng := range perm.IPv6Ranges {
				if rng.CIDR != models.WorldOpenIPv6 {
					continue
				}
				f := newFinding(ctx.Inventory, sg, perm, rng, newID(), now().UTC())
				f.IPv6CIDR = stringPtr(rng.CIDR)
				f.Exposure = models.ExposureWorldIPv6
				f.Risk = riskWorldOpenIPv6
				findings = append(findings, f)
			}
		}
	}
	return findings
}

func newFinding(
	inv *models.AWSInventory,
	sg models.AWSSecurityGroup,
	perm models.AWSIngressPermission,
	rng models.AWSAddrRange,
	id string,
	detectedAt time.Time,
) models.Finding {
	return models.Finding{
		FindingID:           id,
		Control:             models.ControlID,
		DetectedAt:          detectedAt,
		AccountID:           inv.AccountID,
		Region:              inv.Region,
		GroupID:             sg.GroupID,
		GroupName:           sg.GroupName,
		VpcID:               sg.VpcID,
		Direction:           models.DirectionIngress,
		IPProtocol:          perm.IPProtocol,
		FromPort:            copyInt32(perm.FromPort),
		ToPort:              copyInt32(perm.ToPort),
		RemediationEligible: true,
		Metadata:            models.FindingMetadata{Description: rng.Description},
	}
}

func stringPtr(s string) *string { return &s }

func copyInt32(p *int32) *int32 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
