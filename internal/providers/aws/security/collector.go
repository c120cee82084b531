// Package awssecurity talks to EC2 on behalf of the pipeline: it snapshots
// security group ingress permissions and revokes individual world-open
// permissions.
//
// Canonical data types (AWSSecurityGroup, AWSIngressPermission, AWSInventory)
// are defined in internal/models so they are shared across the engine, rules,
// and provider layers without circular imports.
package awssecurity

import (
	"context"

	"github.com/pankaj-dahiya-devops/sgguard/internal/models"
	"github.com/pankaj-dahiya-devops/sgguard/internal/providers/aws/common"
)

// InventoryCollector collects the security group inventory of one account
// and region.
//
// Implementations must never apply business logic or produce findings.
// Unlike a posture audit, a partial inventory is useless here: any
// enumeration failure is returned and the scan aborts.
type InventoryCollector interface {
	CollectInventory(ctx context.Context, profile *common.ProfileConfig) (*models.AWSInventory, error)
}

// Revoker removes a single ingress permission described by a finding.
type Revoker interface {
	RevokeIngress(ctx context.Context, profile *common.ProfileConfig, f models.Finding) error
}
