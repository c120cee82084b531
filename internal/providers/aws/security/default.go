package awssecurity

import (
	"context"

	"github.com/pankaj-dahiya-devops/sgguard/internal/models"
	"github.com/pankaj-dahiya-devops/sgguard/internal/providers/aws/common"
)

// DefaultSecurityProvider is the production InventoryCollector and Revoker.
// Clients are built per call from the profile's aws.Config, so one value is
// safe to share across concurrent invocations.
type DefaultSecurityProvider struct {
	factory secClientFactory
}

// NewDefaultSecurityProvider returns a DefaultSecurityProvider wired to
// production AWS SDK clients.
func NewDefaultSecurityProvider() *DefaultSecurityProvider {
	return &DefaultSecurityProvider{factory: newDefaultSecClients}
}

// NewDefaultSecurityProviderWithFactory returns a DefaultSecurityProvider
// that uses the supplied factory, allowing tests to inject fake clients.
func NewDefaultSecurityProviderWithFactory(f secClientFactory) *DefaultSecurityProvider {
	return &DefaultSecurityProvider{factory: f}
}

// CollectInventory enumerates every security group visible in the profile's
// region.
func (p *DefaultSecurityProvider) CollectInventory(ctx context.Context, profile *common.ProfileConfig) (*models.AWSInventory, error) {
	clients := p.factory(profile.Config)
	groups, err := collectSecurityGroups(ctx, clients.EC2, profile.Region)
	if err != nil {
		return nil, err
	}
	return &models.AWSInventory{
		AccountID:      profile.AccountID,
		Region:         profile.Region,
		SecurityGroups: groups,
	}, nil
}

// RevokeIngress revokes the permission recorded in f from its group.
func (p *DefaultSecurityProvider) RevokeIngress(ctx context.Context, profile *common.ProfileConfig, f models.Finding) error {
	clients := p.factory(profile.Config)
	return revokeIngress(ctx, clients.EC2, f)
}
