package common

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/pankaj-dahiya-devops/sgguard/internal/version"
)

// defaultRegion applies when neither the caller, the environment nor the
// shared config names a region.
const defaultRegion = "us-east-1"

type configLoader func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error)

// DefaultAWSClientProvider resolves credentials through the SDK's default
// chain: environment, shared config, then the container or instance role,
// which is what a Lambda execution role provides.
type DefaultAWSClientProvider struct {
	factory ClientFactory
	load    configLoader
}

// NewDefaultAWSClientProvider returns a provider backed by the real AWS SDK.
func NewDefaultAWSClientProvider() *DefaultAWSClientProvider {
	return NewDefaultAWSClientProviderWithFactory(NewClientSet)
}

// NewDefaultAWSClientProviderWithFactory builds clients with f instead of
// the SDK constructors.
func NewDefaultAWSClientProviderWithFactory(f ClientFactory) *DefaultAWSClientProvider {
	return &DefaultAWSClientProvider{factory: f, load: awsconfig.LoadDefaultConfig}
}

// LoadProfile resolves profile and region into an account context: SDK
// config, account id from STS, and clients scoped to the region. Empty
// arguments defer to the SDK's own resolution.
func (p *DefaultAWSClientProvider) LoadProfile(ctx context.Context, profile, region string) (*ProfileConfig, error) {
	name := profileDisplayName(profile)

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithAppID(version.UserAgent())}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := p.load(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS profile %q: %w", name, err)
	}
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}

	account := &ProfileConfig{
		ProfileName: name,
		Region:      cfg.Region,
		Config:      cfg,
		Clients:     p.factory(cfg),
	}
	if account.AccountID, err = resolveAccountID(ctx, account.Clients.STS); err != nil {
		return nil, fmt.Errorf("profile %q: %w", name, err)
	}
	return account, nil
}

// GetActiveRegions lists the regions the account has opted into. The doctor
// uses it to confirm the pipeline's region is enabled.
func (p *DefaultAWSClientProvider) GetActiveRegions(ctx context.Context, cfg *ProfileConfig) ([]string, error) {
	out, err := cfg.Clients.EC2.DescribeRegions(ctx, &ec2.DescribeRegionsInput{AllRegions: aws.Bool(false)})
	if err != nil {
		return nil, fmt.Errorf("describe regions in %s: %w", cfg.Region, err)
	}

	var regions []string
	for _, r := range out.Regions {
		if name := aws.ToString(r.RegionName); name != "" {
			regions = append(regions, name)
		}
	}
	return regions, nil
}

func profileDisplayName(profile string) string {
	if profile == "" {
		return "default"
	}
	return profile
}

// resolveAccountID returns the account that owns the loaded credentials.
func resolveAccountID(ctx context.Context, client STSClient) (string, error) {
	id, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	switch {
	case err != nil:
		return "", fmt.Errorf("get caller identity: %w", err)
	case aws.ToString(id.Account) == "":
		return "", errors.New("get caller identity: no account in response")
	}
	return *id.Account, nil
}
