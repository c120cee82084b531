package awssecurity

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2svc "github.com/aws/aws-sdk-go-v2/service/ec2"
)

// ec2SecurityAPIClient is the narrow EC2 interface used for security group
// inventory and remediation. It embeds DescribeSecurityGroupsAPIClient so the
// SDK paginator can be used directly.
type ec2SecurityAPIClient interface {
	ec2svc.DescribeSecurityGroupsAPIClient
	RevokeSecurityGroupIngress(ctx context.Context, params *ec2svc.RevokeSecurityGroupIngressInput, optFns ...func(*ec2svc.Options)) (*ec2svc.RevokeSecurityGroupIngressOutput, error)
}

// secClients bundles the AWS service clients used by this package.
type secClients struct {
	EC2 ec2SecurityAPIClient
}

// secClientFactory creates secClients from an AWS config.
// Injection point: tests replace this with a function returning fake clients.
type secClientFactory func(cfg aws.Config) *secClients

// newDefaultSecClients creates production AWS SDK clients from the given config.
func newDefaultSecClients(cfg aws.Config) *secClients {
	return &secClients{
		EC2: ec2svc.NewFromConfig(cfg),
	}
}
