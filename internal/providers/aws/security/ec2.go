package awssecurity

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2svc "github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/pankaj-dahiya-devops/sgguard/internal/models"
)

// collectSecurityGroups pages through DescribeSecurityGroups until the
// result set is exhausted and converts every group's inbound permissions.
// Both IPv4 and IPv6 ranges are kept, with their descriptions.
func collectSecurityGroups(ctx context.Context, client ec2SecurityAPIClient, region string) ([]models.AWSSecurityGroup, error) {
	var groups []models.AWSSecurityGroup

	paginator := ec2svc.NewDescribeSecurityGroupsPaginator(client, &ec2svc.DescribeSecurityGroupsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe security groups in %s: %w", region, err)
		}
		for _, sg := range page.SecurityGroups {
			groups = append(groups, convertSecurityGroup(sg))
		}
	}
	return groups, nil
}

func convertSecurityGroup(sg ec2types.SecurityGroup) models.AWSSecurityGroup {
	out := models.AWSSecurityGroup{
		GroupID:   aws.ToString(sg.GroupId),
		GroupName: aws.ToString(sg.GroupName),
		VpcID:     aws.ToString(sg.VpcId),
	}
	for _, perm := range sg.IpPermissions {
		p := models.AWSIngressPermission{
			IPProtocol: aws.ToString(perm.IpProtocol),
			FromPort:   perm.FromPort,
			ToPort:     perm.ToPort,
		}
		for _, r := range perm.IpRanges {
			p.IPv4Ranges = append(p.IPv4Ranges, models.AWSAddrRange{
				CIDR:        aws.ToString(r.CidrIp),
				Description: r.Description,
			})
		}
		for _, r := range perm.Ipv6Ranges {
			p.IPv6Ranges = append(p.IPv6Ranges, models.AWSAddrRange{
				CIDR:        aws.ToString(r.CidrIpv6),
				Description: r.Description,
			})
		}
		out.Ingress = append(out.Ingress, p)
	}
	return out
}
