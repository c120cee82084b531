package awssecurity

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2svc "github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"

	"github.com/pankaj-dahiya-devops/sgguard/internal/models"
)

// ErrPermissionNotFound reports that the permission or its group no longer
// exists, i.e. the finding was already remediated by someone else.
var ErrPermissionNotFound = errors.New("permission not found")

// notFoundCodes are the EC2 error codes returned when revoking a permission
// that is already gone.
var notFoundCodes = map[string]struct{}{
	"InvalidPermission.NotFound": {},
	"InvalidGroup.NotFound":      {},
}

// revokeIngress rebuilds the permission from the finding's own fields and
// revokes exactly that permission from exactly that group.
func revokeIngress(ctx context.Context, client ec2SecurityAPIClient, f models.Finding) error {
	out, err := client.RevokeSecurityGroupIngress(ctx, &ec2svc.RevokeSecurityGroupIngressInput{
		GroupId:       aws.String(f.GroupID),
		IpPermissions: []ec2types.IpPermission{permissionFor(f)},
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			if _, ok := notFoundCodes[apiErr.ErrorCode()]; ok {
				return fmt.Errorf("revoke ingress on %s: %w: %w", f.GroupID, ErrPermissionNotFound, err)
			}
		}
		return fmt.Errorf("revoke ingress on %s: %w", f.GroupID, err)
	}

	// EC2 answers success but echoes permissions it could not match.
	if len(out.UnknownIpPermissions) > 0 {
		return fmt.Errorf("revoke ingress on %s: %w: reported as unknown", f.GroupID, ErrPermissionNotFound)
	}
	if out.Return != nil && !*out.Return {
		return fmt.Errorf("revoke ingress on %s: request returned false", f.GroupID)
	}
	return nil
}

// permissionFor converts a finding back into the EC2 permission it was
// derived from. Ports are only set when the finding recorded them; a missing
// protocol means all traffic.
func permissionFor(f models.Finding) ec2types.IpPermission {
	proto := f.IPProtocol
	if proto == "" {
		proto = "-1"
	}
	perm := ec2types.IpPermission{
		IpProtocol: aws.String(proto),
		FromPort:   f.FromPort,
		ToPort:     f.ToPort,
	}
	if f.CIDR != nil {
		perm.IpRanges = []ec2types.IpRange{{CidrIp: aws.String(*f.CIDR)}}
	}
	if f.IPv6CIDR != nil {
		perm.Ipv6Ranges = []ec2types.Ipv6Range{{CidrIpv6: aws.String(*f.IPv6CIDR)}}
	}
	return perm
}
