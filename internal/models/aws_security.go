package models

// AWSSecurityGroup is the inventory snapshot of one EC2 security group.
// Only ingress permissions are collected; egress is out of scope.
type AWSSecurityGroup struct {
	GroupID   string                 `json:"group_id"`
	GroupName string                 `json:"group_name"`
	VpcID     string                 `json:"vpc_id"`
	Ingress   []AWSIngressPermission `json:"ingress"`
}

// AWSIngressPermission is one ingress entry of a security group.
// FromPort and ToPort are nil when the protocol carries no port range
// (IpProtocol "-1").
type AWSIngressPermission struct {
	IPProtocol string         `json:"ip_protocol"`
	FromPort   *int32         `json:"from_port,omitempty"`
	ToPort     *int32         `json:"to_port,omitempty"`
	IPv4Ranges []AWSAddrRange `json:"ipv4_ranges,omitempty"`
	IPv6Ranges []AWSAddrRange `json:"ipv6_ranges,omitempty"`
}

// AWSAddrRange is one source CIDR of an ingress permission.
type AWSAddrRange struct {
	CIDR        string  `json:"cidr"`
	Description *string `json:"description,omitempty"`
}

// AWSInventory is everything the scanner collected for one account/region.
type AWSInventory struct {
	AccountID      string             `json:"account_id"`
	Region         string             `json:"region"`
	SecurityGroups []AWSSecurityGroup `json:"security_groups"`
}
