package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// ControlID is the compliance control every finding and report is filed under.
	ControlID = "SOC2-CC7.2"

	// SchemaVersion is stamped on every persisted document and report.
	SchemaVersion = "2025-09-10"

	// DirectionIngress is the only direction the scanner ever emits.
	DirectionIngress = "ingress"

	WorldOpenIPv4 = "0.0.0.0/0"
	WorldOpenIPv6 = "::/0"
)

// Exposure classifies which world-open sentinel a finding matched.
type Exposure string

const (
	ExposureWorldIPv4 Exposure = "WORLD_OPEN_IPV4"
	ExposureWorldIPv6 Exposure = "WORLD_OPEN_IPV6"
)

// FindingMetadata carries free-form context copied from the source range.
type FindingMetadata struct {
	Description *string `json:"description"`
}

// Finding is one world-open ingress range detected on a security group.
// Its identity is only meaningful within the FindingsDocument that holds it.
type Finding struct {
	FindingID           string          `json:"findingId"`
	Control             string          `json:"control"`
	DetectedAt          time.Time       `json:"detectedAt"`
	AccountID           string          `json:"accountId"`
	Region              string          `json:"region"`
	GroupID             string          `json:"groupId"`
	GroupName           string          `json:"groupName"`
	VpcID               string          `json:"vpcId"`
	Direction           string          `json:"direction"`
	IPProtocol          string          `json:"ipProtocol"`
	FromPort            *int32          `json:"fromPort"`
	ToPort              *int32          `json:"toPort"`
	CIDR                *string         `json:"cidr"`
	IPv6CIDR            *string         `json:"ipv6Cidr"`
	Exposure            Exposure        `json:"exposure,omitempty"`
	Risk                string          `json:"risk"`
	RemediationEligible bool            `json:"remediationEligible"`
	Metadata            FindingMetadata `json:"metadata"`
}

// UnmarshalJSON decodes a Finding, treating an absent remediationEligible
// field as true.
func (f *Finding) UnmarshalJSON(data []byte) error {
	type alias Finding
	a := alias{RemediationEligible: true}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*f = Finding(a)
	return nil
}

// WorldOpen reports whether the finding's source range is one of the
// fully-unrestricted sentinels.
func (f Finding) WorldOpen() bool {
	return (f.CIDR != nil && *f.CIDR == WorldOpenIPv4) ||
		(f.IPv6CIDR != nil && *f.IPv6CIDR == WorldOpenIPv6)
}

// SourceRange returns whichever CIDR is populated.
func (f Finding) SourceRange() string {
	if f.CIDR != nil {
		return *f.CIDR
	}
	if f.IPv6CIDR != nil {
		return *f.IPv6CIDR
	}
	return ""
}

// Validate checks the per-finding invariants enforced at the storage boundary.
func (f Finding) Validate() error {
	var errs []error
	if f.FindingID == "" {
		errs = append(errs, errors.New("findingId is empty"))
	}
	if f.GroupID == "" {
		errs = append(errs, errors.New("groupId is empty"))
	}
	hasV4 := f.CIDR != nil && *f.CIDR != ""
	hasV6 := f.IPv6CIDR != nil && *f.IPv6CIDR != ""
	if hasV4 == hasV6 {
		errs = append(errs, errors.New("exactly one of cidr and ipv6Cidr must be set"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("finding %q: %w", f.FindingID, err)
	}
	return nil
}

// PortFilter is the snapshot of the port policy a scan ran with. It encodes
// as the string "ALL" or as a sorted array of ports.
type PortFilter struct {
	All   bool
	Ports []int
}

func (p PortFilter) MarshalJSON() ([]byte, error) {
	if p.All {
		return json.Marshal("ALL")
	}
	ports := p.Ports
	if ports == nil {
		ports = []int{}
	}
	return json.Marshal(ports)
}

func (p *PortFilter) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if !strings.EqualFold(s, "ALL") {
			return fmt.Errorf("port filter: unexpected string %q", s)
		}
		*p = PortFilter{All: true}
		return nil
	}
	var ports []int
	if err := json.Unmarshal(data, &ports); err != nil {
		return fmt.Errorf("port filter: %w", err)
	}
	*p = PortFilter{Ports: ports}
	return nil
}

func (p PortFilter) String() string {
	if p.All {
		return "ALL"
	}
	parts := make([]string, len(p.Ports))
	for i, port := range p.Ports {
		parts[i] = fmt.Sprint(port)
	}
	return strings.Join(parts, ",")
}

// ScanFilters records the filters applied by the scan that produced a document.
type ScanFilters struct {
	Ports PortFilter `json:"ports"`
}

// FindingsDocument is the immutable snapshot written by one scanner run.
type FindingsDocument struct {
	SchemaVersion string      `json:"schemaVersion"`
	Control       string      `json:"control"`
	Generator     string      `json:"generator"`
	AccountID     string      `json:"accountId"`
	Region        string      `json:"region"`
	DetectedAt    time.Time   `json:"detectedAt"`
	Filters       ScanFilters `json:"filters"`
	FindingsCount int         `json:"findingsCount"`
	Findings      []Finding   `json:"findings"`
}

// ValidateHeader checks that the document belongs to this control. It is the
// only check applied on read; per-finding problems are handled finding by
// finding.
func (d *FindingsDocument) ValidateHeader() error {
	if d == nil {
		return errors.New("findings document is nil")
	}
	if d.Control != ControlID {
		return fmt.Errorf("control: got %q; want %q", d.Control, ControlID)
	}
	return nil
}

// Validate checks the document-level invariants and every finding in it.
// All problems are collected before returning.
func (d *FindingsDocument) Validate() error {
	if d == nil {
		return errors.New("findings document is nil")
	}
	var errs []error
	if err := d.ValidateHeader(); err != nil {
		errs = append(errs, err)
	}
	if d.FindingsCount != len(d.Findings) {
		errs = append(errs, fmt.Errorf("findingsCount %d does not match %d findings", d.FindingsCount, len(d.Findings)))
	}
	for _, f := range d.Findings {
		if err := f.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
