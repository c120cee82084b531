// Package engine runs the two pipeline stages. The Scanner turns a security
// group inventory into a findings document; the Remediator turns a findings
// document into revocations and a remediation report.
//
// Engine code must not call the AWS SDK directly; it delegates to the
// provider, rules, store, and notify packages.
package engine

import (
	"context"

	"github.com/pankaj-dahiya-devops/sgguard/internal/policy"
	"github.com/pankaj-dahiya-devops/sgguard/internal/providers/aws/common"
	"github.com/pankaj-dahiya-devops/sgguard/internal/trigger"
)

// Detector is the detect stage. *Scanner implements it.
type Detector interface {
	Scan(ctx context.Context, account *common.ProfileConfig, ports policy.PortSet) (*ScanResult, error)
}

// Responder is the remediate stage. *Remediator implements it.
type Responder interface {
	Remediate(ctx context.Context, ref trigger.ObjectRef) (*Outcome, error)
}

var (
	_ Detector  = (*Scanner)(nil)
	_ Responder = (*Remediator)(nil)
)
