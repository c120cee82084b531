// Package notify publishes short run summaries to operators. Delivery is
// best effort: callers log a failed Notify and carry on.
package notify

import (
	"context"
	"fmt"

	"github.com/pankaj-dahiya-devops/sgguard/internal/models"
)

// Message is one summary notification. Body is encoded as JSON.
type Message struct {
	Subject string
	Body    any
}

// Notifier delivers summary messages.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Nop drops every message. It is used when no topic is configured.
type Nop struct{}

func (Nop) Notify(context.Context, Message) error { return nil }

// DetectorSummary is the body published after a scan.
type DetectorSummary struct {
	Summary   string `json:"summary"`
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	Region    string `json:"region"`
	AccountID string `json:"accountId"`
}

// RemediationSummary is the body published after a remediation run.
type RemediationSummary struct {
	Summary           models.RemediationSummary `json:"summary"`
	Mode              models.Mode               `json:"mode"`
	Bucket            string                    `json:"bucket"`
	RemediationKey    string                    `json:"remediationKey"`
	SourceFindingsKey string                    `json:"sourceFindingsKey"`
}

// DetectorMessage builds the post-scan notification.
func DetectorMessage(count int, bucket, key, region, accountID string) Message {
	return Message{
		Subject: fmt.Sprintf("[SOC2 CC7.2] Detector findings: %d rule(s)", count),
		Body: DetectorSummary{
			Summary:   fmt.Sprintf("CC7.2 Detector found %d open-to-world SG rule(s)", count),
			Bucket:    bucket,
			Key:       key,
			Region:    region,
			AccountID: accountID,
		},
	}
}

// RemediationMessage builds the post-remediation notification.
func RemediationMessage(s models.RemediationSummary, mode models.Mode, bucket, reportKey, sourceKey string) Message {
	return Message{
		Subject: fmt.Sprintf("[SOC2 CC7.2] Remediation: revoked=%d, failed=%d, skipped=%d, dryRun=%t",
			s.Revoked, s.Failed, s.Skipped, mode == models.ModeDryRun),
		Body: RemediationSummary{
			Summary:           s,
			Mode:              mode,
			Bucket:            bucket,
			RemediationKey:    reportKey,
			SourceFindingsKey: sourceKey,
		},
	}
}
