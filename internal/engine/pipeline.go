package engine

import (
	"log/slog"
	"time"

	"github.com/pankaj-dahiya-devops/sgguard/internal/log"
	"github.com/pankaj-dahiya-devops/sgguard/internal/models"
	"github.com/pankaj-dahiya-devops/sgguard/internal/notify"
	"github.com/pankaj-dahiya-devops/sgguard/internal/telemetry"
)

// Document producer names stamped on persisted documents.
const (
	Generator = "cc72-detector"
	Processor = "cc72-remediator"
)

// Status is the coarse outcome of one invocation.
type Status string

const (
	StatusOK      Status = "OK"
	StatusIgnored Status = "IGNORED"
	StatusError   Status = "ERROR"
)

// ScanResult is returned by Scanner.Scan.
type ScanResult struct {
	Status Status `json:"status"`
	Key    string `json:"s3Key"`
	Count  int    `json:"count"`

	Document *models.FindingsDocument `json:"-"`
}

// Outcome is returned by Remediator.Remediate. Message is set for
// StatusError; ReportKey and Summary for StatusOK.
type Outcome struct {
	Status    Status                     `json:"status"`
	Message   string                     `json:"message,omitempty"`
	ReportKey string                     `json:"remediationReportKey,omitempty"`
	Summary   *models.RemediationSummary `json:"summary,omitempty"`

	Report *models.RemediationReport `json:"-"`
}

// Options carries the collaborators both stages share. Zero values select
// the defaults: no notifications, no-op telemetry, a discarding logger,
// the wall clock.
type Options struct {
	Notifier  notify.Notifier
	Telemetry *telemetry.Telemetry
	Logger    *slog.Logger
	Now       func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Notifier == nil {
		o.Notifier = notify.Nop{}
	}
	if o.Telemetry == nil {
		o.Telemetry = telemetry.Noop()
	}
	if o.Logger == nil {
		o.Logger = log.Discard()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
