package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Action is the outcome recorded for one finding during remediation.
// It is a closed set; decoding any other value fails.
type Action string

const (
	ActionRevoked Action = "REVOKED"
	ActionSkipped Action = "SKIPPED"
	ActionDryRun  Action = "DRY_RUN"
	ActionFailed  Action = "FAILED"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionRevoked, ActionSkipped, ActionDryRun, ActionFailed:
		return true
	}
	return false
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("action: %w", err)
	}
	if !Action(s).Valid() {
		return fmt.Errorf("action: unknown value %q", s)
	}
	*a = Action(s)
	return nil
}

// Mode describes whether the remediator was allowed to mutate groups.
type Mode string

const (
	ModeEnforce Mode = "enforce"
	ModeDryRun  Mode = "dry-run"
)

// RemediationResult is the per-finding record inside a RemediationReport.
// Reason is set for SKIPPED, Error for FAILED.
type RemediationResult struct {
	FindingID string `json:"findingId"`
	GroupID   string `json:"groupId"`
	Action    Action `json:"action"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
	// AlreadyRemediated marks a FAILED revoke whose rule or group no longer
	// exists, as opposed to a genuine failure.
	AlreadyRemediated bool `json:"alreadyRemediated,omitempty"`
}

// RemediationSummary aggregates the results of one remediation run.
// Invariants: Skipped+Attempted == TotalFindingsInFile and
// Attempted == Revoked+Failed+DryRun. AlreadyRemediated is a subset of Failed.
type RemediationSummary struct {
	TotalFindingsInFile int `json:"totalFindingsInFile"`
	Attempted           int `json:"attempted"`
	Revoked             int `json:"revoked"`
	Failed              int `json:"failed"`
	Skipped             int `json:"skipped"`
	DryRun              int `json:"dryRun"`
	AlreadyRemediated   int `json:"alreadyRemediated"`
}

// Record folds one result into the summary counters.
func (s *RemediationSummary) Record(r RemediationResult) {
	switch r.Action {
	case ActionSkipped:
		s.Skipped++
		return
	case ActionRevoked:
		s.Revoked++
	case ActionDryRun:
		s.DryRun++
	case ActionFailed:
		s.Failed++
		if r.AlreadyRemediated {
			s.AlreadyRemediated++
		}
	}
	s.Attempted++
}

// Validate checks the counting invariants.
func (s RemediationSummary) Validate() error {
	var errs []error
	if s.Skipped+s.Attempted != s.TotalFindingsInFile {
		errs = append(errs, fmt.Errorf("skipped %d + attempted %d != totalFindingsInFile %d", s.Skipped, s.Attempted, s.TotalFindingsInFile))
	}
	if s.Revoked+s.Failed+s.DryRun != s.Attempted {
		errs = append(errs, fmt.Errorf("revoked %d + failed %d + dryRun %d != attempted %d", s.Revoked, s.Failed, s.DryRun, s.Attempted))
	}
	if s.AlreadyRemediated > s.Failed {
		errs = append(errs, fmt.Errorf("alreadyRemediated %d exceeds failed %d", s.AlreadyRemediated, s.Failed))
	}
	return errors.Join(errs...)
}

// RemediationReport is the immutable record written by one remediator run.
type RemediationReport struct {
	SchemaVersion     string              `json:"schemaVersion"`
	Control           string              `json:"control"`
	Processor         string              `json:"processor"`
	SourceBucket      string              `json:"sourceBucket,omitempty"`
	SourceFindingsKey string              `json:"sourceFindingsKey"`
	RemediatedAt      time.Time           `json:"remediatedAt"`
	Mode              Mode                `json:"mode"`
	Summary           RemediationSummary  `json:"summary"`
	Results           []RemediationResult `json:"results"`
}

// Validate checks the report before it is persisted.
func (r *RemediationReport) Validate() error {
	if r == nil {
		return errors.New("remediation report is nil")
	}
	var errs []error
	if r.SourceFindingsKey == "" {
		errs = append(errs, errors.New("sourceFindingsKey is empty"))
	}
	if len(r.Results) != r.Summary.TotalFindingsInFile {
		errs = append(errs, fmt.Errorf("%d results for %d findings", len(r.Results), r.Summary.TotalFindingsInFile))
	}
	for i, res := range r.Results {
		if !res.Action.Valid() {
			errs = append(errs, fmt.Errorf("results[%d]: unknown action %q", i, res.Action))
		}
	}
	if err := r.Summary.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
