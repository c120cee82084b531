package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pankaj-dahiya-devops/sgguard/internal/log"
	"github.com/pankaj-dahiya-devops/sgguard/internal/models"
	"github.com/pankaj-dahiya-devops/sgguard/internal/notify"
	"github.com/pankaj-dahiya-devops/sgguard/internal/providers/aws/common"
	awssecurity "github.com/pankaj-dahiya-devops/sgguard/internal/providers/aws/security"
	"github.com/pankaj-dahiya-devops/sgguard/internal/rules"
	"github.com/pankaj-dahiya-devops/sgguard/internal/store"
	"github.com/pankaj-dahiya-devops/sgguard/internal/telemetry"
	"github.com/pankaj-dahiya-devops/sgguard/internal/trigger"
)

// RemediatorConfig is the subset of configuration the remediator needs.
type RemediatorConfig struct {
	// Bucket receives remediation reports.
	Bucket             string
	FindingsPrefix     string
	RemediationsPrefix string
	DryRun             bool
}

// Remediator consumes one findings document, revokes the findings that pass
// the filter chain and writes one remediation report.
// Findings are processed sequentially, and a failed revoke never stops the
// batch.
type Remediator struct {
	account *common.ProfileConfig
	revoker awssecurity.Revoker
	chain   rules.Chain
	store   store.ObjectStore
	cfg     RemediatorConfig
	opts    Options
}

// NewRemediator wires a Remediator acting on account.
func NewRemediator(
	account *common.ProfileConfig,
	revoker awssecurity.Revoker,
	chain rules.Chain,
	objects store.ObjectStore,
	cfg RemediatorConfig,
	opts Options,
) *Remediator {
	return &Remediator{
		account: account,
		revoker: revoker,
		chain:   chain,
		store:   objects,
		cfg:     cfg,
		opts:    opts.withDefaults(),
	}
}

// Remediate processes the object at ref.
//
//   - ref outside the findings prefix: IGNORED, nothing read or written.
//   - missing object or undecodable document: ERROR with a message, nil
//     error, nothing written.
//   - other storage failures: returned error, so the caller can retry.
//   - otherwise: OK with exactly one report written.
func (r *Remediator) Remediate(ctx context.Context, ref trigger.ObjectRef) (out *Outcome, err error) {
	ctx = log.ContextAttrs(ctx,
		slog.String("stage", "remediator"),
		slog.String("bucket", ref.Bucket),
		slog.String("key", ref.Key),
	)

	if !store.UnderPrefix(ref.Key, r.cfg.FindingsPrefix) {
		r.opts.Logger.InfoContext(ctx, "ignoring object outside findings prefix")
		return &Outcome{Status: StatusIgnored}, nil
	}

	ctx, span := r.opts.Telemetry.Start(ctx, telemetry.SpanRemediate,
		attribute.String("source", ref.String()),
		attribute.Bool("dry_run", r.cfg.DryRun),
	)
	defer func() { telemetry.End(span, err) }()

	doc, err := store.GetFindings(ctx, r.store, ref.Bucket, ref.Key)
	if errors.Is(err, store.ErrMalformedDocument) || errors.Is(err, store.ErrNotFound) {
		r.opts.Logger.ErrorContext(ctx, "unusable findings document", slog.Any("error", err))
		span.SetAttributes(attribute.String("outcome", string(StatusError)))
		return &Outcome{Status: StatusError, Message: err.Error()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load findings %s: %w", ref, err)
	}
	if doc.FindingsCount != len(doc.Findings) {
		r.opts.Logger.WarnContext(ctx, "findingsCount does not match findings",
			slog.Int("findings_count", doc.FindingsCount),
			slog.Int("findings", len(doc.Findings)),
		)
	}

	mode := models.ModeEnforce
	if r.cfg.DryRun {
		mode = models.ModeDryRun
	}

	summary := models.RemediationSummary{TotalFindingsInFile: len(doc.Findings)}
	results := make([]models.RemediationResult, 0, len(doc.Findings))
	for _, f := range doc.Findings {
		res := r.remediateOne(ctx, f)
		summary.Record(res)
		r.opts.Telemetry.RemediationResult(ctx, res)
		results = append(results, res)
	}

	report := &models.RemediationReport{
		SchemaVersion:     models.SchemaVersion,
		Control:           models.ControlID,
		Processor:         Processor,
		SourceBucket:      ref.Bucket,
		SourceFindingsKey: ref.Key,
		RemediatedAt:      r.opts.Now().UTC().Truncate(time.Second),
		Mode:              mode,
		Summary:           summary,
		Results:           results,
	}

	key := store.NewKey(r.cfg.RemediationsPrefix, store.KindRemediation, report.RemediatedAt)
	if err := store.PutDocument(ctx, r.store, r.cfg.Bucket, key, report); err != nil {
		return nil, fmt.Errorf("write remediation report: %w", err)
	}
	r.opts.Logger.InfoContext(ctx, "remediation report written",
		slog.String("report", key),
		slog.String("mode", string(mode)),
		slog.Int("attempted", summary.Attempted),
		slog.Int("revoked", summary.Revoked),
		slog.Int("failed", summary.Failed),
		slog.Int("skipped", summary.Skipped),
		slog.Int("already_remediated", summary.AlreadyRemediated),
	)

	msg := notify.RemediationMessage(summary, mode, r.cfg.Bucket, key, ref.Key)
	if err := r.opts.Notifier.Notify(ctx, msg); err != nil {
		r.opts.Logger.WarnContext(ctx, "publish remediation summary", slog.Any("error", err))
	}

	return &Outcome{Status: StatusOK, ReportKey: key, Summary: &report.Summary, Report: report}, nil
}

// remediateOne runs the filter chain and, when the finding passes, the
// revoke (or its dry-run stand-in).
func (r *Remediator) remediateOne(ctx context.Context, f models.Finding) models.RemediationResult {
	res := models.RemediationResult{FindingID: f.FindingID, GroupID: f.GroupID}

	if err := f.Validate(); err != nil {
		r.opts.Logger.WarnContext(ctx, "skipping invalid finding", slog.Any("error", err))
		res.Action = models.ActionSkipped
		res.Reason = rules.ReasonNotWorldOpen
		return res
	}
	if reason, ok := r.chain.Evaluate(f); !ok {
		res.Action = models.ActionSkipped
		res.Reason = reason
		return res
	}
	if r.cfg.DryRun {
		res.Action = models.ActionDryRun
		return res
	}

	ctx, span := r.opts.Telemetry.Start(ctx, telemetry.SpanRevoke,
		attribute.String("finding_id", f.FindingID),
		attribute.String("group_id", f.GroupID),
		attribute.String("source_range", f.SourceRange()),
	)
	err := r.revoker.RevokeIngress(ctx, r.account, f)
	telemetry.End(span, err)

	if err != nil {
		res.Action = models.ActionFailed
		res.Error = err.Error()
		res.AlreadyRemediated = errors.Is(err, awssecurity.ErrPermissionNotFound)
		r.opts.Logger.WarnContext(ctx, "revoke failed",
			slog.String("finding_id", f.FindingID),
			slog.String("group_id", f.GroupID),
			slog.Bool("already_remediated", res.AlreadyRemediated),
			slog.Any("error", err),
		)
		return res
	}
	res.Action = models.ActionRevoked
	return res
}
