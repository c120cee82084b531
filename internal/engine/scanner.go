package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pankaj-dahiya-devops/sgguard/internal/log"
	"github.com/pankaj-dahiya-devops/sgguard/internal/models"
	"github.com/pankaj-dahiya-devops/sgguard/internal/notify"
	"github.com/pankaj-dahiya-devops/sgguard/internal/policy"
	"github.com/pankaj-dahiya-devops/sgguard/internal/providers/aws/common"
	awssecurity "github.com/pankaj-dahiya-devops/sgguard/internal/providers/aws/security"
	"github.com/pankaj-dahiya-devops/sgguard/internal/rulepacks/cc72"
	"github.com/pankaj-dahiya-devops/sgguard/internal/rules"
	"github.com/pankaj-dahiya-devops/sgguard/internal/store"
	"github.com/pankaj-dahiya-devops/sgguard/internal/telemetry"
)

// Scanner snapshots world-open ingress exposure of one account and region
// and persists it as a findings document.
// It never calls the AWS SDK directly; inventory comes from the collector.
type Scanner struct {
	collector awssecurity.InventoryCollector
	registry  rules.RuleRegistry
	store     store.ObjectStore
	bucket    string
	prefix    string
	opts      Options
	newID     func() string
}

// NewScanner wires a Scanner. Documents go to bucket under prefix.
func NewScanner(
	collector awssecurity.InventoryCollector,
	registry rules.RuleRegistry,
	objects store.ObjectStore,
	bucket, prefix string,
	opts Options,
) *Scanner {
	return &Scanner{
		collector: collector,
		registry:  registry,
		store:     objects,
		bucket:    bucket,
		prefix:    prefix,
		opts:      opts.withDefaults(),
		newID:     uuid.NewString,
	}
}

// NewDetectorRegistry returns the registry of detection rules run by Scan.
func NewDetectorRegistry() *rules.DefaultRuleRegistry {
	reg := rules.NewDefaultRuleRegistry()
	for _, r := range cc72.New() {
		reg.Register(r)
	}
	return reg
}

// Scan enumerates every security group, evaluates the detection rules with
// the given port policy and writes exactly one findings document. An
// enumeration failure aborts the scan before anything is written. The
// notification is best effort.
func (s *Scanner) Scan(ctx context.Context, account *common.ProfileConfig, ports policy.PortSet) (res *ScanResult, err error) {
	ctx = log.ContextAttrs(ctx,
		slog.String("stage", "detector"),
		slog.String("account", account.AccountID),
		slog.String("region", account.Region),
	)
	ctx, span := s.opts.Telemetry.Start(ctx, telemetry.SpanScan,
		attribute.String("account", account.AccountID),
		attribute.String("region", account.Region),
		attribute.String("ports", ports.String()),
	)
	defer func() { telemetry.End(span, err) }()

	inv, err := s.collector.CollectInventory(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("collect inventory for account %s in %s: %w", account.AccountID, account.Region, err)
	}
	s.opts.Logger.DebugContext(ctx, "inventory collected", slog.Int("groups", len(inv.SecurityGroups)))

	now := s.opts.Now().UTC().Truncate(time.Second)
	findings := s.registry.EvaluateAll(rules.RuleContext{
		Inventory:   inv,
		DetectPorts: ports,
		Now:         func() time.Time { return now },
		NewID:       s.newID,
	})
	if findings == nil {
		findings = []models.Finding{}
	}

	doc := &models.FindingsDocument{
		SchemaVersion: models.SchemaVersion,
		Control:       models.ControlID,
		Generator:     Generator,
		AccountID:     account.AccountID,
		Region:        account.Region,
		DetectedAt:    now,
		Filters:       models.ScanFilters{Ports: ports.Filter()},
		FindingsCount: len(findings),
		Findings:      findings,
	}

	key := store.NewKey(s.prefix, store.KindFindings, now)
	if err := store.PutDocument(ctx, s.store, s.bucket, key, doc); err != nil {
		return nil, fmt.Errorf("write findings document: %w", err)
	}
	s.opts.Telemetry.FindingsDetected(ctx, len(findings), account.AccountID, account.Region)
	s.opts.Logger.InfoContext(ctx, "findings written",
		slog.String("bucket", s.bucket),
		slog.String("key", key),
		slog.Int("count", len(findings)),
	)

	msg := notify.DetectorMessage(len(findings), s.bucket, key, account.Region, account.AccountID)
	if err := s.opts.Notifier.Notify(ctx, msg); err != nil {
		s.opts.Logger.WarnContext(ctx, "publish detector summary", slog.Any("error", err))
	}

	return &ScanResult{Status: StatusOK, Key: key, Count: len(findings), Document: doc}, nil
}
