package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pankaj-dahiya-devops/sgguard/internal/models"
	"github.com/pankaj-dahiya-devops/sgguard/internal/notify"
	"github.com/pankaj-dahiya-devops/sgguard/internal/policy"
	"github.com/pankaj-dahiya-devops/sgguard/internal/providers/aws/common"
	awssecurity "github.com/pankaj-dahiya-devops/sgguard/internal/providers/aws/security"
	"github.com/pankaj-dahiya-devops/sgguard/internal/rules"
	"github.com/pankaj-dahiya-devops/sgguard/internal/store"
	"github.com/pankaj-dahiya-devops/sgguard/internal/trigger"
)

// ── test doubles ──────────────────────────────────────────────────────────────

type stubCollector struct {
	inv *models.AWSInventory
	err error
}

func (s stubCollector) CollectInventory(context.Context, *common.ProfileConfig) (*models.AWSInventory, error) {
	return s.inv, s.err
}

// stateRevoker removes permissions from a set of live permissions keyed by
// finding identity, answering "not found" for anything already gone, much
// like EC2 does.
type stateRevoker struct {
	mu    sync.Mutex
	live  map[string]bool
	fail  map[string]error
	calls []string
}

func newStateRevoker(findings ...models.Finding) *stateRevoker {
	r := &stateRevoker{live: map[string]bool{}, fail: map[string]error{}}
	for _, f := range findings {
		r.live[permKey(f)] = true
	}
	return r
}

func permKey(f models.Finding) string {
	return fmt.Sprintf("%s|%s|%d|%s", f.GroupID, f.IPProtocol, aws.ToInt32(f.FromPort), f.SourceRange())
}

func (r *stateRevoker) RevokeIngress(_ context.Context, _ *common.ProfileConfig, f models.Finding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, f.FindingID)
	if err, ok := r.fail[f.FindingID]; ok {
		return err
	}
	if !r.live[permKey(f)] {
		return fmt.Errorf("revoke ingress on %s: %w", f.GroupID, awssecurity.ErrPermissionNotFound)
	}
	delete(r.live, permKey(f))
	return nil
}

type recordingNotifier struct {
	msgs []notify.Message
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, m notify.Message) error {
	n.msgs = append(n.msgs, m)
	return n.err
}

// ── helpers ───────────────────────────────────────────────────────────────────

const (
	testBucket   = "audit"
	findingsPfx  = "audit_reports/findings"
	remediatePfx = "audit_reports/remediations"
)

var testNow = time.Date(2025, 9, 10, 12, 0, 0, 0, time.UTC)

func testAccount() *common.ProfileConfig {
	return &common.ProfileConfig{ProfileName: "default", AccountID: "111122223333", Region: "us-east-1"}
}

func clock() time.Time { return testNow }

func finding(id, group, proto string, from, to int32, cidr string) models.Finding {
	f := models.Finding{
		FindingID:           id,
		Control:             models.ControlID,
		DetectedAt:          testNow,
		AccountID:           "111122223333",
		Region:              "us-east-1",
		GroupID:             group,
		Direction:           models.DirectionIngress,
		IPProtocol:          proto,
		FromPort:            aws.Int32(from),
		ToPort:              aws.Int32(to),
		RemediationEligible: true,
	}
	if strings.Contains(cidr, ":") {
		f.IPv6CIDR = aws.String(cidr)
	} else {
		f.CIDR = aws.String(cidr)
	}
	return f
}

func putFindings(t *testing.T, s store.ObjectStore, key string, findings ...models.Finding) trigger.ObjectRef {
	t.Helper()
	if findings == nil {
		findings = []models.Finding{}
	}
	doc := &models.FindingsDocument{
		SchemaVersion: models.SchemaVersion,
		Control:       models.ControlID,
		Generator:     Generator,
		AccountID:     "111122223333",
		Region:        "us-east-1",
		DetectedAt:    testNow,
		Filters:       models.ScanFilters{Ports: models.PortFilter{All: true}},
		FindingsCount: len(findings),
		Findings:      findings,
	}
	require.NoError(t, store.PutDocument(context.Background(), s, testBucket, key, doc))
	return trigger.ObjectRef{Bucket: testBucket, Key: key}
}

func newTestRemediator(t *testing.T, s store.ObjectStore, rev awssecurity.Revoker, ports string, dryRun bool, pol *policy.PolicyConfig, n notify.Notifier) *Remediator {
	t.Helper()
	res, err := policy.Resolve(ports, pol)
	require.NoError(t, err)
	return NewRemediator(testAccount(), rev, rules.NewRemediationChain(res), s,
		RemediatorConfig{
			Bucket:             testBucket,
			FindingsPrefix:     findingsPfx,
			RemediationsPrefix: remediatePfx,
			DryRun:             dryRun,
		},
		Options{Notifier: n, Now: clock},
	)
}

func reportKeys(s *store.MemoryStore) []string {
	var keys []string
	for _, k := range s.Keys() {
		if strings.HasPrefix(k, testBucket+"/"+remediatePfx+"/") {
			keys = append(keys, k)
		}
	}
	return keys
}

func storedReport(t *testing.T, s store.ObjectStore, key string) *models.RemediationReport {
	t.Helper()
	rep, err := store.GetReport(context.Background(), s, testBucket, key)
	require.NoError(t, err)
	return rep
}

// ── Scanner ───────────────────────────────────────────────────────────────────

func openSSHInventory() *models.AWSInventory {
	return &models.AWSInventory{
		AccountID: "111122223333",
		Region:    "us-east-1",
		SecurityGroups: []models.AWSSecurityGroup{{
			GroupID:   "sg-web",
			GroupName: "web",
			VpcID:     "vpc-1",
			Ingress: []models.AWSIngressPermission{
				{
					IPProtocol: "tcp", FromPort: aws.Int32(22), ToPort: aws.Int32(22),
					IPv4Ranges: []models.AWSAddrRange{{CIDR: "0.0.0.0/0"}},
					IPv6Ranges: []models.AWSAddrRange{{CIDR: "::/0"}},
				},
				{
					IPProtocol: "tcp", FromPort: aws.Int32(443), ToPort: aws.Int32(443),
					IPv4Ranges: []models.AWSAddrRange{{CIDR: "0.0.0.0/0"}},
				},
				{
					IPProtocol: "tcp", FromPort: aws.Int32(5432), ToPort: aws.Int32(5432),
					IPv4Ranges: []models.AWSAddrRange{{CIDR: "10.0.0.0/8"}},
				},
			},
		}},
	}
}

func newTestScanner(s store.ObjectStore, c awssecurity.InventoryCollector, n notify.Notifier) *Scanner {
	return NewScanner(c, NewDetectorRegistry(), s, testBucket, findingsPfx, Options{Notifier: n, Now: clock})
}

func TestScan_WritesOneDocument(t *testing.T) {
	s := store.NewMemoryStore()
	n := &recordingNotifier{}

	res, err := newTestScanner(s, stubCollector{inv: openSSHInventory()}, n).
		Scan(context.Background(), testAccount(), policy.AllPorts())
	require.NoError(t, err)

	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, 3, res.Count)
	assert.True(t, strings.HasPrefix(res.Key, findingsPfx+"/cc72-findings-20250910T120000Z-"))
	require.Len(t, s.Keys(), 1)

	doc, err := store.GetFindings(context.Background(), s, testBucket, res.Key)
	require.NoError(t, err)
	assert.Equal(t, Generator, doc.Generator)
	assert.Equal(t, 3, doc.FindingsCount)
	assert.True(t, doc.Filters.Ports.All)
	assert.True(t, doc.DetectedAt.Equal(testNow))
	for _, f := range doc.Findings {
		assert.True(t, f.RemediationEligible)
		assert.Equal(t, models.DirectionIngress, f.Direction)
	}

	require.Len(t, n.msgs, 1)
	assert.Equal(t, "[SOC2 CC7.2] Detector findings: 3 rule(s)", n.msgs[0].Subject)
}

func TestScan_PortFilterRecorded(t *testing.T) {
	s := store.NewMemoryStore()

	res, err := newTestScanner(s, stubCollector{inv: openSSHInventory()}, nil).
		Scan(context.Background(), testAccount(), policy.NewPortSet(443, 22))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)

	raw, err := s.Get(context.Background(), testBucket, res.Key)
	require.NoError(t, err)
	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.Equal(t, map[string]any{"ports": []any{float64(22), float64(443)}}, generic["filters"])

	res, err = newTestScanner(s, stubCollector{inv: openSSHInventory()}, nil).
		Scan(context.Background(), testAccount(), policy.NewPortSet(3389))
	require.NoError(t, err)
	assert.Zero(t, res.Count)
	assert.Equal(t, []models.Finding{}, res.Document.Findings)
}

func TestScan_EnumerationErrorWritesNothing(t *testing.T) {
	s := store.NewMemoryStore()
	n := &recordingNotifier{}
	boom := errors.New("AccessDenied")

	_, err := newTestScanner(s, stubCollector{err: boom}, n).
		Scan(context.Background(), testAccount(), policy.AllPorts())
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, s.Keys())
	assert.Empty(t, n.msgs)
}

func TestScan_NotificationFailureSwallowed(t *testing.T) {
	s := store.NewMemoryStore()
	n := &recordingNotifier{err: errors.New("sns down")}

	res, err := newTestScanner(s, stubCollector{inv: openSSHInventory()}, n).
		Scan(context.Background(), testAccount(), policy.AllPorts())
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Len(t, s.Keys(), 1)
}

// ── Remediator ────────────────────────────────────────────────────────────────

// TestRemediate_OpenSSHRevoked covers the canonical path: a world-open SSH
// rule inside the port policy is revoked and reported.
func TestRemediate_OpenSSHRevoked(t *testing.T) {
	s := store.NewMemoryStore()
	f := finding("f-1", "sg-web", "tcp", 22, 22, "0.0.0.0/0")
	ref := putFindings(t, s, findingsPfx+"/cc72-findings-a.json", f)
	rev := newStateRevoker(f)
	n := &recordingNotifier{}

	out, err := newTestRemediator(t, s, rev, "22,3389", false, nil, n).Remediate(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, StatusOK, out.Status)

	assert.Equal(t, models.RemediationSummary{TotalFindingsInFile: 1, Attempted: 1, Revoked: 1}, *out.Summary)
	assert.Equal(t, []string{"f-1"}, rev.calls)

	keys := reportKeys(s)
	require.Len(t, keys, 1)
	rep := storedReport(t, s, strings.TrimPrefix(keys[0], testBucket+"/"))
	assert.Equal(t, Processor, rep.Processor)
	assert.Equal(t, ref.Key, rep.SourceFindingsKey)
	assert.Equal(t, models.ModeEnforce, rep.Mode)
	assert.Equal(t, models.ActionRevoked, rep.Results[0].Action)

	require.Len(t, n.msgs, 1)
	assert.Contains(t, n.msgs[0].Subject, "revoked=1")
}

func TestRemediate_PortOutsidePolicySkipped(t *testing.T) {
	s := store.NewMemoryStore()
	f := finding("f-1", "sg-web", "tcp", 443, 443, "0.0.0.0/0")
	ref := putFindings(t, s, findingsPfx+"/a.json", f)
	rev := newStateRevoker(f)

	out, err := newTestRemediator(t, s, rev, "22,3389", false, nil, nil).Remediate(context.Background(), ref)
	require.NoError(t, err)

	assert.Equal(t, models.RemediationSummary{TotalFindingsInFile: 1, Skipped: 1}, *out.Summary)
	assert.Equal(t, models.RemediationResult{
		FindingID: "f-1", GroupID: "sg-web", Action: models.ActionSkipped, Reason: "port not in policy",
	}, out.Report.Results[0])
	assert.Empty(t, rev.calls)
}

func TestRemediate_DryRunMutatesNothing(t *testing.T) {
	s := store.NewMemoryStore()
	f1 := finding("f-1", "sg-web", "tcp", 22, 22, "0.0.0.0/0")
	f2 := finding("f-2", "sg-web", "tcp", 3389, 3389, "::/0")
	ref := putFindings(t, s, findingsPfx+"/a.json", f1, f2)
	rev := newStateRevoker(f1, f2)
	n := &recordingNotifier{}

	out, err := newTestRemediator(t, s, rev, "ALL", true, nil, n).Remediate(context.Background(), ref)
	require.NoError(t, err)

	assert.Empty(t, rev.calls)
	assert.Equal(t, models.RemediationSummary{TotalFindingsInFile: 2, Attempted: 2, DryRun: 2}, *out.Summary)
	assert.Equal(t, models.ModeDryRun, out.Report.Mode)
	for _, r := range out.Report.Results {
		assert.Equal(t, models.ActionDryRun, r.Action)
	}
	assert.Contains(t, n.msgs[0].Subject, "dryRun=true")
}

// TestRemediate_FailureDoesNotStopBatch verifies that a revoke error is
// recorded and the remaining findings are still processed.
func TestRemediate_FailureDoesNotStopBatch(t *testing.T) {
	s := store.NewMemoryStore()
	f1 := finding("f-1", "sg-a", "tcp", 22, 22, "0.0.0.0/0")
	f2 := finding("f-2", "sg-b", "tcp", 22, 22, "0.0.0.0/0")
	ref := putFindings(t, s, findingsPfx+"/a.json", f1, f2)
	rev := newStateRevoker(f1, f2)
	rev.fail["f-1"] = errors.New("UnauthorizedOperation: denied")

	out, err := newTestRemediator(t, s, rev, "22", false, nil, nil).Remediate(context.Background(), ref)
	require.NoError(t, err)

	assert.Equal(t, []string{"f-1", "f-2"}, rev.calls)
	assert.Equal(t, models.RemediationSummary{TotalFindingsInFile: 2, Attempted: 2, Revoked: 1, Failed: 1}, *out.Summary)
	assert.Equal(t, models.ActionFailed, out.Report.Results[0].Action)
	assert.Contains(t, out.Report.Results[0].Error, "UnauthorizedOperation")
	assert.False(t, out.Report.Results[0].AlreadyRemediated)
	assert.Equal(t, models.ActionRevoked, out.Report.Results[1].Action)
}

// TestRemediate_Idempotent replays the same document: the second run must
// not change state and must classify every revoke as already remediated.
func TestRemediate_Idempotent(t *testing.T) {
	s := store.NewMemoryStore()
	f1 := finding("f-1", "sg-web", "tcp", 22, 22, "0.0.0.0/0")
	f2 := finding("f-2", "sg-web", "tcp", 22, 22, "::/0")
	ref := putFindings(t, s, findingsPfx+"/a.json", f1, f2)
	rev := newStateRevoker(f1, f2)
	rem := newTestRemediator(t, s, rev, "22,3389", false, nil, nil)

	first, err := rem.Remediate(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Summary.Revoked)
	assert.Empty(t, rev.live)

	second, err := rem.Remediate(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, models.RemediationSummary{
		TotalFindingsInFile: 2, Attempted: 2, Failed: 2, AlreadyRemediated: 2,
	}, *second.Summary)
	for _, r := range second.Report.Results {
		assert.True(t, r.AlreadyRemediated)
	}
	assert.Len(t, reportKeys(s), 2, "each invocation writes its own report")
}

func TestRemediate_FilterChain(t *testing.T) {
	s := store.NewMemoryStore()
	ineligible := finding("f-1", "sg-a", "tcp", 22, 22, "0.0.0.0/0")
	ineligible.RemediationEligible = false
	restricted := finding("f-2", "sg-a", "tcp", 22, 22, "10.0.0.0/8")
	exempt := finding("f-3", "sg-keep", "tcp", 22, 22, "0.0.0.0/0")
	bastion := finding("f-4", "sg-b", "tcp", 22, 22, "0.0.0.0/0")
	bastion.GroupName = "bastion-eu"
	ref := putFindings(t, s, findingsPfx+"/a.json", ineligible, restricted, exempt, bastion)

	pol := &policy.PolicyConfig{
		Version:      1,
		ExemptGroups: []string{"sg-keep"},
		Exemptions:   []policy.ExemptionConfig{{Name: "bastion", Expression: `groupName.startsWith("bastion-")`}},
	}
	rev := newStateRevoker()
	out, err := newTestRemediator(t, s, rev, "ALL", false, pol, nil).Remediate(context.Background(), ref)
	require.NoError(t, err)

	var reasons []string
	for _, r := range out.Report.Results {
		assert.Equal(t, models.ActionSkipped, r.Action)
		reasons = append(reasons, r.Reason)
	}
	assert.Equal(t, []string{
		"remediationEligible=false",
		"not ingress or not world-open",
		"exempted by policy: exempt_groups",
		"exempted by policy: bastion",
	}, reasons)
	assert.Empty(t, rev.calls)
	assert.Equal(t, 4, out.Summary.Skipped)
}

func TestRemediate_IgnoresOtherPrefixes(t *testing.T) {
	s := store.NewMemoryStore()
	rev := newStateRevoker()

	for _, key := range []string{
		remediatePfx + "/cc72-remediation-x.json",
		"audit_reports/findings-archive/x.json",
		"x.json",
	} {
		out, err := newTestRemediator(t, s, rev, "ALL", false, nil, nil).
			Remediate(context.Background(), trigger.ObjectRef{Bucket: testBucket, Key: key})
		require.NoError(t, err)
		assert.Equal(t, StatusIgnored, out.Status, key)
	}
	assert.Empty(t, s.Keys())
}

func TestRemediate_MalformedDocument(t *testing.T) {
	for name, body := range map[string]string{
		"truncated":     `{"control":"SOC2-CC7.2","findings":[`,
		"other control": `{"control":"other","findingsCount":0,"findings":[]}`,
	} {
		t.Run(name, func(t *testing.T) {
			s := store.NewMemoryStore()
			key := findingsPfx + "/bad.json"
			require.NoError(t, s.Put(context.Background(), testBucket, key, []byte(body)))
			n := &recordingNotifier{}

			out, err := newTestRemediator(t, s, newStateRevoker(), "ALL", false, nil, n).
				Remediate(context.Background(), trigger.ObjectRef{Bucket: testBucket, Key: key})
			require.NoError(t, err)
			assert.Equal(t, StatusError, out.Status)
			assert.NotEmpty(t, out.Message)
			assert.Empty(t, reportKeys(s))
			assert.Empty(t, n.msgs)
		})
	}
}

func TestRemediate_InvalidFindingSkippedAndReported(t *testing.T) {
	s := store.NewMemoryStore()
	good := finding("f-1", "sg-web", "tcp", 22, 22, "0.0.0.0/0")
	bad := finding("f-2", "sg-web", "tcp", 22, 22, "0.0.0.0/0")
	bad.IPv6CIDR = aws.String("::/0")

	body, err := json.Marshal(map[string]any{
		"control":       models.ControlID,
		"findingsCount": 5,
		"findings":      []models.Finding{good, bad},
	})
	require.NoError(t, err)
	key := findingsPfx + "/mixed.json"
	require.NoError(t, s.Put(context.Background(), testBucket, key, body))
	rev := newStateRevoker(good, bad)

	out, err := newTestRemediator(t, s, rev, "ALL", false, nil, nil).
		Remediate(context.Background(), trigger.ObjectRef{Bucket: testBucket, Key: key})
	require.NoError(t, err)
	require.Equal(t, StatusOK, out.Status)
	assert.Equal(t, models.RemediationSummary{TotalFindingsInFile: 2, Attempted: 1, Revoked: 1, Skipped: 1}, *out.Summary)
	assert.Equal(t, []string{"f-1"}, rev.calls)

	require.Len(t, reportKeys(s), 1)
	assert.Equal(t, models.ActionSkipped, out.Report.Results[1].Action)
	assert.Equal(t, rules.ReasonNotWorldOpen, out.Report.Results[1].Reason)
}

func TestRemediate_MissingObjectIsError(t *testing.T) {
	s := store.NewMemoryStore()
	out, err := newTestRemediator(t, s, newStateRevoker(), "ALL", false, nil, nil).
		Remediate(context.Background(), trigger.ObjectRef{Bucket: testBucket, Key: findingsPfx + "/gone.json"})
	require.NoError(t, err)
	assert.Equal(t, StatusError, out.Status)
	assert.Contains(t, out.Message, "object not found")
	assert.Empty(t, s.Keys())
}

type brokenStore struct{ store.ObjectStore }

func (brokenStore) Get(context.Context, string, string) ([]byte, error) {
	return nil, errors.New("connection reset")
}

func TestRemediate_StorageFailureReturnsError(t *testing.T) {
	s := store.NewMemoryStore()
	_, err := newTestRemediator(t, brokenStore{s}, newStateRevoker(), "ALL", false, nil, nil).
		Remediate(context.Background(), trigger.ObjectRef{Bucket: testBucket, Key: findingsPfx + "/a.json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Empty(t, s.Keys())
}

func TestRemediate_EmptyDocumentStillReports(t *testing.T) {
	s := store.NewMemoryStore()
	ref := putFindings(t, s, findingsPfx+"/empty.json")

	out, err := newTestRemediator(t, s, newStateRevoker(), "ALL", false, nil, nil).Remediate(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, models.RemediationSummary{}, *out.Summary)
	assert.Len(t, reportKeys(s), 1)
}

// TestPipeline_ScanThenRemediate runs both stages against one store, the way
// the create-event wires them in production.
func TestPipeline_ScanThenRemediate(t *testing.T) {
	s := store.NewMemoryStore()
	scan, err := newTestScanner(s, stubCollector{inv: openSSHInventory()}, nil).
		Scan(context.Background(), testAccount(), policy.AllPorts())
	require.NoError(t, err)

	rev := newStateRevoker(scan.Document.Findings...)
	out, err := newTestRemediator(t, s, rev, "22,3389", false, nil, nil).
		Remediate(context.Background(), trigger.ObjectRef{Bucket: testBucket, Key: scan.Key})
	require.NoError(t, err)

	// SSH over IPv4 and IPv6 revoked, HTTPS left alone.
	assert.Equal(t, models.RemediationSummary{TotalFindingsInFile: 3, Attempted: 2, Revoked: 2, Skipped: 1}, *out.Summary)
	require.NoError(t, out.Report.Validate())
}
