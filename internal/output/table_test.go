package output_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/pankaj-dahiya-devops/sgguard/internal/models"
	"github.com/pankaj-dahiya-devops/sgguard/internal/output"
)

// ── helpers ───────────────────────────────────────────────────────────────────

func i32(v int32) *int32 { return &v }

func strPtr(s string) *string { return &s }

func oneDoc(overrides ...func(*models.Finding)) *models.FindingsDocument {
	f := models.Finding{
		FindingID:           "f-1",
		AccountID:           "111122223333",
		Region:              "us-east-1",
		GroupID:             "sg-0123456789abcdef0",
		GroupName:           "web",
		IPProtocol:          "tcp",
		FromPort:            i32(22),
		ToPort:              i32(22),
		CIDR:                strPtr("0.0.0.0/0"),
		RemediationEligible: true,
	}
	for _, fn := range overrides {
		fn(&f)
	}
	return &models.FindingsDocument{
		AccountID:     "111122223333",
		Region:        "us-east-1",
		DetectedAt:    time.Date(2025, 9, 10, 12, 0, 0, 0, time.UTC),
		Filters:       models.ScanFilters{Ports: models.PortFilter{All: true}},
		FindingsCount: 1,
		Findings:      []models.Finding{f},
	}
}

func renderFindings(doc *models.FindingsDocument, opts output.TableOptions) string {
	var buf bytes.Buffer
	output.RenderFindings(&buf, doc, opts)
	return buf.String()
}

// ── findings ──────────────────────────────────────────────────────────────────

func TestRenderFindings_Row(t *testing.T) {
	out := renderFindings(oneDoc(), output.TableOptions{})
	for _, want := range []string{"GROUP ID", "sg-0123456789abcdef0", "web", "tcp", "0.0.0.0/0", "true", "ports ALL"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output\ngot:\n%s", want, out)
		}
	}
	if strings.Contains(out, "ACCOUNT") {
		t.Errorf("ACCOUNT column must not appear when IncludeAccount=false\ngot:\n%s", out)
	}
}

func TestRenderFindings_AccountColumn(t *testing.T) {
	out := renderFindings(oneDoc(), output.TableOptions{IncludeAccount: true})
	if !strings.Contains(out, "ACCOUNT") {
		t.Errorf("expected ACCOUNT column header\ngot:\n%s", out)
	}
}

func TestRenderFindings_AllTrafficIPv6(t *testing.T) {
	out := renderFindings(oneDoc(func(f *models.Finding) {
		f.IPProtocol = "-1"
		f.FromPort, f.ToPort = nil, nil
		f.CIDR, f.IPv6CIDR = nil, strPtr("::/0")
	}), output.TableOptions{})
	if !strings.Contains(out, "all") || !strings.Contains(out, "::/0") {
		t.Errorf("expected all-traffic IPv6 row\ngot:\n%s", out)
	}
}

func TestRenderFindings_Empty(t *testing.T) {
	doc := oneDoc()
	doc.Findings, doc.FindingsCount = nil, 0
	if out := renderFindings(doc, output.TableOptions{}); !strings.Contains(out, "No findings.") {
		t.Errorf("expected 'No findings.'\ngot:\n%s", out)
	}
}

// ── report ────────────────────────────────────────────────────────────────────

func TestRenderReport_ColoredActionsAlign(t *testing.T) {
	rep := &models.RemediationReport{
		SourceFindingsKey: "audit_reports/findings/x.json",
		Mode:              models.ModeEnforce,
		Summary:           models.RemediationSummary{TotalFindingsInFile: 2, Attempted: 2, Revoked: 1, Failed: 1, AlreadyRemediated: 1},
		Results: []models.RemediationResult{
			{FindingID: "f-1", GroupID: "sg-1", Action: models.ActionRevoked},
			{FindingID: "f-2", GroupID: "sg-2", Action: models.ActionFailed, Error: "permission not found", AlreadyRemediated: true},
		},
	}

	var plain, colored bytes.Buffer
	output.RenderReport(&plain, rep, output.TableOptions{})
	output.RenderReport(&colored, rep, output.TableOptions{Colored: true})

	if !strings.Contains(plain.String(), "already remediated: permission not found") {
		t.Errorf("expected already-remediated detail\ngot:\n%s", plain.String())
	}
	if !strings.Contains(plain.String(), "revoked=1 failed=1 (already remediated=1)") {
		t.Errorf("expected summary line\ngot:\n%s", plain.String())
	}
	if strings.Contains(plain.String(), "\033[") {
		t.Error("plain output must not contain ANSI codes")
	}
	if !strings.Contains(colored.String(), "\033[0;32mREVOKED\033[0m") {
		t.Errorf("expected green REVOKED\ngot:\n%q", colored.String())
	}
}

func TestColorAction(t *testing.T) {
	if got := output.ColorAction(models.ActionFailed, false); got != "FAILED" {
		t.Errorf("ColorAction(plain): got %q; want FAILED", got)
	}
	if got := output.ColorAction(models.ActionFailed, true); got != "\033[0;31mFAILED\033[0m" {
		t.Errorf("ColorAction(colored): got %q", got)
	}
}

func TestShortenMessage(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abc", 1, "abc"},
	}
	for _, tc := range cases {
		if got := output.ShortenMessage(tc.in, tc.max); got != tc.want {
			t.Errorf("ShortenMessage(%q, %d): got %q; want %q", tc.in, tc.max, got, tc.want)
		}
	}
}

func TestPortRange(t *testing.T) {
	cases := []struct {
		from, to *int32
		want     string
	}{
		{i32(22), i32(22), "22"},
		{i32(20), i32(25), "20-25"},
		{nil, nil, "all"},
		{i32(-1), i32(-1), "all"},
	}
	for _, tc := range cases {
		if got := output.PortRange(tc.from, tc.to); got != tc.want {
			t.Errorf("PortRange: got %q; want %q", got, tc.want)
		}
	}
}
