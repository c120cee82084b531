package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/pankaj-dahiya-devops/sgguard/internal/models"
)

// ANSI color codes for action output (used when Colored=true).
const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[0;31m"
	ansiGreen  = "\033[0;32m"
	ansiYellow = "\033[0;33m"
	ansiBlue   = "\033[0;34m"
)

// TableOptions controls which columns the renderers emit and how actions
// are coloured.
type TableOptions struct {
	// Colored wraps action labels with ANSI codes. Default false (CI-safe).
	Colored bool

	// IncludeAccount adds an ACCOUNT column to findings tables.
	IncludeAccount bool
}

func actionColor(a models.Action) string {
	switch a {
	case models.ActionRevoked:
		return ansiGreen
	case models.ActionFailed:
		return ansiRed
	case models.ActionSkipped:
		return ansiYellow
	case models.ActionDryRun:
		return ansiBlue
	}
	return ""
}

// ColorAction wraps an action with ANSI codes when colored is true.
// When colored is false the string is returned unchanged (CI-safe default).
func ColorAction(a models.Action, colored bool) string {
	code := actionColor(a)
	if !colored || code == "" {
		return string(a)
	}
	return code + string(a) + ansiReset
}

// ShortenMessage truncates msg to at most max runes, appending "..." when truncated.
// max is treated as at least 4 to guarantee space for the ellipsis.
func ShortenMessage(msg string, max int) string {
	if max < 4 {
		max = 4
	}
	runes := []rune(msg)
	if len(runes) <= max {
		return msg
	}
	return string(runes[:max-3]) + "..."
}

// actionCell returns the action padded to width characters.
// When colored, ANSI codes wrap only the text; trailing padding spaces are plain
// so subsequent columns stay visually aligned regardless of terminal ANSI support.
func actionCell(a models.Action, width int, colored bool) string {
	text := string(a)
	code := actionColor(a)
	if !colored || code == "" {
		return fmt.Sprintf("%-*s", width, text)
	}
	spaces := width - len(text)
	if spaces < 0 {
		spaces = 0
	}
	return code + text + ansiReset + strings.Repeat(" ", spaces)
}

// truncateField shortens s to at most max bytes for ID/label columns.
func truncateField(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "~"
}

// PortRange renders a finding's port range: "22", "20-25" or "all".
func PortRange(from, to *int32) string {
	switch {
	case from == nil || to == nil:
		return "all"
	case *from == -1 && *to == -1:
		return "all"
	case *from == *to:
		return fmt.Sprintf("%d", *from)
	default:
		return fmt.Sprintf("%d-%d", *from, *to)
	}
}

// Protocol renders "-1" as "all".
func Protocol(p string) string {
	if p == "-1" || p == "" {
		return "all"
	}
	return p
}

// RenderFindings writes a formatted findings table to w.
//
// Column order:
//
//	GROUP ID  GROUP NAME  [ACCOUNT]  REGION  PROTO  PORTS  SOURCE  ELIGIBLE
func RenderFindings(w io.Writer, doc *models.FindingsDocument, opts TableOptions) {
	fmt.Fprintf(w, "Findings %s/%s  detected %s  ports %s  count %d\n\n",
		doc.AccountID, doc.Region, doc.DetectedAt.Format("2006-01-02 15:04:05Z"), doc.Filters.Ports, doc.FindingsCount)

	if len(doc.Findings) == 0 {
		fmt.Fprintln(w, "No findings.")
		return
	}

	const (
		wGroup   = 22
		wName    = 24
		wAccount = 12
		wRegion  = 15
		wProto   = 6
		wPorts   = 11
		wSource  = 18
	)

	var hb strings.Builder
	hb.WriteString(fmt.Sprintf("%-*s", wGroup, "GROUP ID"))
	hb.WriteString(fmt.Sprintf("  %-*s", wName, "GROUP NAME"))
	if opts.IncludeAccount {
		hb.WriteString(fmt.Sprintf("  %-*s", wAccount, "ACCOUNT"))
	}
	hb.WriteString(fmt.Sprintf("  %-*s", wRegion, "REGION"))
	hb.WriteString(fmt.Sprintf("  %-*s", wProto, "PROTO"))
	hb.WriteString(fmt.Sprintf("  %-*s", wPorts, "PORTS"))
	hb.WriteString(fmt.Sprintf("  %-*s", wSource, "SOURCE"))
	hb.WriteString("  ELIGIBLE")
	header := hb.String()

	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", len(header)))

	for _, f := range doc.Findings {
		var rb strings.Builder
		rb.WriteString(fmt.Sprintf("%-*s", wGroup, truncateField(f.GroupID, wGroup)))
		rb.WriteString(fmt.Sprintf("  %-*s", wName, truncateField(f.GroupName, wName)))
		if opts.IncludeAccount {
			rb.WriteString(fmt.Sprintf("  %-*s", wAccount, truncateField(f.AccountID, wAccount)))
		}
		rb.WriteString(fmt.Sprintf("  %-*s", wRegion, truncateField(f.Region, wRegion)))
		rb.WriteString(fmt.Sprintf("  %-*s", wProto, truncateField(Protocol(f.IPProtocol), wProto)))
		rb.WriteString(fmt.Sprintf("  %-*s", wPorts, PortRange(f.FromPort, f.ToPort)))
		rb.WriteString(fmt.Sprintf("  %-*s", wSource, f.SourceRange()))
		rb.WriteString(fmt.Sprintf("  %t", f.RemediationEligible))
		fmt.Fprintln(w, rb.String())
	}
}

// RenderSummary writes the one-line counters of a remediation run.
func RenderSummary(w io.Writer, s models.RemediationSummary) {
	fmt.Fprintf(w, "total=%d attempted=%d revoked=%d failed=%d (already remediated=%d) skipped=%d dryRun=%d\n",
		s.TotalFindingsInFile, s.Attempted, s.Revoked, s.Failed, s.AlreadyRemediated, s.Skipped, s.DryRun)
}

// RenderReport writes a remediation report: header, summary, then one row
// per result.
//
// Column order:
//
//	FINDING ID  GROUP ID  ACTION  DETAIL
func RenderReport(w io.Writer, rep *models.RemediationReport, opts TableOptions) {
	fmt.Fprintf(w, "Remediation of %s  at %s  mode %s\n",
		rep.SourceFindingsKey, rep.RemediatedAt.Format("2006-01-02 15:04:05Z"), rep.Mode)
	RenderSummary(w, rep.Summary)
	fmt.Fprintln(w)

	if len(rep.Results) == 0 {
		fmt.Fprintln(w, "No results.")
		return
	}

	const (
		wFinding = 36
		wGroup   = 22
		wAction  = 8
		wDetail  = 60
	)

	header := fmt.Sprintf("%-*s  %-*s  %-*s  %s", wFinding, "FINDING ID", wGroup, "GROUP ID", wAction, "ACTION", "DETAIL")
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", len(header)))

	for _, r := range rep.Results {
		detail := r.Reason
		if r.Error != "" {
			detail = r.Error
		}
		if r.AlreadyRemediated {
			detail = "already remediated: " + detail
		}
		fmt.Fprintf(w, "%-*s  %-*s  %s  %s\n",
			wFinding, truncateField(r.FindingID, wFinding),
			wGroup, truncateField(r.GroupID, wGroup),
			actionCell(r.Action, wAction, opts.Colored),
			ShortenMessage(detail, wDetail),
		)
	}
}
