package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"reposync/internal/health"
)

var statusOrder = []health.Status{
	health.StatusFailed,
	health.StatusCredentialFailure,
	health.StatusMissing,
	health.StatusDrifted,
	health.StatusSynced,
}

// WriteMarkdown renders a human-readable run summary. Problem repositories
// are listed first.
func WriteMarkdown(w io.Writer, rr *RunReport) error {
	if rr == nil {
		return fmt.Errorf("report: nil run report")
	}
	var b strings.Builder

	b.WriteString("# RepoSync Run Report\n\n")
	fmt.Fprintf(&b, "- Run: `%s`\n", rr.RunID)
	fmt.Fprintf(&b, "- Started: %s\n", rr.StartedAt.Format("2006-01-02 15:04:05 MST"))
	if !rr.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "- Finished: %s (%s)\n", rr.FinishedAt.Format("2006-01-02 15:04:05 MST"), rr.FinishedAt.Sub(rr.StartedAt).Round(time.Second))
	}
	if rr.Cancelled {
		b.WriteString("- **Run was cancelled before every repository completed.**\n")
	}
	b.WriteString("\n")

	s := rr.Summary
	b.WriteString("## Summary\n\n")
	b.WriteString("| Total | Synced | Drifted | Missing | Credential failures | Failed |\n")
	b.WriteString("| ---: | ---: | ---: | ---: | ---: | ---: |\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d | %d |\n\n", s.Total, s.Succeeded, s.Drifted, s.Missing, s.CredentialFailures, s.Failed)

	ids := sortedForMarkdown(rr.Repositories)
	if len(ids) == 0 {
		b.WriteString("No repositories were processed.\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	b.WriteString("## Repositories\n\n")
	b.WriteString("| Repository | Status | Strategy | Attempts | Local | Remote |\n")
	b.WriteString("| --- | --- | --- | ---: | --- | --- |\n")
	for _, id := range ids {
		h := rr.Repositories[id]
		fmt.Fprintf(&b, "| %s | %s | %s | %d | %s | %s |\n",
			escapeCell(id), statusBadge(h.FinalStatus), escapeCell(orDash(h.Strategy)),
			len(h.Attempts), commitCell(h.LocalCommit), commitCell(h.RemoteCommit))
	}
	b.WriteString("\n")

	var problems []string
	for _, id := range ids {
		if rr.Repositories[id].FinalStatus != health.StatusSynced {
			problems = append(problems, id)
		}
	}
	if len(problems) > 0 {
		b.WriteString("## Needs Attention\n\n")
		for _, id := range problems {
			h := rr.Repositories[id]
			fmt.Fprintf(&b, "### %s (%s)\n\n", id, h.FinalStatus)
			if h.Reason != nil {
				fmt.Fprintf(&b, "- Reason: `%s` %s\n", h.Reason.Kind, h.Reason.Message)
				if stderr := strings.TrimSpace(h.Reason.Stderr); stderr != "" {
					b.WriteString("\n```text\n")
					b.WriteString(lastLines(stderr, 12))
					b.WriteString("\n```\n")
				}
			}
			b.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func sortedForMarkdown(repos map[string]health.RepositoryHealth) []string {
	rank := make(map[health.Status]int, len(statusOrder))
	for i, s := range statusOrder {
		rank[s] = i
	}
	ids := make([]string, 0, len(repos))
	for id := range repos {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ri, rj := rank[repos[ids[i]].FinalStatus], rank[repos[ids[j]].FinalStatus]
		if ri != rj {
			return ri < rj
		}
		return ids[i] < ids[j]
	})
	return ids
}

func statusBadge(s health.Status) string {
	switch s {
	case health.StatusSynced:
		return "✅ synced"
	case health.StatusDrifted:
		return "⚠️ drifted"
	case health.StatusMissing:
		return "❓ missing"
	case health.StatusCredentialFailure:
		return "🔒 credential_failure"
	default:
		return "❌ " + string(s)
	}
}

func commitCell(c *string) string {
	if c == nil || *c == "" {
		return "-"
	}
	v := *c
	if len(v) > 12 {
		v = v[:12]
	}
	return "`" + v + "`"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
