package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"reposync/internal/health"
)

type ConsoleSink struct {
	writer          io.Writer
	format          string // "text", "json", "ndjson"
	mu              sync.Mutex
	stream          *stream // json and ndjson
	allowedStatuses map[string]bool
}

func NewConsoleSink(w io.Writer, format string, filterStatuses []string) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	if format == "" {
		format = "text"
	}

	s := &ConsoleSink{
		writer: w,
		format: format,
	}
	if format != "text" {
		s.stream = newStream(Format(format))
	}

	if len(filterStatuses) > 0 {
		s.allowedStatuses = make(map[string]bool)
		for _, st := range filterStatuses {
			s.allowedStatuses[strings.ToLower(strings.TrimSpace(st))] = true
		}
	}

	return s
}

func (s *ConsoleSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(v)
}

func (s *ConsoleSink) writeLocked(v any) error {
	e, ok := v.(Event)
	if !ok {
		return nil
	}

	// Status filtering only applies to per-repository results.
	if len(s.allowedStatuses) > 0 && e.Type == EventRepoFinished {
		if !s.allowedStatuses[string(e.Status())] {
			return nil
		}
	}

	switch s.format {
	case "json", "ndjson":
		return s.stream.write(s.writer, e)
	case "text":
		line := textLine(e)
		if line == "" {
			return nil
		}
		if _, err := fmt.Fprintln(s.writer, line); err != nil {
			return err
		}
		return flush(s.writer)
	default:
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
}

func (s *ConsoleSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.format == "json" {
		bs, err := s.stream.aggregate()
		if err != nil {
			return err
		}
		if _, err := s.writer.Write(bs); err != nil {
			return err
		}
		return flush(s.writer)
	}
	if s.format != "text" && s.format != "ndjson" {
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
	return nil
}

func textLine(e Event) string {
	switch e.Type {
	case EventRunStarted:
		return fmt.Sprintf("Syncing %d repositories (run %s)", e.Repos, e.RunID)
	case EventRetryScheduled:
		kind := ""
		if e.Attempt != nil && e.Attempt.Kind != "" {
			kind = " (" + e.Attempt.Kind + ")"
		}
		delay := time.Duration(e.DelayMillis) * time.Millisecond
		return color.New(color.Faint).Sprintf("  %s: attempt %d failed%s, retrying in %s", e.Repo, e.NextAttempt-1, kind, delay)
	case EventRepoFinished:
		if e.Health == nil {
			return ""
		}
		return repoLine(*e.Health)
	case EventRunFinished:
		if e.Summary == nil {
			return ""
		}
		sum := e.Summary
		line := fmt.Sprintf("Done: %d synced, %d drifted, %d missing, %d credential failures, %d failed (of %d)",
			sum.Succeeded, sum.Drifted, sum.Missing, sum.CredentialFailures, sum.Failed, sum.Total)
		if e.Cancelled {
			line += " [cancelled]"
		}
		return color.New(color.Bold).Sprint(line)
	}
	return ""
}

func repoLine(h health.RepositoryHealth) string {
	tag := statusColor(h.FinalStatus).Sprintf("[%s]", strings.ToUpper(string(h.FinalStatus)))
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", tag, h.RepositoryID)
	if h.Strategy != "" {
		fmt.Fprintf(&b, " %s", h.Strategy)
	}
	fmt.Fprintf(&b, " (%d attempt(s))", len(h.Attempts))
	if h.LocalCommit != nil && *h.LocalCommit != "" {
		fmt.Fprintf(&b, " @ %s", short(*h.LocalCommit))
	}
	if h.Reason != nil && h.Reason.Message != "" {
		fmt.Fprintf(&b, " - %s", h.Reason.Message)
	}
	return b.String()
}

func statusColor(s health.Status) *color.Color {
	switch s {
	case health.StatusSynced:
		return color.New(color.FgGreen)
	case health.StatusDrifted, health.StatusMissing:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

func short(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
