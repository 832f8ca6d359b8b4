package output

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"reposync/internal/report"
)

// MarkdownSink rebuilds a run report from lifecycle events and renders it as
// Markdown on Close.
type MarkdownSink struct {
	path      string
	mu        sync.Mutex
	rr        *report.RunReport
	finished  bool
	cancelled bool
	at        time.Time
}

func NewMarkdownSink(path string) (*MarkdownSink, error) {
	if path == "" {
		return nil, fmt.Errorf("report path required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	return &MarkdownSink{path: path}, nil
}

func (s *MarkdownSink) Write(v any) error {
	e, ok := v.(Event)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e.Type {
	case EventRunStarted:
		s.rr = report.New(e.RunID, e.Time)
	case EventRepoFinished:
		if e.Health == nil {
			return nil
		}
		if s.rr == nil {
			s.rr = report.New(e.RunID, e.Time)
		}
		if err := s.rr.Add(*e.Health); err != nil {
			return err
		}
	case EventRunFinished:
		s.finished = true
		s.cancelled = e.Cancelled
		s.at = e.Time
	}
	return nil
}

func (s *MarkdownSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rr == nil {
		// The run never started; leave no report behind.
		return nil
	}
	at := s.at
	if !s.finished || at.IsZero() {
		at = time.Now()
	}
	s.rr.Finish(at, s.cancelled)

	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := report.WriteMarkdown(f, s.rr); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
