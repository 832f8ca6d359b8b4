// Package report holds the run report handed to the orchestrator and writes
// it deterministically.
package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"reposync/internal/health"
)

const (
	SchemaVersion = 1

	// MaxStderrBytes bounds the stderr kept per attempt; the tail is kept.
	MaxStderrBytes = 4 << 10
)

var ErrDuplicateRepository = errors.New("repository already reported")

type Summary struct {
	Total              int `json:"total"`
	Succeeded          int `json:"succeeded"`
	Drifted            int `json:"drifted"`
	Missing            int `json:"missing"`
	CredentialFailures int `json:"credential_failures"`
	// Failed counts every repository that did not reach a working copy:
	// Failed, CredentialFailure and Missing.
	Failed int `json:"failed"`
}

// RunReport is the sole artifact a run produces. Repositories is a map; the
// JSON encoder emits map keys sorted, which keeps output stable.
type RunReport struct {
	SchemaVersion int                                `json:"schema_version"`
	RunID         string                             `json:"run_id"`
	StartedAt     time.Time                          `json:"started_at"`
	FinishedAt    time.Time                          `json:"finished_at"`
	Cancelled     bool                               `json:"cancelled,omitempty"`
	Repositories  map[string]health.RepositoryHealth `json:"repositories"`
	Summary       Summary                            `json:"summary"`
}

// NewRunID returns a time-ordered UUID (v7).
func NewRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func New(runID string, startedAt time.Time) *RunReport {
	if runID == "" {
		runID = NewRunID()
	}
	return &RunReport{
		SchemaVersion: SchemaVersion,
		RunID:         runID,
		StartedAt:     startedAt.UTC(),
		Repositories:  map[string]health.RepositoryHealth{},
	}
}

// Add stores a finalized repository health. Each repository is reported
// exactly once.
func (r *RunReport) Add(h health.RepositoryHealth) error {
	if h.RepositoryID == "" {
		return fmt.Errorf("report: repository id is empty")
	}
	if _, ok := r.Repositories[h.RepositoryID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRepository, h.RepositoryID)
	}
	h.Attempts = append([]health.SyncAttempt{}, h.Attempts...)
	for i := range h.Attempts {
		h.Attempts[i].Stderr = TruncateStderr(h.Attempts[i].Stderr)
		h.Attempts[i].StartedAt = h.Attempts[i].StartedAt.UTC()
		h.Attempts[i].FinishedAt = h.Attempts[i].FinishedAt.UTC()
	}
	if h.Reason != nil {
		reason := *h.Reason
		reason.Stderr = TruncateStderr(reason.Stderr)
		h.Reason = &reason
	}
	r.Repositories[h.RepositoryID] = h
	return nil
}

// Has reports whether id already has an entry.
func (r *RunReport) Has(id string) bool {
	_, ok := r.Repositories[id]
	return ok
}

// Finish stamps the end time and recomputes the summary.
func (r *RunReport) Finish(at time.Time, cancelled bool) {
	r.FinishedAt = at.UTC()
	r.Cancelled = cancelled
	r.Summary = Summarize(r.Repositories)
}

func Summarize(repos map[string]health.RepositoryHealth) Summary {
	var s Summary
	for _, h := range repos {
		s.Total++
		switch h.FinalStatus {
		case health.StatusSynced:
			s.Succeeded++
		case health.StatusDrifted:
			s.Drifted++
		case health.StatusMissing:
			s.Missing++
			s.Failed++
		case health.StatusCredentialFailure:
			s.CredentialFailures++
			s.Failed++
		default:
			s.Failed++
		}
	}
	return s
}

// Count returns how many repositories ended with status.
func (r *RunReport) Count(status health.Status) int {
	n := 0
	for _, h := range r.Repositories {
		if h.FinalStatus == status {
			n++
		}
	}
	return n
}

// TruncateStderr keeps the last MaxStderrBytes bytes of s.
func TruncateStderr(s string) string {
	if len(s) <= MaxStderrBytes {
		return s
	}
	const marker = "[truncated]\n"
	tail := s[len(s)-(MaxStderrBytes-len(marker)):]
	return marker + tail
}

// Encode writes rr as 2-space indented JSON with a trailing newline.
func Encode(w io.Writer, rr *RunReport) error {
	if rr == nil {
		return fmt.Errorf("report: nil run report")
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(rr)
}

// Marshal returns the bytes Encode would write.
func Marshal(rr *RunReport) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, rr); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write encodes rr to path atomically: readers see either the previous file
// or the complete new one.
func Write(path string, rr *RunReport) error {
	data, err := Marshal(rr)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return WriteFileAtomic(path, data, 0o644)
}

// WriteFileAtomic writes data to a temporary file next to path, syncs it and
// renames it into place.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if path == "" {
		return fmt.Errorf("output path required")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary report file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("failed to set report permissions: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close report: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move report into place: %w", err)
	}
	committed = true

	// Best effort: persist the rename itself.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
