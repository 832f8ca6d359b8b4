package health

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Operation is the logical version-control operation an attempt performed.
type Operation string

const (
	OpClone  Operation = "clone"
	OpFetch  Operation = "fetch"
	OpVerify Operation = "verify"
)

// Outcome is the classified result of a single attempt.
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeTransientFailure Outcome = "transient_failure"
	OutcomePermanentFailure Outcome = "permanent_failure"
	OutcomeCancelled        Outcome = "cancelled"
)

// Status is the terminal classification of a repository for a run.
type Status string

const (
	StatusSynced            Status = "synced"
	StatusDrifted           Status = "drifted"
	StatusMissing           Status = "missing"
	StatusCredentialFailure Status = "credential_failure"
	StatusFailed            Status = "failed"
)

// Failure kinds that the decision table cares about. They mirror retry.Kind
// values; health does not import retry to keep the dependency one-way.
const (
	KindAuth                  = "auth"
	KindCredentialUnavailable = "credential_unavailable"
	KindCancelled             = "cancelled"
)

// unreachableKinds are the ls-remote failures that say the remote, not the
// local machine, could not be reached.
var unreachableKinds = map[string]bool{
	"network":      true,
	"timeout":      true,
	"rate_limited": true,
	"not_found":    true,
	"unknown":      true,
}

// Step names recorded on attempts. StepLsRemote failures of an unreachable
// kind are what make a repository Missing.
const (
	StepLsRemote = "ls-remote"
	StepResolve  = "credentials"
	StepConfig   = "config"
	StepSchedule = "schedule"
)

// SyncAttempt is an immutable record of one try at syncing a repository.
type SyncAttempt struct {
	RepositoryID  string    `json:"repository_id"`
	Operation     Operation `json:"operation"`
	AttemptNumber int       `json:"attempt_number"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	ExitCode      *int      `json:"exit_code,omitempty"`
	Outcome       Outcome   `json:"outcome"`
	// Step is the executor step that produced the outcome (e.g. ls-remote, fetch).
	Step string `json:"step,omitempty"`
	// Kind is the failure classification; empty on success.
	Kind   string `json:"kind,omitempty"`
	Stderr string `json:"stderr,omitempty"`
}

// Reason explains why a repository ended in its final status.
type Reason struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Stderr  string `json:"stderr,omitempty"`
}

// RepositoryHealth is the per-repository entry of a run report.
type RepositoryHealth struct {
	RepositoryID string        `json:"repository_id"`
	FinalStatus  Status        `json:"final_status"`
	Strategy     string        `json:"strategy,omitempty"`
	Attempts     []SyncAttempt `json:"attempts"`
	RemoteCommit *string       `json:"remote_commit,omitempty"`
	LocalCommit  *string       `json:"local_commit,omitempty"`
	Reason       *Reason       `json:"reason,omitempty"`
}

var ErrFinalized = errors.New("repository health is finalized")

// Tracker accumulates attempts for one repository and computes its final status.
// Once Finalize has been called the tracker is frozen.
type Tracker struct {
	mu       sync.Mutex
	id       string
	strategy string
	attempts []SyncAttempt
	remote   string
	local    string
	note     *Reason
	final    *RepositoryHealth
}

func NewTracker(repositoryID string) *Tracker {
	return &Tracker{id: repositoryID}
}

func (t *Tracker) RepositoryID() string { return t.id }

// SetStrategy records a human-readable description of the sync strategy.
func (t *Tracker) SetStrategy(s string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.final != nil {
		return ErrFinalized
	}
	t.strategy = s
	return nil
}

func (t *Tracker) Record(a SyncAttempt) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.final != nil {
		return ErrFinalized
	}
	if a.RepositoryID != t.id {
		return fmt.Errorf("attempt for %q recorded on tracker for %q", a.RepositoryID, t.id)
	}
	t.attempts = append(t.attempts, a)
	return nil
}

// SetCommits records the tip of the tracked branch on the remote (from
// ls-remote) and in the local checkout (from rev-parse).
func (t *Tracker) SetCommits(remote, local string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.final != nil {
		return ErrFinalized
	}
	t.remote = strings.TrimSpace(remote)
	t.local = strings.TrimSpace(local)
	return nil
}

// Annotate attaches a reason that is used when no attempt explains the
// outcome on its own (configuration defects, exhaustion messages).
func (t *Tracker) Annotate(kind, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.final != nil {
		return ErrFinalized
	}
	t.note = &Reason{Kind: kind, Message: message}
	return nil
}

func (t *Tracker) Frozen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.final != nil
}

// Finalize freezes the tracker and returns the computed health. Calling it
// again returns the same value.
func (t *Tracker) Finalize() RepositoryHealth {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.final != nil {
		return cloneHealth(*t.final)
	}

	h := RepositoryHealth{
		RepositoryID: t.id,
		Strategy:     t.strategy,
		Attempts:     append([]SyncAttempt{}, t.attempts...),
	}
	if t.remote != "" {
		r := t.remote
		h.RemoteCommit = &r
	}
	if t.local != "" {
		l := t.local
		h.LocalCommit = &l
	}
	h.FinalStatus = Decide(t.attempts, t.remote, t.local)
	h.Reason = t.reasonFor(h.FinalStatus)

	t.final = &h
	return cloneHealth(h)
}

func (t *Tracker) reasonFor(status Status) *Reason {
	last, ok := lastAttempt(t.attempts)
	switch status {
	case StatusSynced:
		return nil
	case StatusDrifted:
		return &Reason{
			Kind:    "drift",
			Message: fmt.Sprintf("local %s differs from remote %s", shortSHA(t.local), shortSHA(t.remote)),
		}
	}

	r := &Reason{}
	if t.note != nil {
		*r = *t.note
	}
	if ok {
		if r.Kind == "" {
			r.Kind = last.Kind
		}
		r.Stderr = last.Stderr
		if r.Message == "" {
			r.Message = defaultMessage(status, last)
		}
	}
	if r.Kind == "" {
		r.Kind = "unknown"
	}
	if r.Message == "" {
		r.Message = string(status)
	}
	return r
}

func defaultMessage(status Status, last SyncAttempt) string {
	switch status {
	case StatusMissing:
		return fmt.Sprintf("remote unreachable on all %d attempt(s)", last.AttemptNumber)
	case StatusCredentialFailure:
		return "credentials rejected or unavailable"
	}
	if last.Outcome == OutcomeCancelled {
		return "run cancelled before the repository finished syncing"
	}
	if last.Step != "" {
		return fmt.Sprintf("%s failed (%s) on attempt %d", last.Step, last.Kind, last.AttemptNumber)
	}
	return fmt.Sprintf("attempt %d failed (%s)", last.AttemptNumber, last.Kind)
}

// Decide applies the final-status decision table to a completed attempt log.
// A repository is Missing only when every attempt failed at ls-remote for a
// reason on the remote side. A git binary that cannot start is Failed.
func Decide(attempts []SyncAttempt, remote, local string) Status {
	if len(attempts) == 0 {
		return StatusFailed
	}

	succeeded := false
	for _, a := range attempts {
		if a.Outcome == OutcomeSuccess {
			succeeded = true
			break
		}
	}
	if succeeded {
		if remote != "" && remote == local {
			return StatusSynced
		}
		return StatusDrifted
	}

	if allCredentialFailures(attempts) {
		return StatusCredentialFailure
	}
	if allUnreachable(attempts) {
		return StatusMissing
	}
	return StatusFailed
}

func allCredentialFailures(attempts []SyncAttempt) bool {
	for _, a := range attempts {
		if a.Outcome != OutcomePermanentFailure {
			return false
		}
		if a.Kind != KindAuth && a.Kind != KindCredentialUnavailable {
			return false
		}
	}
	return true
}

func allUnreachable(attempts []SyncAttempt) bool {
	for _, a := range attempts {
		if a.Outcome == OutcomeCancelled {
			return false
		}
		if a.Step != StepLsRemote || !unreachableKinds[a.Kind] {
			return false
		}
	}
	return true
}

func lastAttempt(attempts []SyncAttempt) (SyncAttempt, bool) {
	if len(attempts) == 0 {
		return SyncAttempt{}, false
	}
	return attempts[len(attempts)-1], true
}

func shortSHA(s string) string {
	if s == "" {
		return "(none)"
	}
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

func cloneHealth(h RepositoryHealth) RepositoryHealth {
	out := h
	out.Attempts = append([]SyncAttempt{}, h.Attempts...)
	if h.RemoteCommit != nil {
		r := *h.RemoteCommit
		out.RemoteCommit = &r
	}
	if h.LocalCommit != nil {
		l := *h.LocalCommit
		out.LocalCommit = &l
	}
	if h.Reason != nil {
		r := *h.Reason
		out.Reason = &r
	}
	return out
}

// CancelledHealth builds the entry for a repository that never got to run
// because the run was cancelled.
func CancelledHealth(repositoryID string, at time.Time) RepositoryHealth {
	t := NewTracker(repositoryID)
	_ = t.Record(SyncAttempt{
		RepositoryID:  repositoryID,
		Operation:     OpVerify,
		AttemptNumber: 1,
		StartedAt:     at,
		FinishedAt:    at,
		Outcome:       OutcomeCancelled,
		Step:          StepSchedule,
		Kind:          KindCancelled,
	})
	_ = t.Annotate(KindCancelled, "run cancelled before the repository was scheduled")
	return t.Finalize()
}

// ConfigErrorHealth builds the entry for a repository whose descriptor could
// not be turned into a sync strategy. No subprocess is run for it.
func ConfigErrorHealth(repositoryID, kind string, err error, at time.Time) RepositoryHealth {
	t := NewTracker(repositoryID)
	_ = t.Record(SyncAttempt{
		RepositoryID:  repositoryID,
		Operation:     OpVerify,
		AttemptNumber: 1,
		StartedAt:     at,
		FinishedAt:    at,
		Outcome:       OutcomePermanentFailure,
		Step:          StepConfig,
		Kind:          kind,
	})
	_ = t.Annotate(kind, err.Error())
	return t.Finalize()
}
