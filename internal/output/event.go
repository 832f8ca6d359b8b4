package output

import (
	"time"

	"reposync/internal/health"
	"reposync/internal/report"
)

// Event types, in the order a run produces them.
const (
	EventRunStarted      = "run.started"
	EventRepoStarted     = "repo.started"
	EventAttemptFinished = "attempt.finished"
	EventRetryScheduled  = "retry.scheduled"
	EventRepoFinished    = "repo.finished"
	EventRunFinished     = "run.finished"
)

// Event is a lifecycle record for NDJSON streaming output.
//
// In NDJSON mode sinks emit every Event, one JSON object per line. JSON mode
// aggregates the Health of repo.finished events into a single array.
type Event struct {
	Type  string    `json:"type"`
	RunID string    `json:"run_id,omitempty"`
	Time  time.Time `json:"time"`
	Repo  string    `json:"repo,omitempty"`

	Strategy string `json:"strategy,omitempty"`
	Action   string `json:"action,omitempty"`

	Attempt *health.SyncAttempt      `json:"attempt,omitempty"`
	Health  *health.RepositoryHealth `json:"health,omitempty"`

	NextAttempt int   `json:"next_attempt,omitempty"`
	DelayMillis int64 `json:"delay_ms,omitempty"`

	Repos     int             `json:"repos,omitempty"`
	Summary   *report.Summary `json:"summary,omitempty"`
	Cancelled bool            `json:"cancelled,omitempty"`
	ExitCode  int             `json:"exit_code,omitempty"`
}

// Status returns the final status carried by a repo.finished event.
func (e Event) Status() health.Status {
	if e.Health == nil {
		return ""
	}
	return e.Health.FinalStatus
}
