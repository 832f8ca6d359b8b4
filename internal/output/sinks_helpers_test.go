package output

import (
	"reposync/internal/health"
	"reposync/internal/report"
)

func finished(id string, status health.Status) Event {
	sha := "0123456789abcdef0123456789abcdef01234567"
	h := health.RepositoryHealth{
		RepositoryID: id,
		FinalStatus:  status,
		Strategy:     "full",
		Attempts:     []health.SyncAttempt{{RepositoryID: id, Operation: health.OpClone, AttemptNumber: 1, Outcome: health.OutcomeSuccess}},
		LocalCommit:  &sha,
		RemoteCommit: &sha,
	}
	if status != health.StatusSynced {
		h.Reason = &health.Reason{Kind: "network", Message: "fetch failed (network) on attempt 3"}
	}
	return Event{Type: EventRepoFinished, Repo: id, Health: &h}
}

func runFinished(s report.Summary) Event {
	return Event{Type: EventRunFinished, Summary: &s}
}
