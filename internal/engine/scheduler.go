package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"reposync/internal/credentials"
	"reposync/internal/descriptor"
	"reposync/internal/health"
	"reposync/internal/labels"
	"reposync/internal/metrics"
	"reposync/internal/output"
	"reposync/internal/report"
	"reposync/internal/retry"
	"reposync/internal/vcs"
)

type updateKind int

const (
	updStarted updateKind = iota
	updAttempt
	updBackoff
	updCommits
	updNote
	updDone
)

// update is the only channel from a worker to the aggregator. Workers never
// touch trackers or the report directly.
type update struct {
	kind     updateKind
	repo     string
	strategy string
	action   string

	attempt health.SyncAttempt

	next  int
	delay time.Duration

	remote, local string
	noteKind      string
	noteMessage   string
}

// aggregator owns all trackers and the run report. run must be the only
// goroutine calling its methods until the updates channel is closed.
type aggregator struct {
	rr       *report.RunReport
	out      *output.Manager
	metrics  *metrics.Sync
	log      zerolog.Logger
	trackers map[string]*health.Tracker
	last     map[string]health.SyncAttempt
	errs     []error
}

func newAggregator(rr *report.RunReport, out *output.Manager, m *metrics.Sync, log zerolog.Logger) *aggregator {
	return &aggregator{
		rr:       rr,
		out:      out,
		metrics:  m,
		log:      log,
		trackers: make(map[string]*health.Tracker),
		last:     make(map[string]health.SyncAttempt),
	}
}

func (a *aggregator) run(updates <-chan update) {
	for u := range updates {
		a.apply(u)
	}
	// Workers always finish with updDone; anything left over was cut short.
	for id, t := range a.trackers {
		a.fail(fmt.Errorf("repository %s: worker exited without a result", id))
		a.finish(t.Finalize())
	}
}

func (a *aggregator) tracker(id string) *health.Tracker {
	t, ok := a.trackers[id]
	if !ok {
		t = health.NewTracker(id)
		a.trackers[id] = t
	}
	return t
}

func (a *aggregator) apply(u update) {
	switch u.kind {
	case updStarted:
		t := a.tracker(u.repo)
		if u.strategy != "" {
			a.check(t.SetStrategy(u.strategy))
		}
		a.emit(output.Event{Type: output.EventRepoStarted, RunID: a.rr.RunID, Repo: u.repo, Strategy: u.strategy, Action: u.action})

	case updAttempt:
		at := u.attempt
		a.check(a.tracker(u.repo).Record(at))
		a.last[u.repo] = at
		a.metrics.ObserveAttempt(string(at.Operation), string(at.Outcome), at.Kind, at.FinishedAt.Sub(at.StartedAt))
		a.emit(output.Event{Type: output.EventAttemptFinished, RunID: a.rr.RunID, Repo: u.repo, Attempt: &at})

	case updBackoff:
		a.metrics.ObserveBackoff()
		ev := output.Event{
			Type:        output.EventRetryScheduled,
			RunID:       a.rr.RunID,
			Repo:        u.repo,
			NextAttempt: u.next,
			DelayMillis: u.delay.Milliseconds(),
		}
		if last, ok := a.last[u.repo]; ok {
			ev.Attempt = &last
		}
		a.emit(ev)

	case updCommits:
		a.check(a.tracker(u.repo).SetCommits(u.remote, u.local))

	case updNote:
		a.check(a.tracker(u.repo).Annotate(u.noteKind, u.noteMessage))

	case updDone:
		t := a.tracker(u.repo)
		delete(a.trackers, u.repo)
		delete(a.last, u.repo)
		a.finish(t.Finalize())
	}
}

// finish adds h to the report and announces it.
func (a *aggregator) finish(h health.RepositoryHealth) {
	if err := a.rr.Add(h); err != nil {
		a.fail(err)
		return
	}
	a.metrics.ObserveRepository(string(h.FinalStatus))
	stored := a.rr.Repositories[h.RepositoryID]
	a.emit(output.Event{Type: output.EventRepoFinished, RunID: a.rr.RunID, Repo: h.RepositoryID, Strategy: h.Strategy, Health: &stored})

	ev := a.log.Info()
	switch h.FinalStatus {
	case health.StatusSynced:
	case health.StatusDrifted, health.StatusMissing:
		ev = a.log.Warn()
	default:
		ev = a.log.Error()
	}
	ev = ev.Str("repo", h.RepositoryID).Str("status", string(h.FinalStatus)).Int("attempts", len(h.Attempts))
	if h.Reason != nil {
		ev = ev.Str("reason", h.Reason.Kind)
	}
	ev.Msg("repository finished")
}

func (a *aggregator) emit(e output.Event) {
	if err := a.out.Emit(e); err != nil {
		a.log.Warn().Err(err).Str("event", e.Type).Msg("output sink failed")
	}
}

func (a *aggregator) check(err error) {
	if err != nil {
		a.fail(err)
	}
}

func (a *aggregator) fail(err error) {
	a.log.Error().Err(err).Msg("aggregator")
	a.errs = append(a.errs, err)
}

func (a *aggregator) err() error {
	return errors.Join(a.errs...)
}

// unit is one repository's sync sequence, run on a worker goroutine.
type unit struct {
	engine   *Engine
	resolver *labels.Resolver
	d        descriptor.Descriptor
	out      chan<- update
	log      zerolog.Logger
}

func (u *unit) send(up update) {
	up.repo = u.d.ID
	u.out <- up
}

func (u *unit) run(ctx context.Context) {
	// Not started yet: Run records it as cancelled.
	if ctx.Err() != nil {
		return
	}
	e := u.engine
	defer u.send(update{kind: updDone})

	strategy, err := u.resolver.Resolve(u.d)
	if err != nil {
		u.send(update{kind: updStarted})
		u.configFailure(retry.KindInvalidLabelCombination, err)
		return
	}

	action := "clone"
	if st, err := vcs.Inspect(u.d.LocalPath); err == nil && st.HasCheckout() {
		action = "fetch"
	}
	u.send(update{kind: updStarted, strategy: strategy.String(), action: action})
	u.log.Debug().Str("strategy", strategy.String()).Str("action", action).Msg("repository started")

	credStart := time.Now()
	token, err := e.Credentials.Resolve(ctx, u.d)
	e.Metrics.ObserveCredential(time.Since(credStart))
	if err != nil {
		u.credentialFailure(ctx, err)
		return
	}

	s := &repoSync{
		exec:       e.Executor,
		d:          u.d,
		strategy:   strategy,
		credential: token,
		opTimeout:  e.OpTimeout,
	}
	ctrl := retry.NewController(e.Policy)
	ctrl.Sleep = e.Sleep
	ctrl.Now = e.now
	ctrl.Rand = e.Rand
	ctrl.OnAttempt = func(a health.SyncAttempt) {
		ev := u.log.Debug()
		if a.Outcome != health.OutcomeSuccess {
			ev = u.log.Warn()
		}
		ev = ev.Int("attempt", a.AttemptNumber).
			Str("op", string(a.Operation)).
			Str("step", a.Step).
			Str("outcome", string(a.Outcome))
		if a.ExitCode != nil {
			ev = ev.Int("exit_code", *a.ExitCode)
		}
		if a.Kind != "" {
			ev = ev.Str("kind", a.Kind)
		}
		ev.Msg("attempt finished")
		u.send(update{kind: updAttempt, attempt: a})
	}
	ctrl.OnBackoff = func(_ string, next int, d time.Duration) {
		u.send(update{kind: updBackoff, next: next, delay: d})
	}

	outcome := ctrl.Run(ctx, u.d.ID, s.attempt)

	switch outcome.State {
	case retry.StateSucceeded:
		u.send(update{kind: updCommits, remote: s.remote, local: s.local})
		if s.diverged {
			u.log.Warn().Msg("local branch has diverged from the remote and was left untouched")
		}
	case retry.StateExhausted:
		u.send(update{kind: updNote, noteKind: string(outcome.Last.Kind), noteMessage: outcome.Err.Error()})
	}
}

func (u *unit) configFailure(kind retry.Kind, err error) {
	at := u.engine.now()
	u.send(update{kind: updAttempt, attempt: health.SyncAttempt{
		RepositoryID:  u.d.ID,
		Operation:     health.OpVerify,
		AttemptNumber: 1,
		StartedAt:     at,
		FinishedAt:    at,
		Outcome:       health.OutcomePermanentFailure,
		Step:          health.StepConfig,
		Kind:          string(kind),
	}})
	u.send(update{kind: updNote, noteKind: string(kind), noteMessage: err.Error()})
	u.log.Error().Err(err).Msg("invalid sync strategy")
}

// credentialFailure records the single attempt for a repository whose
// credential could not be resolved. No git subprocess is started for it.
func (u *unit) credentialFailure(ctx context.Context, err error) {
	at := u.engine.now()
	a := health.SyncAttempt{
		RepositoryID:  u.d.ID,
		Operation:     health.OpVerify,
		AttemptNumber: 1,
		StartedAt:     at,
		FinishedAt:    at,
		Step:          health.StepResolve,
	}
	kind := health.KindCredentialUnavailable
	if ctx.Err() != nil {
		a.Outcome = health.OutcomeCancelled
		kind = health.KindCancelled
	} else {
		a.Outcome = health.OutcomePermanentFailure
	}
	a.Kind = kind
	u.send(update{kind: updAttempt, attempt: a})
	u.send(update{kind: updNote, noteKind: kind, noteMessage: err.Error()})
	if !errors.Is(err, credentials.ErrCredentialUnavailable) {
		u.log.Error().Err(err).Msg("credential resolver failed")
		return
	}
	u.log.Error().Err(err).Msg("credential unavailable")
}
