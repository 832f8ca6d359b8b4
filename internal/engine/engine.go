// Package engine runs the repository sync across a descriptor store.
//
// Each repository is one unit of work (strategy, credential, retry loop over
// the git steps). Units run on a bounded worker pool and report back to a
// single aggregator goroutine, which owns every health tracker and the run
// report.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"reposync/internal/config"
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

type Engine struct {
	Executor    vcs.Executor
	Credentials credentials.Resolver
	Labels      *labels.Resolver
	Policy      retry.Policy
	Concurrency int
	// OpTimeout bounds each git subprocess; zero means no per-operation limit.
	OpTimeout time.Duration
	// RunID defaults to a fresh UUIDv7.
	RunID string

	Output  *output.Manager
	Metrics *metrics.Sync
	Logger  zerolog.Logger

	// Test seams.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
	Rand  func() float64
}

// New returns an engine with default labels, policy and concurrency.
func New(exec vcs.Executor, creds credentials.Resolver) *Engine {
	return &Engine{
		Executor:    exec,
		Credentials: creds,
		Labels:      labels.Default(),
		Policy:      retry.DefaultPolicy(),
		Concurrency: config.DefaultConcurrency(),
		Logger:      zerolog.Nop(),
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *Engine) validate() error {
	if e == nil {
		return errors.New("engine is nil")
	}
	if e.Executor == nil {
		return errors.New("engine executor is nil")
	}
	if e.Credentials == nil {
		return errors.New("engine credential resolver is nil")
	}
	if e.Concurrency < 0 {
		return fmt.Errorf("concurrency must be >= 1, got %d", e.Concurrency)
	}
	return e.Policy.Validate()
}

// Run syncs every repository in store and returns the run report. The
// report is complete even when ctx is cancelled mid-run: finished
// repositories keep their result and the rest are recorded as cancelled.
// An error is returned only when the run could not start.
func (e *Engine) Run(ctx context.Context, store *descriptor.Store) (*report.RunReport, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("descriptor store is nil")
	}

	runID := e.RunID
	if runID == "" {
		runID = report.NewRunID()
	}
	resolver := e.Labels
	if resolver == nil {
		resolver = labels.Default()
	}
	workers := e.Concurrency
	if workers == 0 {
		workers = config.DefaultConcurrency()
	}

	repos := store.All()
	started := e.now()
	rr := report.New(runID, started)
	log := e.Logger.With().Str("run_id", runID).Logger()

	agg := newAggregator(rr, e.Output, e.Metrics, log)
	agg.emit(output.Event{Type: output.EventRunStarted, RunID: runID, Time: started, Repos: len(repos)})
	e.Metrics.RunStarted(started)
	log.Info().Int("repos", len(repos)).Int("concurrency", workers).Msg("sync started")

	updates := make(chan update)
	aggDone := make(chan struct{})
	go func() {
		defer close(aggDone)
		agg.run(updates)
	}()

	// A failing repository must not cancel its siblings, so the group has
	// no derived context.
	var g errgroup.Group
	g.SetLimit(workers)
	for _, d := range repos {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			u := &unit{engine: e, resolver: resolver, d: d, out: updates, log: log.With().Str("repo", d.ID).Logger()}
			u.run(ctx)
			return nil
		})
	}
	_ = g.Wait()
	close(updates)
	<-aggDone

	cancelled := ctx.Err() != nil
	at := e.now()
	for _, d := range repos {
		if rr.Has(d.ID) {
			continue
		}
		agg.finish(health.CancelledHealth(d.ID, at))
	}

	finished := e.now()
	rr.Finish(finished, cancelled)
	e.Metrics.RunFinished(finished)
	agg.emit(output.Event{
		Type:      output.EventRunFinished,
		RunID:     runID,
		Time:      finished,
		Summary:   &rr.Summary,
		Cancelled: cancelled,
		ExitCode:  ExitCode(rr),
	})
	log.Info().
		Int("synced", rr.Summary.Succeeded).
		Int("drifted", rr.Summary.Drifted).
		Int("failed", rr.Summary.Failed).
		Bool("cancelled", cancelled).
		Dur("elapsed", finished.Sub(started)).
		Msg("sync finished")

	if err := agg.err(); err != nil {
		return rr, err
	}
	return rr, nil
}

// Exit codes.
const (
	ExitOK      = 0
	ExitDrift   = 1
	ExitFailure = 2
	ExitFatal   = 3
)

func exitCodeForRun(fatal, failed, drifted bool) int {
	// 0 = every repository synced
	// 1 = drift or missing remotes, nothing failed
	// 2 = a repository failed or its credentials did
	// 3 = fatal error (the run did not complete)
	if fatal {
		return ExitFatal
	}
	if failed {
		return ExitFailure
	}
	if drifted {
		return ExitDrift
	}
	return ExitOK
}

// ExitCode maps a finished report to the process exit code.
func ExitCode(rr *report.RunReport) int {
	if rr == nil {
		return exitCodeForRun(true, false, false)
	}
	failed := rr.Count(health.StatusFailed)+rr.Count(health.StatusCredentialFailure) > 0
	drifted := rr.Count(health.StatusDrifted)+rr.Count(health.StatusMissing) > 0
	return exitCodeForRun(false, failed, drifted)
}
