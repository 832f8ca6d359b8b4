package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"reposync/internal/health"
)

var (
	ErrRetryExhausted = errors.New("retry budget exhausted")
	ErrPermanent      = errors.New("permanent failure")
	ErrCancelled      = errors.New("cancelled")
)

// State is a node of the retry state machine.
type State string

const (
	StatePending    State = "pending"
	StateAttempting State = "attempting"
	StateBackoff    State = "backoff"
	StateSucceeded  State = "succeeded"
	StateExhausted  State = "exhausted"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateExhausted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// AttemptResult is what one try of the wrapped operation reports back.
type AttemptResult struct {
	Operation health.Operation
	// Step names the executor step that decided the outcome.
	Step     string
	ExitCode *int
	Stderr   string
	// Failure is nil when the attempt succeeded.
	Failure *Failure
}

// AttemptFunc performs attempt number n (starting at 1).
type AttemptFunc func(ctx context.Context, n int) AttemptResult

// Outcome is the terminal result of Run.
type Outcome struct {
	State    State
	Attempts []health.SyncAttempt
	// Last is the failure of the final attempt, nil on success.
	Last *Failure
	Err  error
}

// Controller drives an AttemptFunc through the retry state machine.
type Controller struct {
	Policy Policy
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
	// Rand returns a uniform sample in [0, 1) for jitter.
	Rand func() float64
	// OnAttempt, if set, is called after every recorded attempt.
	OnAttempt func(health.SyncAttempt)
	// OnBackoff, if set, is called before each wait.
	OnBackoff func(repoID string, next int, d time.Duration)
}

func NewController(p Policy) *Controller {
	return &Controller{Policy: p}
}

func (c *Controller) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

func (c *Controller) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

func (c *Controller) rand() float64 {
	if c.Rand != nil {
		return c.Rand()
	}
	return rand.Float64()
}

// Run executes fn until it succeeds, fails permanently, exhausts the policy,
// or ctx is cancelled. Every try, including a cancelled one, yields exactly
// one SyncAttempt; the number of attempts never exceeds Policy.MaxAttempts.
func (c *Controller) Run(ctx context.Context, repoID string, fn AttemptFunc) Outcome {
	maxAttempts := c.Policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var (
		out     Outcome
		attempt int
		last    AttemptResult
		lastOp  health.Operation = health.OpVerify
	)
	state := StatePending

	record := func(a health.SyncAttempt) {
		out.Attempts = append(out.Attempts, a)
		if c.OnAttempt != nil {
			c.OnAttempt(a)
		}
	}
	recordCancelled := func(n int, step string) {
		at := c.now()
		record(health.SyncAttempt{
			RepositoryID:  repoID,
			Operation:     lastOp,
			AttemptNumber: n,
			StartedAt:     at,
			FinishedAt:    at,
			Outcome:       health.OutcomeCancelled,
			Step:          step,
			Kind:          string(KindCancelled),
		})
		out.Last = &Failure{Kind: KindCancelled, Message: "run cancelled"}
	}

	for !state.Terminal() {
		switch state {
		case StatePending:
			attempt = 1
			state = StateAttempting

		case StateAttempting:
			if ctx.Err() != nil {
				recordCancelled(attempt, health.StepSchedule)
				state = StateCancelled
				continue
			}

			started := c.now()
			last = fn(ctx, attempt)
			finished := c.now()
			if last.Operation != "" {
				lastOp = last.Operation
			}

			a := health.SyncAttempt{
				RepositoryID:  repoID,
				Operation:     lastOp,
				AttemptNumber: attempt,
				StartedAt:     started,
				FinishedAt:    finished,
				ExitCode:      last.ExitCode,
				Step:          last.Step,
				Stderr:        last.Stderr,
			}

			switch f := last.Failure; {
			case f == nil:
				a.Outcome = health.OutcomeSuccess
				out.Last = nil
				state = StateSucceeded
			case f.Kind == KindCancelled || ctx.Err() != nil:
				a.Outcome = health.OutcomeCancelled
				a.Kind = string(KindCancelled)
				out.Last = &Failure{Kind: KindCancelled, Message: f.Message}
				state = StateCancelled
			case !f.Transient():
				a.Outcome = health.OutcomePermanentFailure
				a.Kind = string(f.Kind)
				out.Last = f
				state = StateFailed
			default:
				a.Outcome = health.OutcomeTransientFailure
				a.Kind = string(f.Kind)
				out.Last = f
				if attempt >= maxAttempts {
					state = StateExhausted
				} else {
					state = StateBackoff
				}
			}
			record(a)

		case StateBackoff:
			d := c.Policy.JitteredDelay(attempt, c.rand())
			if c.OnBackoff != nil {
				c.OnBackoff(repoID, attempt+1, d)
			}
			if err := c.sleep(ctx, d); err != nil {
				recordCancelled(attempt+1, "backoff")
				state = StateCancelled
				continue
			}
			attempt++
			state = StateAttempting
		}
	}

	out.State = state
	switch state {
	case StateExhausted:
		out.Err = fmt.Errorf("%w after %d attempt(s): %s", ErrRetryExhausted, len(out.Attempts), out.Last)
	case StateFailed:
		out.Err = fmt.Errorf("%w: %s", ErrPermanent, out.Last)
	case StateCancelled:
		out.Err = ErrCancelled
	}
	return out
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
