package github

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// DefaultRequestBudget is the assumed allowance before the first response
// reports the real one.
const DefaultRequestBudget = 5000

// RequestBudget tracks the GitHub API rate limit from response headers and
// blocks callers once it is spent, until the reset time or a Retry-After
// cooldown has passed.
type RequestBudget struct {
	mu        sync.Mutex
	remaining int
	reset     time.Time
	cooldown  time.Time
	// trialSent is set once a single request has been let through after the
	// reset time to learn the refreshed allowance.
	trialSent bool
	now       func() time.Time
	notifyCh  chan struct{}
}

func NewRequestBudget() *RequestBudget {
	return &RequestBudget{
		remaining: DefaultRequestBudget,
		reset:     time.Now().Add(time.Hour),
		now:       time.Now,
		notifyCh:  make(chan struct{}),
	}
}

func (b *RequestBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

// Acquire takes n requests from the budget, waiting as needed.
func (b *RequestBudget) Acquire(ctx context.Context, n int) error {
	if b == nil {
		return fmt.Errorf("acquire: nil request budget")
	}
	if ctx == nil {
		return fmt.Errorf("acquire: nil context")
	}
	if n <= 0 {
		return fmt.Errorf("acquire: n must be > 0 (got %d)", n)
	}
	for range n {
		if err := b.acquireOne(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (b *RequestBudget) acquireOne(ctx context.Context) error {
	for {
		b.mu.Lock()
		now := b.now()
		ch := b.notifyCh

		switch {
		case now.Before(b.cooldown):
			until := b.cooldown
			b.mu.Unlock()
			if err := waitUntil(ctx, until.Sub(now), ch); err != nil {
				return err
			}

		case b.remaining > 0:
			b.remaining--
			b.mu.Unlock()
			return nil

		case !now.Before(b.reset):
			if !b.trialSent {
				b.trialSent = true
				b.mu.Unlock()
				return nil
			}
			b.mu.Unlock()
			if err := waitUntil(ctx, -1, ch); err != nil {
				return err
			}

		default:
			reset := b.reset
			b.mu.Unlock()
			if err := waitUntil(ctx, reset.Sub(now), ch); err != nil {
				return err
			}
		}
	}
}

// waitUntil blocks for d (forever when d < 0), until ch is closed, or until
// ctx is done.
func waitUntil(ctx context.Context, d time.Duration, ch <-chan struct{}) error {
	var timeout <-chan time.Time
	if d >= 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
	case <-timeout:
	}
	return nil
}

func (b *RequestBudget) signalLocked() {
	close(b.notifyCh)
	b.notifyCh = make(chan struct{})
}

// UpdateFromResponse reads Retry-After, X-RateLimit-Remaining and
// X-RateLimit-Reset and wakes waiting callers when anything changed.
func (b *RequestBudget) UpdateFromResponse(resp *http.Response) {
	if b == nil || resp == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	changed := false
	if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds > 0 {
		until := b.now().Add(time.Duration(seconds) * time.Second)
		if until.After(b.cooldown) {
			b.cooldown = until
			changed = true
		}
	}
	if val, err := strconv.Atoi(resp.Header.Get("X-RateLimit-Remaining")); err == nil && val >= 0 && val != b.remaining {
		b.remaining = val
		changed = true
	}
	if val, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil && val > 0 {
		if reset := time.Unix(val, 0); !b.reset.Equal(reset) {
			b.reset = reset
			changed = true
		}
	}

	if changed {
		b.trialSent = false
		b.signalLocked()
	}
}
