package credentials

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"reposync/internal/descriptor"
)

// Throttled rate-limits calls to a resolver that enforces its own external
// limit (a secrets service, the GitHub App token endpoint).
type Throttled struct {
	next    Resolver
	limiter *rate.Limiter
}

// NewThrottled allows perSecond calls per second with the given burst.
func NewThrottled(next Resolver, perSecond float64, burst int) *Throttled {
	if burst < 1 {
		burst = 1
	}
	return &Throttled{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (t *Throttled) Resolve(ctx context.Context, d descriptor.Descriptor) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return t.next.Resolve(ctx, d)
}

// Serialized lets at most one call into the wrapped resolver at a time.
type Serialized struct {
	next Resolver
	sem  *semaphore.Weighted
}

func NewSerialized(next Resolver) *Serialized {
	return &Serialized{next: next, sem: semaphore.NewWeighted(1)}
}

func (s *Serialized) Resolve(ctx context.Context, d descriptor.Descriptor) (string, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer s.sem.Release(1)
	return s.next.Resolve(ctx, d)
}
