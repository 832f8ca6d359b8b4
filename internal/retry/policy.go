package retry

import (
	"fmt"
	"math"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultJitter      = 0.2
)

// Policy bounds a retry loop.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the maximum relative deviation applied to each delay, in [0, 1).
	Jitter float64
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Jitter:      DefaultJitter,
	}
}

func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >= 1")
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("base delay must be >= 0")
	}
	if p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("max delay (%s) must be >= base delay (%s)", p.MaxDelay, p.BaseDelay)
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		return fmt.Errorf("jitter must be in [0, 1)")
	}
	return nil
}

// Delay is the un-jittered wait before attempt k+1, with attempts numbered
// from 1: min(BaseDelay * 2^k, MaxDelay). The first backoff, before attempt
// 2, is therefore 2*BaseDelay. Delay is non-decreasing in k.
func (p Policy) Delay(k int) time.Duration {
	if k < 0 {
		k = 0
	}
	if p.BaseDelay <= 0 {
		return 0
	}
	d := float64(p.BaseDelay) * math.Pow(2, float64(k))
	if d >= float64(p.MaxDelay) || math.IsInf(d, 0) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// JitteredDelay applies a deviation of up to ±Jitter to Delay(k). rnd is a
// uniform sample in [0, 1). The result never exceeds MaxDelay.
//
// Only Delay is monotonic. Near MaxDelay a capped delay jittered down can
// come out shorter than the previous delay jittered up.
func (p Policy) JitteredDelay(k int, rnd float64) time.Duration {
	base := p.Delay(k)
	if p.Jitter == 0 || base == 0 {
		return base
	}
	factor := 1 + p.Jitter*(2*rnd-1)
	d := time.Duration(float64(base) * factor)
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d < 0 {
		d = 0
	}
	return d
}
