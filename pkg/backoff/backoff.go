// Package backoff implements retry delays as an explicit state machine with
// timestamps rather than ambient sleeps, so callers can inject a clock and
// test without real delays.
package backoff

import (
	"context"
	"time"
)

// Policy describes an exponential backoff schedule.
type Policy struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
}

// DefaultPolicy returns a conservative schedule: 250ms doubling up to 5s.
func DefaultPolicy() Policy {
	return Policy{Min: 250 * time.Millisecond, Max: 5 * time.Second, Factor: 2}
}

// Delay returns the wait before the given attempt (0-based). Attempt 0 has
// no delay, attempt 1 waits Min, then the delay grows by Factor up to Max.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	if p.Min <= 0 {
		p.Min = 250 * time.Millisecond
	}
	if p.Factor < 1 {
		p.Factor = 2
	}
	d := p.Min
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Factor)
		if p.Max > 0 && d >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

// Clock matches the pipeline clock abstraction.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Wait blocks for the attempt's delay on the injected clock, or returns the
// context error if cancelled first.
func Wait(ctx context.Context, clock Clock, p Policy, attempt int) error {
	d := p.Delay(attempt)
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(d):
		return nil
	}
}
