package backoff

import (
	"context"
	"testing"
	"time"
)

type instantClock struct{}

func (instantClock) Now() time.Time { return time.Unix(0, 0) }
func (instantClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Unix(0, 0)
	return ch
}

func TestDelaySchedule(t *testing.T) {
	p := Policy{Min: 100 * time.Millisecond, Max: time.Second, Factor: 2}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{10, time.Second},
	}
	for _, c := range cases {
		if got := p.Delay(c.attempt); got != c.want {
			t.Fatalf("attempt %d: got %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestDelayDefaults(t *testing.T) {
	var p Policy
	if got := p.Delay(1); got != 250*time.Millisecond {
		t.Fatalf("expected default min, got %v", got)
	}
}

func TestWaitImmediateOnAttemptZero(t *testing.T) {
	if err := Wait(context.Background(), instantClock{}, DefaultPolicy(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWaitHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Wait(ctx, realWaiter{}, DefaultPolicy(), 3)
	if err == nil {
		t.Fatalf("expected context error")
	}
}

// realWaiter never fires, so only cancellation can unblock Wait.
type realWaiter struct{}

func (realWaiter) Now() time.Time                         { return time.Now() }
func (realWaiter) After(time.Duration) <-chan time.Time   { return make(chan time.Time) }
