package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domsvc "TradeFuse/internal/domain/service"
	"TradeFuse/internal/risk"
	"TradeFuse/pkg/logger"
)

// stubEvaluator returns the queued errors in order, then succeeds.
type stubEvaluator struct {
	errs  []error
	calls int
}

func (s *stubEvaluator) Evaluate(context.Context, string) error {
	s.calls++
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

type captureNotifier struct {
	mu     sync.Mutex
	events []domsvc.Event
}

func (n *captureNotifier) Notify(_ context.Context, ev domsvc.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *captureNotifier) titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, ev := range n.events {
		out[i] = ev.Title
	}
	return out
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	return l
}

func repeatErr(n int, err error) []error {
	out := make([]error, n)
	for i := range out {
		out[i] = err
	}
	return out
}

func TestControllerPausesAfterErrorStreak(t *testing.T) {
	eval := &stubEvaluator{errs: repeatErr(10, errors.New("model offline"))}
	notifier := &captureNotifier{}
	c := NewController(testLogger(t), eval, nil, risk.NewBook(), nil, notifier, 3)

	c.Ready()
	require.NoError(t, c.Start(context.Background()))

	c.EvaluateSymbol(context.Background(), "BTC-USDT")
	c.EvaluateSymbol(context.Background(), "BTC-USDT")
	assert.Equal(t, StateRunning, c.State(), "two errors must not pause yet")

	c.EvaluateSymbol(context.Background(), "BTC-USDT")
	assert.Equal(t, StatePaused, c.State())
	assert.Contains(t, notifier.titles(), "Engine paused")

	// paused engine stops evaluating entirely
	calls := eval.calls
	c.EvaluateSymbol(context.Background(), "BTC-USDT")
	assert.Equal(t, calls, eval.calls)
}

func TestControllerStreakResetsOnSuccess(t *testing.T) {
	eval := &stubEvaluator{errs: []error{
		errors.New("flaky"), errors.New("flaky"), nil, errors.New("flaky"), errors.New("flaky"),
	}}
	c := NewController(testLogger(t), eval, nil, risk.NewBook(), nil, &captureNotifier{}, 3)

	c.Ready()
	require.NoError(t, c.Start(context.Background()))

	for i := 0; i < 5; i++ {
		c.EvaluateSymbol(context.Background(), "BTC-USDT")
	}
	assert.Equal(t, StateRunning, c.State(), "a success in between must reset the streak")
}

func TestControllerSkipsWhenNotRunning(t *testing.T) {
	eval := &stubEvaluator{}
	c := NewController(testLogger(t), eval, nil, risk.NewBook(), nil, &captureNotifier{}, 3)

	c.Ready() // ready, never started
	c.EvaluateSymbol(context.Background(), "BTC-USDT")
	assert.Zero(t, eval.calls)
}
