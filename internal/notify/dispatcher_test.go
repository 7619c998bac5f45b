package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domsvc "TradeFuse/internal/domain/service"
	"TradeFuse/pkg/logger"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

type captureQueue struct {
	published []interface{}
}

func (q *captureQueue) PublishMessage(_ context.Context, _ string, payload interface{}) error {
	q.published = append(q.published, payload)
	return nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	return l
}

func event(kind domsvc.EventKind, symbol, priority string) domsvc.Event {
	return domsvc.Event{Kind: kind, Symbol: symbol, Title: "t", Body: "b", Priority: priority}
}

func TestNotifyCooldownSuppressesRepeats(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	q := &captureQueue{}
	d := NewDispatcher(testLogger(t), q, clock, time.Minute)

	ctx := context.Background()
	d.Notify(ctx, event(domsvc.EventOrder, "BTC-USDT", "normal"))
	d.Notify(ctx, event(domsvc.EventOrder, "BTC-USDT", "normal"))
	assert.Len(t, q.published, 1)

	clock.now = clock.now.Add(2 * time.Minute)
	d.Notify(ctx, event(domsvc.EventOrder, "BTC-USDT", "normal"))
	assert.Len(t, q.published, 2)
}

func TestNotifyCooldownKeysAreIndependent(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	q := &captureQueue{}
	d := NewDispatcher(testLogger(t), q, clock, time.Minute)

	ctx := context.Background()
	d.Notify(ctx, event(domsvc.EventOrder, "BTC-USDT", "normal"))
	d.Notify(ctx, event(domsvc.EventOrder, "ETH-USDT", "normal"))
	d.Notify(ctx, event(domsvc.EventShock, "BTC-USDT", "normal"))
	assert.Len(t, q.published, 3)
}

func TestNotifyCriticalBypassesCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	q := &captureQueue{}
	d := NewDispatcher(testLogger(t), q, clock, time.Minute)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		d.Notify(ctx, event(domsvc.EventShock, "BTC-USDT", "critical"))
	}
	assert.Len(t, q.published, 3)
}

func TestFormatEvent(t *testing.T) {
	text := formatEvent(domsvc.Event{
		Kind:     domsvc.EventShock,
		Symbol:   "BTC-USDT",
		Title:    "Emergency stop",
		Body:     "volatility shock",
		Priority: "critical",
	})
	assert.Equal(t, "🚨 *Emergency stop* [BTC-USDT]\nvolatility shock", text)

	text = formatEvent(domsvc.Event{Title: "Engine resumed", Priority: "normal"})
	assert.Equal(t, "*Engine resumed*", text)
}

func TestNopNotifier(t *testing.T) {
	// must simply not panic
	Nop().Notify(context.Background(), event(domsvc.EventOrder, "BTC-USDT", "high"))
}
