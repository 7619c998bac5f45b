package execution

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeFuse/internal/domain/models"
)

func TestMonitorPollAppliesFills(t *testing.T) {
	exch := &fakeExchange{}
	e, book := newTestEngine(t, exch, 0)

	order, err := e.Submit(context.Background(), approvedVerdict("BTC-USDT", models.Long, 2))
	require.NoError(t, err)

	exch.fills = []models.Fill{{
		FillID:     "fill-1",
		ExchangeID: order.ExchangeID,
		Symbol:     "BTC-USDT",
		Side:       models.Buy,
		Quantity:   decimal.NewFromInt(1),
		Price:      decimal.NewFromInt(100),
	}}

	m := NewMonitor(testLogger(t), e, exch, &fakeClock{now: time.Now()}, time.Second, []string{"BTC-USDT"})
	m.Poll(context.Background())

	pos := book.Position("BTC-USDT")
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(1)), "fill not applied, position %s", pos.Quantity)
	assert.Equal(t, models.OrderPartiallyFilled, order.Status)

	// A second poll sees the same report; the engine dedupes by fill id.
	m.Poll(context.Background())
	pos = book.Position("BTC-USDT")
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(1)), "redelivered report moved the position: %s", pos.Quantity)
}

func TestMonitorPollSkipsSymbolsWithoutOpenOrders(t *testing.T) {
	exch := &fakeExchange{}
	e, _ := newTestEngine(t, exch, 0)

	m := NewMonitor(testLogger(t), e, exch, &fakeClock{now: time.Now()}, time.Second, []string{"BTC-USDT", "ETH-USDT"})
	m.Poll(context.Background())

	assert.Zero(t, exch.fillCalls, "no open orders, nothing to poll")
}

func TestMonitorRunStopsOnCancel(t *testing.T) {
	exch := &fakeExchange{}
	e, _ := newTestEngine(t, exch, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMonitor(testLogger(t), e, exch, &fakeClock{now: time.Now()}, time.Second, nil)

	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
