package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeFuse/internal/domain/models"
	domrepo "TradeFuse/internal/domain/repository"
	domsvc "TradeFuse/internal/domain/service"
	"TradeFuse/internal/risk"
	"TradeFuse/pkg/backoff"
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

// fakeExchange fails the first failures calls to PlaceOrder, then succeeds.
// It records every idempotency key it saw.
type fakeExchange struct {
	failures  int
	calls     int
	keys      []string
	cancelled []string
	fills     []models.Fill
	fillCalls int
}

func (f *fakeExchange) PlaceOrder(_ context.Context, req domsvc.OrderRequest) (domsvc.OrderAck, error) {
	f.calls++
	f.keys = append(f.keys, req.IdempotencyKey)
	if f.calls <= f.failures {
		return domsvc.OrderAck{}, errors.New("gateway timeout")
	}
	return domsvc.OrderAck{ExchangeID: "ex-1", Status: models.OrderOpen}, nil
}

func (f *fakeExchange) CancelOrder(_ context.Context, _, exchangeID string) error {
	f.cancelled = append(f.cancelled, exchangeID)
	return nil
}

func (f *fakeExchange) GetBalances(context.Context) ([]domsvc.Balance, error) { return nil, nil }

func (f *fakeExchange) GetCandles(context.Context, string, domrepo.Timeframe, time.Time, time.Time) ([]models.Candle, error) {
	return nil, nil
}

func (f *fakeExchange) GetFills(_ context.Context, _ string, exchangeID string) ([]models.Fill, error) {
	f.fillCalls++
	var out []models.Fill
	for _, fill := range f.fills {
		if fill.ExchangeID == exchangeID {
			out = append(out, fill)
		}
	}
	return out, nil
}

type nopStorage struct{}

func (nopStorage) StoreTick(context.Context, *models.Tick) error         { return nil }
func (nopStorage) StoreTickBatch(context.Context, []*models.Tick) error  { return nil }
func (nopStorage) StoreCandle(context.Context, models.Candle) error      { return nil }
func (nopStorage) StoreDecision(context.Context, *models.Decision) error { return nil }
func (nopStorage) StoreOrder(context.Context, *models.Order) error       { return nil }
func (nopStorage) Decisions(context.Context, string, int) ([]*models.Decision, error) {
	return nil, nil
}
func (nopStorage) Orders(context.Context, string, int) ([]*models.Order, error) { return nil, nil }
func (nopStorage) Health(context.Context) error                                 { return nil }
func (nopStorage) Close() error                                                 { return nil }

type nopMetrics struct{}

func (nopMetrics) RecordTick(string)               {}
func (nopMetrics) RecordLastPrice(string, float64) {}
func (nopMetrics) RecordDecision(string, string)   {}
func (nopMetrics) RecordOrder(string)              {}
func (nopMetrics) RecordError(string)              {}
func (nopMetrics) RecordLatency(string, float64)   {}
func (nopMetrics) RecordReconnect()                {}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	return l
}

func approvedVerdict(symbol string, dir models.Direction, qty int64) models.RiskVerdict {
	return models.RiskVerdict{
		Decision: &models.Decision{CycleID: "c1", Symbol: symbol, Direction: dir},
		Approved: true,
		Quantity: decimal.NewFromInt(qty),
	}
}

func newTestEngine(t *testing.T, exch *fakeExchange, retryMax int) (*Engine, *risk.Book) {
	t.Helper()
	book := risk.NewBook()
	e := NewEngine(testLogger(t), exch, book, nopStorage{}, nopMetrics{},
		&fakeClock{now: time.Now()}, backoff.Policy{Min: time.Millisecond, Max: time.Millisecond, Factor: 2}, retryMax)
	return e, book
}

func TestSubmitRetriesWithSameIdempotencyKey(t *testing.T) {
	exch := &fakeExchange{failures: 2}
	e, _ := newTestEngine(t, exch, 3)

	order, err := e.Submit(context.Background(), approvedVerdict("BTC-USDT", models.Long, 1))
	require.NoError(t, err)

	assert.Equal(t, 3, exch.calls)
	require.Len(t, exch.keys, 3)
	assert.Equal(t, exch.keys[0], exch.keys[1])
	assert.Equal(t, exch.keys[0], exch.keys[2])
	assert.Equal(t, models.OrderOpen, order.Status)
	assert.Equal(t, "ex-1", order.ExchangeID)
}

func TestSubmitExhaustedRetriesRejectsOrder(t *testing.T) {
	exch := &fakeExchange{failures: 10}
	e, book := newTestEngine(t, exch, 2)

	order, err := e.Submit(context.Background(), approvedVerdict("BTC-USDT", models.Long, 1))
	require.ErrorIs(t, err, ErrExecutionFailed)

	assert.Equal(t, 3, exch.calls) // first attempt plus two retries
	assert.Equal(t, models.OrderRejected, order.Status)
	assert.True(t, book.Position("BTC-USDT").Quantity.IsZero(), "position must be untouched")
}

func TestSubmitIgnoresRejectedVerdict(t *testing.T) {
	exch := &fakeExchange{}
	e, _ := newTestEngine(t, exch, 2)

	order, err := e.Submit(context.Background(), models.RiskVerdict{Approved: false})
	require.NoError(t, err)
	assert.Nil(t, order)
	assert.Zero(t, exch.calls)
}

func TestApplyFillDeduplicates(t *testing.T) {
	exch := &fakeExchange{}
	e, book := newTestEngine(t, exch, 0)

	_, err := e.Submit(context.Background(), approvedVerdict("BTC-USDT", models.Long, 2))
	require.NoError(t, err)

	fill := models.Fill{
		FillID:     "fill-1",
		ExchangeID: "ex-1",
		Symbol:     "BTC-USDT",
		Side:       models.Buy,
		Quantity:   decimal.NewFromInt(1),
		Price:      decimal.NewFromInt(100),
	}
	require.NoError(t, e.ApplyFill(context.Background(), fill))
	require.NoError(t, e.ApplyFill(context.Background(), fill)) // redelivery

	pos := book.Position("BTC-USDT")
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(1)), "duplicate fill moved the position: %s", pos.Quantity)
}

func TestApplyFillTransitionsToFilled(t *testing.T) {
	exch := &fakeExchange{}
	e, _ := newTestEngine(t, exch, 0)

	order, err := e.Submit(context.Background(), approvedVerdict("BTC-USDT", models.Long, 2))
	require.NoError(t, err)

	require.NoError(t, e.ApplyFill(context.Background(), models.Fill{
		FillID: "fill-1", ExchangeID: "ex-1", Symbol: "BTC-USDT",
		Side: models.Buy, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(100),
	}))
	assert.Equal(t, models.OrderPartiallyFilled, order.Status)

	require.NoError(t, e.ApplyFill(context.Background(), models.Fill{
		FillID: "fill-2", ExchangeID: "ex-1", Symbol: "BTC-USDT",
		Side: models.Buy, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(101),
	}))
	assert.Equal(t, models.OrderFilled, order.Status)

	// terminal status is sticky
	require.NoError(t, e.ApplyFill(context.Background(), models.Fill{
		FillID: "fill-3", ExchangeID: "ex-1", Symbol: "BTC-USDT",
		Side: models.Buy, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(102),
	}))
	assert.Equal(t, models.OrderFilled, order.Status)
}

func TestApplyFillBeforeAckCountsOnRedelivery(t *testing.T) {
	exch := &fakeExchange{}
	e, book := newTestEngine(t, exch, 0)

	fill := models.Fill{
		FillID:     "fill-1",
		ExchangeID: "ex-1",
		Symbol:     "BTC-USDT",
		Side:       models.Buy,
		Quantity:   decimal.NewFromInt(1),
		Price:      decimal.NewFromInt(100),
	}

	// First delivery races ahead of the submit ack and is rejected.
	require.Error(t, e.ApplyFill(context.Background(), fill))
	assert.True(t, book.Position("BTC-USDT").Quantity.IsZero())

	_, err := e.Submit(context.Background(), approvedVerdict("BTC-USDT", models.Long, 2))
	require.NoError(t, err)

	// The exchange redelivers the same fill once the order is known.
	require.NoError(t, e.ApplyFill(context.Background(), fill))
	pos := book.Position("BTC-USDT")
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(1)),
		"redelivered fill must move the position, got %s", pos.Quantity)
}

func TestApplyFillUnknownOrder(t *testing.T) {
	exch := &fakeExchange{}
	e, _ := newTestEngine(t, exch, 0)

	err := e.ApplyFill(context.Background(), models.Fill{
		FillID: "fill-1", ExchangeID: "nope", Symbol: "BTC-USDT",
		Side: models.Buy, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(100),
	})
	require.Error(t, err)
}

func TestRequestCancel(t *testing.T) {
	exch := &fakeExchange{}
	e, _ := newTestEngine(t, exch, 0)

	order, err := e.Submit(context.Background(), approvedVerdict("BTC-USDT", models.Long, 1))
	require.NoError(t, err)

	require.NoError(t, e.RequestCancel(context.Background(), "BTC-USDT", order.ExchangeID))
	assert.Equal(t, []string{"ex-1"}, exch.cancelled)
	assert.Equal(t, models.OrderCancelled, order.Status)
}
