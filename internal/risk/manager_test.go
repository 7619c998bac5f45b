package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeFuse/internal/domain/models"
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

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	return l
}

func testLimits() Limits {
	return Limits{
		Equity:            decimal.NewFromInt(10000),
		RiskPct:           0.01,
		StopATRMult:       2,
		MaxSymbolNotional: decimal.NewFromInt(5000),
		MaxTotalNotional:  decimal.NewFromInt(20000),
		MinConfidence:     0.2,
		FlipCooldown:      10 * time.Minute,
	}
}

func decision(symbol string, dir models.Direction, confidence, anchor float64) *models.Decision {
	return &models.Decision{
		CycleID:     "c1",
		Symbol:      symbol,
		Direction:   dir,
		Confidence:  confidence,
		AnchorPrice: anchor,
	}
}

func TestCycleStateMachine(t *testing.T) {
	m := NewManager(testLogger(t), testLimits(), NewBook(), &fakeClock{now: time.Now()})

	require.NoError(t, m.Begin("BTC-USDT"))
	assert.Equal(t, StateEvaluating, m.State("BTC-USDT"))

	// a second cycle for the same symbol must not start
	err := m.Begin("BTC-USDT")
	require.ErrorIs(t, err, ErrCycleInFlight)

	// other symbols are independent
	require.NoError(t, m.Begin("ETH-USDT"))

	m.Complete("BTC-USDT")
	assert.Equal(t, StateIdle, m.State("BTC-USDT"))
	require.NoError(t, m.Begin("BTC-USDT"))
}

func TestEvaluateSizing(t *testing.T) {
	m := NewManager(testLogger(t), testLimits(), NewBook(), &fakeClock{now: time.Now()})

	// risk budget 10000 * 0.01 = 100, stop distance 50 * 2 = 100
	v := m.Evaluate(decision("BTC-USDT", models.Long, 0.5, 1000), 50, nil)
	require.True(t, v.Approved)
	assert.True(t, v.Quantity.Equal(decimal.NewFromInt(1)), "got %s", v.Quantity)
}

func TestEvaluateRejectsLowConfidence(t *testing.T) {
	m := NewManager(testLogger(t), testLimits(), NewBook(), &fakeClock{now: time.Now()})

	v := m.Evaluate(decision("BTC-USDT", models.Long, 0.1, 1000), 50, nil)
	assert.False(t, v.Approved)
	assert.Equal(t, ReasonLowConfidence, v.Reason)
	assert.True(t, v.Quantity.IsZero())
}

func TestEvaluateRejectsWithoutStopDistance(t *testing.T) {
	m := NewManager(testLogger(t), testLimits(), NewBook(), &fakeClock{now: time.Now()})

	v := m.Evaluate(decision("BTC-USDT", models.Long, 0.5, 1000), 0, nil)
	assert.False(t, v.Approved)
	assert.Equal(t, ReasonNoStopDistance, v.Reason)
}

func TestEvaluateRejectsSymbolExposure(t *testing.T) {
	book := NewBook()
	book.ApplyFill(models.Fill{
		FillID:   "f1",
		Symbol:   "BTC-USDT",
		Side:     models.Buy,
		Quantity: decimal.NewFromInt(1),
		Price:    decimal.NewFromInt(4800),
	})
	m := NewManager(testLogger(t), testLimits(), book, &fakeClock{now: time.Now()})

	// existing exposure near the cap: one more unit at mark 4800 breaches 5000
	marks := map[string]decimal.Decimal{"BTC-USDT": decimal.NewFromInt(4800)}
	v := m.Evaluate(decision("BTC-USDT", models.Long, 0.5, 4800), 50, marks)
	assert.False(t, v.Approved)
	assert.Equal(t, ReasonSymbolExposure, v.Reason)
}

func TestEvaluateRejectsTotalExposure(t *testing.T) {
	limits := testLimits()
	limits.MaxSymbolNotional = decimal.NewFromInt(100000)
	limits.MaxTotalNotional = decimal.NewFromInt(5000)

	book := NewBook()
	book.ApplyFill(models.Fill{
		FillID:   "f1",
		Symbol:   "ETH-USDT",
		Side:     models.Buy,
		Quantity: decimal.NewFromInt(10),
		Price:    decimal.NewFromInt(480),
	})
	m := NewManager(testLogger(t), limits, book, &fakeClock{now: time.Now()})

	marks := map[string]decimal.Decimal{
		"ETH-USDT": decimal.NewFromInt(480),
		"BTC-USDT": decimal.NewFromInt(1000),
	}
	v := m.Evaluate(decision("BTC-USDT", models.Long, 0.5, 1000), 50, marks)
	assert.False(t, v.Approved)
	assert.Equal(t, ReasonTotalExposure, v.Reason)
}

func TestEvaluateFlipCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	book := NewBook()
	m := NewManager(testLogger(t), testLimits(), book, clock)

	// open a long and record the entry
	v := m.Evaluate(decision("BTC-USDT", models.Long, 0.5, 1000), 50, nil)
	require.True(t, v.Approved)
	book.ApplyFill(models.Fill{
		FillID:   "f1",
		Symbol:   "BTC-USDT",
		Side:     models.Buy,
		Quantity: v.Quantity,
		Price:    decimal.NewFromInt(1000),
	})

	// a short five minutes later flips inside the cooldown
	clock.now = clock.now.Add(5 * time.Minute)
	v = m.Evaluate(decision("BTC-USDT", models.Short, 0.5, 1000), 50, nil)
	assert.False(t, v.Approved)
	assert.Equal(t, ReasonFlipCooldown, v.Reason)

	// after the window the flip is allowed
	clock.now = clock.now.Add(10 * time.Minute)
	v = m.Evaluate(decision("BTC-USDT", models.Short, 0.5, 1000), 50, nil)
	assert.True(t, v.Approved)
}

func TestEvaluateRejectsOnDrawdown(t *testing.T) {
	limits := testLimits()
	limits.MaxDrawdown = 0.1 // 1000 of the 10000 equity
	book := NewBook()
	m := NewManager(testLogger(t), limits, book, &fakeClock{now: time.Now()})

	book.ApplyFill(models.Fill{
		Symbol: "ETH-USDT", Side: models.Buy,
		Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(3000),
	})
	marks := map[string]decimal.Decimal{
		"ETH-USDT": decimal.NewFromInt(1800), // 1200 under water
		"BTC-USDT": decimal.NewFromInt(1000),
	}

	v := m.Evaluate(decision("BTC-USDT", models.Long, 0.5, 1000), 50, marks)
	assert.False(t, v.Approved)
	assert.Equal(t, ReasonDrawdown, v.Reason)

	// recovery above the limit lifts the halt
	marks["ETH-USDT"] = decimal.NewFromInt(2500)
	v = m.Evaluate(decision("BTC-USDT", models.Long, 0.5, 1000), 50, marks)
	assert.True(t, v.Approved, "rejected after recovery: %s", v.Reason)
}

func TestEvaluateDrawdownDisabledByDefault(t *testing.T) {
	limits := testLimits() // MaxDrawdown zero
	book := NewBook()
	m := NewManager(testLogger(t), limits, book, &fakeClock{now: time.Now()})

	book.ApplyFill(models.Fill{
		Symbol: "ETH-USDT", Side: models.Buy,
		Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(3000),
	})
	marks := map[string]decimal.Decimal{
		"ETH-USDT": decimal.NewFromInt(100),
		"BTC-USDT": decimal.NewFromInt(1000),
	}

	v := m.Evaluate(decision("BTC-USDT", models.Long, 0.5, 1000), 50, marks)
	assert.True(t, v.Approved, "got %s", v.Reason)
}

func TestPositionApplyFill(t *testing.T) {
	var p models.Position
	p.Symbol = "BTC-USDT"

	p.ApplyFill(models.Fill{Side: models.Buy, Quantity: decimal.NewFromInt(2), Price: decimal.NewFromInt(100)})
	assert.True(t, p.Quantity.Equal(decimal.NewFromInt(2)))
	assert.True(t, p.AvgEntry.Equal(decimal.NewFromInt(100)))

	// average up
	p.ApplyFill(models.Fill{Side: models.Buy, Quantity: decimal.NewFromInt(2), Price: decimal.NewFromInt(110)})
	assert.True(t, p.AvgEntry.Equal(decimal.NewFromInt(105)), "got %s", p.AvgEntry)

	// partial close realizes pnl
	p.ApplyFill(models.Fill{Side: models.Sell, Quantity: decimal.NewFromInt(2), Price: decimal.NewFromInt(115)})
	assert.True(t, p.Quantity.Equal(decimal.NewFromInt(2)))
	assert.True(t, p.RealizedPnL.Equal(decimal.NewFromInt(20)), "got %s", p.RealizedPnL)

	// flip through zero opens the remainder at the fill price
	p.ApplyFill(models.Fill{Side: models.Sell, Quantity: decimal.NewFromInt(3), Price: decimal.NewFromInt(120)})
	assert.True(t, p.Quantity.Equal(decimal.NewFromInt(-1)))
	assert.True(t, p.AvgEntry.Equal(decimal.NewFromInt(120)))
	assert.Equal(t, models.Short, p.Direction())
}
