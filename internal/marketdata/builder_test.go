package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeFuse/internal/domain/models"
	drepo "TradeFuse/internal/domain/repository"
)

func tick(symbol string, at time.Time, price, volume float64) *models.Tick {
	return &models.Tick{
		Symbol:    symbol,
		Timestamp: at.UnixMilli(),
		Bid:       price - 0.5,
		Ask:       price + 0.5,
		Last:      price,
		Volume:    volume,
	}
}

func TestApplyAggregatesWithinBucket(t *testing.T) {
	b := NewBuilder(drepo.TF1m, 16)
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	assert.Nil(t, b.Apply(tick("BTC-USDT", start, 100, 1)))
	assert.Nil(t, b.Apply(tick("BTC-USDT", start.Add(10*time.Second), 105, 2)))
	assert.Nil(t, b.Apply(tick("BTC-USDT", start.Add(20*time.Second), 98, 1)))

	// first tick of the next bucket closes the candle
	closed := b.Apply(tick("BTC-USDT", start.Add(time.Minute), 99, 1))
	require.NotNil(t, closed)

	assert.Equal(t, start, closed.Bucket)
	assert.Equal(t, 100.0, closed.Open)
	assert.Equal(t, 105.0, closed.High)
	assert.Equal(t, 98.0, closed.Low)
	assert.Equal(t, 98.0, closed.Close)
	assert.Equal(t, 4.0, closed.Volume)
	assert.False(t, closed.Gap)
}

func TestApplyDropsDuplicateTicks(t *testing.T) {
	b := NewBuilder(drepo.TF1m, 16)
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	b.Apply(tick("BTC-USDT", start, 100, 1))
	b.Apply(tick("BTC-USDT", start, 100, 1)) // exact redelivery

	closed := b.Apply(tick("BTC-USDT", start.Add(time.Minute), 101, 1))
	require.NotNil(t, closed)
	assert.Equal(t, 1.0, closed.Volume, "duplicate tick was folded in")
}

func TestApplyDropsLateTicks(t *testing.T) {
	b := NewBuilder(drepo.TF1m, 16)
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	b.Apply(tick("BTC-USDT", start.Add(time.Minute), 100, 1))
	assert.Nil(t, b.Apply(tick("BTC-USDT", start, 90, 1)), "late tick must not emit")

	closed := b.Apply(tick("BTC-USDT", start.Add(2*time.Minute), 101, 1))
	require.NotNil(t, closed)
	assert.Equal(t, 100.0, closed.Low, "late tick leaked into the candle")
}

func TestApplyFlagsGapOnSkippedBuckets(t *testing.T) {
	b := NewBuilder(drepo.TF1m, 16)
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	b.Apply(tick("BTC-USDT", start, 100, 1))
	// next tick lands three buckets later
	closed := b.Apply(tick("BTC-USDT", start.Add(3*time.Minute), 101, 1))
	require.NotNil(t, closed)
	assert.False(t, closed.Gap)

	closed = b.Apply(tick("BTC-USDT", start.Add(4*time.Minute), 102, 1))
	require.NotNil(t, closed)
	assert.True(t, closed.Gap, "candle after skipped buckets must be flagged")
}

func TestBackfillSkipsKnownBuckets(t *testing.T) {
	b := NewBuilder(drepo.TF1m, 16)
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	b.Apply(tick("BTC-USDT", start, 100, 1))
	b.Apply(tick("BTC-USDT", start.Add(time.Minute), 101, 1)) // closes bucket 0

	b.Backfill("BTC-USDT", []models.Candle{
		{Symbol: "BTC-USDT", Timeframe: "1m", Bucket: start, Close: 999},                            // already known
		{Symbol: "BTC-USDT", Timeframe: "1m", Bucket: start.Add(time.Minute), Close: 102, Gap: true}, // new
		{Symbol: "BTC-USDT", Timeframe: "1m", Bucket: start.Add(2 * time.Minute), Close: 103},
	})

	hist, err := b.GetLatestNCandles(context.Background(), "BTC-USDT", 10, drepo.TF1m)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, 100.0, hist[0].Close, "backfill overwrote a live candle")
	assert.True(t, hist[1].Gap, "replayed candle lost its gap flag")
	assert.Equal(t, 103.0, hist[2].Close)
}

func TestHistoryBounded(t *testing.T) {
	b := NewBuilder(drepo.TF1m, 3)
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		b.Apply(tick("BTC-USDT", start.Add(time.Duration(i)*time.Minute), 100+float64(i), 1))
	}

	hist, err := b.GetLatestNCandles(context.Background(), "BTC-USDT", 10, drepo.TF1m)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, 108.0, hist[2].Close)
}

func TestGetCandlesRange(t *testing.T) {
	b := NewBuilder(drepo.TF1m, 16)
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		b.Apply(tick("BTC-USDT", start.Add(time.Duration(i)*time.Minute), 100+float64(i), 1))
	}

	out, err := b.GetCandles(context.Background(), "BTC-USDT", start.Add(time.Minute), start.Add(3*time.Minute), drepo.TF1m)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, start.Add(time.Minute), out[0].Bucket)
}

func TestLastPrice(t *testing.T) {
	b := NewBuilder(drepo.TF1m, 16)

	_, ok := b.LastPrice("BTC-USDT")
	assert.False(t, ok)

	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	b.Apply(tick("BTC-USDT", start, 100, 1))

	price, ok := b.LastPrice("BTC-USDT")
	require.True(t, ok)
	assert.Equal(t, 100.0, price)
}
