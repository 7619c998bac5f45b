package fusion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeFuse/internal/domain/models"
)

func sig(producer string, class models.ProducerClass, strength float64) models.Signal {
	return models.Signal{
		Producer:  producer,
		Class:     class,
		Symbol:    "BTC-USDT",
		Direction: models.DirectionOf(strength),
		Strength:  strength,
	}
}

func TestFuseWeightedBlend(t *testing.T) {
	f := New(DefaultWeights(), 2)

	// indicator mean +0.6, model mean +0.4, advisor delivered but neutral
	d, err := f.Fuse("BTC-USDT", []models.Signal{
		sig("rsi", models.ClassIndicator, 0.6),
		sig("xgb_trend", models.ClassModel, 0.4),
		sig("llm", models.ClassAdvisor, 0),
	}, 50000, time.Now())
	require.NoError(t, err)

	assert.Equal(t, models.Long, d.Direction)
	assert.InDelta(t, 0.38, d.Confidence, 1e-9)
	assert.NotEmpty(t, d.CycleID)
}

func TestFuseDeterministicAcrossOrder(t *testing.T) {
	f := New(DefaultWeights(), 1)
	signals := []models.Signal{
		sig("rsi", models.ClassIndicator, 0.5),
		sig("bollinger", models.ClassIndicator, -0.1),
		sig("xgb_trend", models.ClassModel, 0.7),
		sig("llm", models.ClassAdvisor, 0.2),
	}
	shuffled := []models.Signal{signals[2], signals[3], signals[0], signals[1]}

	a, err := f.Fuse("BTC-USDT", signals, 100, time.Now())
	require.NoError(t, err)
	b, err := f.Fuse("BTC-USDT", shuffled, 100, time.Now())
	require.NoError(t, err)

	assert.Equal(t, a.Direction, b.Direction)
	assert.Equal(t, a.Confidence, b.Confidence)
	assert.Equal(t, a.Signals, b.Signals)
}

func TestFuseMissingClassRenormalizes(t *testing.T) {
	f := New(DefaultWeights(), 1)

	// only indicators delivered: mean strength carries full confidence
	d, err := f.Fuse("BTC-USDT", []models.Signal{
		sig("rsi", models.ClassIndicator, 0.6),
	}, 100, time.Now())
	require.NoError(t, err)

	assert.Equal(t, models.Long, d.Direction)
	assert.InDelta(t, 0.6, d.Confidence, 1e-9)
}

func TestFuseZeroSumIsFlat(t *testing.T) {
	f := New(DefaultWeights(), 1)

	d, err := f.Fuse("BTC-USDT", []models.Signal{
		sig("rsi", models.ClassIndicator, 0.5),
		sig("sma_cross", models.ClassIndicator, -0.5),
	}, 100, time.Now())
	require.NoError(t, err)

	assert.Equal(t, models.Flat, d.Direction)
	assert.Zero(t, d.Confidence)
}

func TestFuseOpposingClassesNetOut(t *testing.T) {
	f := New(DefaultWeights(), 1)

	// model outweighs the indicator class
	d, err := f.Fuse("BTC-USDT", []models.Signal{
		sig("rsi", models.ClassIndicator, 1),
		sig("xgb_trend", models.ClassModel, -1),
	}, 100, time.Now())
	require.NoError(t, err)

	assert.Equal(t, models.Short, d.Direction)
}

func TestFuseQuorumNotMet(t *testing.T) {
	f := New(DefaultWeights(), 3)

	_, err := f.Fuse("BTC-USDT", []models.Signal{
		sig("rsi", models.ClassIndicator, 0.5),
		sig("llm", models.ClassAdvisor, 0.1),
	}, 100, time.Now())
	require.ErrorIs(t, err, ErrQuorumNotMet)
}

func TestFuseDegradedAdvisorCountsTowardQuorum(t *testing.T) {
	f := New(DefaultWeights(), 2)

	degraded := sig("llm", models.ClassAdvisor, 0)
	degraded.Degraded = true

	d, err := f.Fuse("BTC-USDT", []models.Signal{
		sig("rsi", models.ClassIndicator, 0.4),
		degraded,
	}, 100, time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.Long, d.Direction)
}

func TestFuseSignalsSortedByClassThenProducer(t *testing.T) {
	f := New(DefaultWeights(), 1)

	d, err := f.Fuse("BTC-USDT", []models.Signal{
		sig("xgb_trend", models.ClassModel, 0.1),
		sig("sma_cross", models.ClassIndicator, 0.2),
		sig("bollinger", models.ClassIndicator, 0.3),
	}, 100, time.Now())
	require.NoError(t, err)

	require.Len(t, d.Signals, 3)
	assert.Equal(t, "bollinger", d.Signals[0].Producer)
	assert.Equal(t, "sma_cross", d.Signals[1].Producer)
	assert.Equal(t, "xgb_trend", d.Signals[2].Producer)
}

func TestFuseConfidenceClamped(t *testing.T) {
	f := New(map[models.ProducerClass]float64{models.ClassModel: 2}, 1)

	d, err := f.Fuse("BTC-USDT", []models.Signal{
		sig("xgb_trend", models.ClassModel, 1),
	}, 100, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1.0, d.Confidence)
}
