package ensemble

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeFuse/internal/domain/models"
	domsvc "TradeFuse/internal/domain/service"
	"TradeFuse/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	return l
}

func testFeatures(symbol string) *models.FeatureVector {
	return &models.FeatureVector{
		Symbol:    symbol,
		Timestamp: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Features:  map[string]float64{"rsi_14": 61.5, "atr_14": 42.0},
	}
}

// fakePredictor returns a fixed signal or error, optionally blocking until
// release is closed so tests can observe in-flight concurrency.
type fakePredictor struct {
	name     string
	strength float64
	err      error
	release  chan struct{}
	inflight *int32
	maxSeen  *int32
}

func (f *fakePredictor) Name() string { return f.name }
func (f *fakePredictor) Kind() string { return KindClassify }

func (f *fakePredictor) Predict(ctx context.Context, fv *models.FeatureVector) (models.Signal, error) {
	if f.inflight != nil {
		cur := atomic.AddInt32(f.inflight, 1)
		for {
			seen := atomic.LoadInt32(f.maxSeen)
			if cur <= seen || atomic.CompareAndSwapInt32(f.maxSeen, seen, cur) {
				break
			}
		}
		defer atomic.AddInt32(f.inflight, -1)
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return models.Signal{}, ctx.Err()
		}
	}
	if f.err != nil {
		return models.Signal{}, f.err
	}
	return models.Signal{
		Producer:  f.name,
		Class:     models.ClassModel,
		Symbol:    fv.Symbol,
		Direction: models.DirectionOf(f.strength),
		Strength:  f.strength,
	}, nil
}

func TestPredictCollectsAllSignals(t *testing.T) {
	e := New(testLogger(t), []domsvc.Predictor{
		&fakePredictor{name: "alpha", strength: 0.6},
		&fakePredictor{name: "beta", strength: -0.2},
	}, 4)

	signals := e.Predict(context.Background(), testFeatures("BTC-USDT"))

	require.Len(t, signals, 2)
	byName := map[string]models.Signal{}
	for _, s := range signals {
		byName[s.Producer] = s
	}
	assert.Equal(t, 0.6, byName["alpha"].Strength)
	assert.Equal(t, models.Long, byName["alpha"].Direction)
	assert.Equal(t, -0.2, byName["beta"].Strength)
	assert.Equal(t, models.Short, byName["beta"].Direction)
}

func TestPredictDropsFailedModelForCycle(t *testing.T) {
	e := New(testLogger(t), []domsvc.Predictor{
		&fakePredictor{name: "alpha", strength: 0.4},
		&fakePredictor{name: "broken", err: ErrModelUnavailable},
		&fakePredictor{name: "gamma", strength: -0.1},
	}, 4)

	signals := e.Predict(context.Background(), testFeatures("ETH-USDT"))

	require.Len(t, signals, 2)
	for _, s := range signals {
		assert.NotEqual(t, "broken", s.Producer)
	}
}

func TestPredictBoundsConcurrentInference(t *testing.T) {
	var inflight, maxSeen int32
	release := make(chan struct{})

	preds := make([]domsvc.Predictor, 0, 5)
	for _, name := range []string{"m1", "m2", "m3", "m4", "m5"} {
		preds = append(preds, &fakePredictor{
			name:     name,
			strength: 0.1,
			release:  release,
			inflight: &inflight,
			maxSeen:  &maxSeen,
		})
	}
	e := New(testLogger(t), preds, 2)

	done := make(chan []models.Signal, 1)
	go func() { done <- e.Predict(context.Background(), testFeatures("BTC-USDT")) }()

	// Give the goroutines time to occupy both slots before releasing.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&inflight) == 2
	}, time.Second, time.Millisecond)
	close(release)

	signals := <-done
	assert.Len(t, signals, 5)
	assert.LessOrEqual(t, atomic.LoadInt32(&maxSeen), int32(2))
}

func TestPredictHonorsCancellation(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	e := New(testLogger(t), []domsvc.Predictor{
		&fakePredictor{name: "slow", strength: 0.5, release: release},
	}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	signals := e.Predict(ctx, testFeatures("BTC-USDT"))
	assert.Empty(t, signals)
}

func TestClassifierPredict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/classify", r.URL.Path)
		var req classifyReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "xgb_trend", req.Model)
		assert.Equal(t, "BTC-USDT", req.Symbol)
		_ = json.NewEncoder(w).Encode(classifyResp{ProbaUp: 0.8})
	}))
	defer srv.Close()

	c := NewClassifier("xgb_trend", srv.URL, time.Second)
	sig, err := c.Predict(context.Background(), testFeatures("BTC-USDT"))

	require.NoError(t, err)
	assert.Equal(t, models.ClassModel, sig.Class)
	assert.Equal(t, models.Long, sig.Direction)
	assert.InDelta(t, 0.6, sig.Strength, 1e-9)
}

func TestClassifierRejectsOutOfRangeProba(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(classifyResp{ProbaUp: 1.3})
	}))
	defer srv.Close()

	c := NewClassifier("xgb_trend", srv.URL, time.Second)
	_, err := c.Predict(context.Background(), testFeatures("BTC-USDT"))
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestRegressorPredictSquashesValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/regress", r.URL.Path)
		_ = json.NewEncoder(w).Encode(regressResp{Value: -0.02})
	}))
	defer srv.Close()

	r := NewRegressor("ridge_return", srv.URL, 0.02, time.Second)
	sig, err := r.Predict(context.Background(), testFeatures("ETH-USDT"))

	require.NoError(t, err)
	assert.Equal(t, models.Short, sig.Direction)
	// tanh(-0.02/0.02) = tanh(-1)
	assert.InDelta(t, -0.7616, sig.Strength, 1e-4)
}

func TestRegressorUnavailableService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := NewRegressor("ridge_return", srv.URL, 0.02, time.Second)
	_, err := r.Predict(context.Background(), testFeatures("ETH-USDT"))
	assert.ErrorIs(t, err, ErrModelUnavailable)
}
