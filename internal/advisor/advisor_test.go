package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeFuse/internal/domain/models"
	"TradeFuse/pkg/cache"
	"TradeFuse/pkg/logger"
)

const keyEnv = "TEST_ADVISOR_KEY"

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	return l
}

func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": content}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func recentCandles() []models.Candle {
	return []models.Candle{
		{Symbol: "BTC-USDT", Bucket: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), Close: 100},
	}
}

func TestAdviseParsesVerdict(t *testing.T) {
	srv := chatServer(t, `{"direction":"long","confidence":0.7,"rationale":"higher lows"}`)
	defer srv.Close()
	t.Setenv(keyEnv, "secret")

	a := New(testLogger(t), srv.URL, keyEnv, "test-model", time.Second)
	sig := a.Advise(context.Background(), "BTC-USDT", recentCandles())

	assert.False(t, sig.Degraded)
	assert.Equal(t, models.ClassAdvisor, sig.Class)
	assert.Equal(t, models.Long, sig.Direction)
	assert.InDelta(t, 0.7, sig.Strength, 1e-9)
	assert.Equal(t, "higher lows", sig.Rationale)
}

func TestAdviseShortVerdictNegativeStrength(t *testing.T) {
	srv := chatServer(t, `{"direction":"short","confidence":0.4,"rationale":"breakdown"}`)
	defer srv.Close()
	t.Setenv(keyEnv, "secret")

	a := New(testLogger(t), srv.URL, keyEnv, "test-model", time.Second)
	sig := a.Advise(context.Background(), "BTC-USDT", recentCandles())

	assert.Equal(t, models.Short, sig.Direction)
	assert.InDelta(t, -0.4, sig.Strength, 1e-9)
}

func TestAdviseStripsCodeFences(t *testing.T) {
	srv := chatServer(t, "```json\n{\"direction\":\"flat\",\"confidence\":0.2,\"rationale\":\"chop\"}\n```")
	defer srv.Close()
	t.Setenv(keyEnv, "secret")

	a := New(testLogger(t), srv.URL, keyEnv, "test-model", time.Second)
	sig := a.Advise(context.Background(), "BTC-USDT", recentCandles())

	assert.False(t, sig.Degraded)
	assert.Equal(t, models.Flat, sig.Direction)
	assert.Zero(t, sig.Strength)
}

func TestAdviseDegradesOnMalformedJSON(t *testing.T) {
	srv := chatServer(t, `the market looks bullish to me`)
	defer srv.Close()
	t.Setenv(keyEnv, "secret")

	a := New(testLogger(t), srv.URL, keyEnv, "test-model", time.Second)
	sig := a.Advise(context.Background(), "BTC-USDT", recentCandles())

	assert.True(t, sig.Degraded)
	assert.Equal(t, models.Flat, sig.Direction)
	assert.Zero(t, sig.Strength)
}

func TestAdviseDegradesOnInvalidDirection(t *testing.T) {
	srv := chatServer(t, `{"direction":"buy","confidence":0.9,"rationale":"x"}`)
	defer srv.Close()
	t.Setenv(keyEnv, "secret")

	a := New(testLogger(t), srv.URL, keyEnv, "test-model", time.Second)
	sig := a.Advise(context.Background(), "BTC-USDT", recentCandles())

	assert.True(t, sig.Degraded)
}

func TestAdviseDegradesOnConfidenceOutOfRange(t *testing.T) {
	srv := chatServer(t, `{"direction":"long","confidence":1.4,"rationale":"x"}`)
	defer srv.Close()
	t.Setenv(keyEnv, "secret")

	a := New(testLogger(t), srv.URL, keyEnv, "test-model", time.Second)
	sig := a.Advise(context.Background(), "BTC-USDT", recentCandles())

	assert.True(t, sig.Degraded)
}

func TestAdviseDegradesWithoutAPIKey(t *testing.T) {
	t.Setenv(keyEnv, "")

	a := New(testLogger(t), "http://127.0.0.1:0", keyEnv, "test-model", time.Second)
	sig := a.Advise(context.Background(), "BTC-USDT", recentCandles())

	assert.True(t, sig.Degraded)
	assert.Contains(t, sig.Rationale, "api key")
}

func TestAdviseDegradesOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	t.Setenv(keyEnv, "secret")

	a := New(testLogger(t), srv.URL, keyEnv, "test-model", time.Second)
	sig := a.Advise(context.Background(), "BTC-USDT", recentCandles())

	assert.True(t, sig.Degraded)
}

func TestAdviseRateLimited(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": `{"direction":"long","confidence":0.5,"rationale":"x"}`}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()
	t.Setenv(keyEnv, "secret")

	a := New(testLogger(t), srv.URL, keyEnv, "test-model", time.Second, WithRateLimit(2))
	for i := 0; i < 5; i++ {
		// distinct buckets defeat any caching
		a.Advise(context.Background(), "BTC-USDT", []models.Candle{
			{Symbol: "BTC-USDT", Bucket: time.Date(2025, 6, 1, 10, i, 0, 0, time.UTC)},
		})
	}
	assert.LessOrEqual(t, calls, 2)
}

func TestAdviseCachesVerdict(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": `{"direction":"long","confidence":0.5,"rationale":"x"}`}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()
	t.Setenv(keyEnv, "secret")

	a := New(testLogger(t), srv.URL, keyEnv, "test-model", time.Second,
		WithCache(cache.NewMemoryCache(16), time.Minute))

	first := a.Advise(context.Background(), "BTC-USDT", recentCandles())
	second := a.Advise(context.Background(), "BTC-USDT", recentCandles())

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
}

func TestParseVerdictTable(t *testing.T) {
	cases := []struct {
		content string
		wantErr bool
	}{
		{`{"direction":"long","confidence":0.5,"rationale":"x"}`, false},
		{`{"direction":"LONG","confidence":0.5,"rationale":"x"}`, false},
		{`{"direction":"hold","confidence":0.5}`, true},
		{`{"direction":"long","confidence":-0.1}`, true},
		{`{}`, true},
		{`not json`, true},
	}
	for i, tc := range cases {
		_, err := parseVerdict("BTC-USDT", tc.content)
		if tc.wantErr {
			assert.Error(t, err, fmt.Sprintf("case %d", i))
		} else {
			assert.NoError(t, err, fmt.Sprintf("case %d", i))
		}
	}
}
