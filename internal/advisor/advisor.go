package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"TradeFuse/internal/domain/models"
	domsvc "TradeFuse/internal/domain/service"
	"TradeFuse/pkg/cache"
	xhttp "TradeFuse/pkg/http"
	"TradeFuse/pkg/logger"
)

const systemPrompt = "You are a trading analyst. You receive recent OHLCV candles " +
	"for one symbol as JSON. Respond ONLY with compact JSON matching the schema: " +
	`{"direction":"long|short|flat","confidence":0.0-1.0,"rationale":"one sentence"}`

// LLMAdvisor queries an OpenAI-compatible chat completion endpoint for a
// qualitative verdict. It is advisory only: every failure mode (missing key,
// rate limit, timeout, malformed response) degrades to a neutral signal and
// never fails the evaluation cycle.
type LLMAdvisor struct {
	client       *xhttp.Client
	cache        cache.Service
	limiter      *Limiter
	logger       *logger.Logger
	url          string
	apiKeyEnv    string
	model        string
	temperature  float64
	maxTokens    int
	cacheTTL     time.Duration
	maxPerMinute float64
}

// Option configures LLMAdvisor.
type Option func(*LLMAdvisor)

// WithCache enables verdict caching.
func WithCache(c cache.Service, ttl time.Duration) Option {
	return func(a *LLMAdvisor) {
		a.cache = c
		if ttl > 0 {
			a.cacheTTL = ttl
		}
	}
}

// WithRateLimit caps calls per minute across all symbols.
func WithRateLimit(perMinute int) Option {
	return func(a *LLMAdvisor) {
		if perMinute > 0 {
			a.maxPerMinute = float64(perMinute)
		}
	}
}

// WithSampling sets temperature and max completion tokens.
func WithSampling(temperature float64, maxTokens int) Option {
	return func(a *LLMAdvisor) {
		a.temperature = temperature
		if maxTokens > 0 {
			a.maxTokens = maxTokens
		}
	}
}

// New creates an LLM advisor. apiKeyEnv names the environment variable
// holding the bearer token.
func New(lgr *logger.Logger, url, apiKeyEnv, model string, timeout time.Duration, opts ...Option) *LLMAdvisor {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	a := &LLMAdvisor{
		client:       xhttp.NewClient(xhttp.WithTimeout(timeout)),
		limiter:      NewLimiter(),
		logger:       lgr,
		url:          url,
		apiKeyEnv:    apiKeyEnv,
		model:        model,
		temperature:  0.1,
		maxTokens:    128,
		cacheTTL:     30 * time.Second,
		maxPerMinute: 10,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type verdict struct {
	Direction  string  `json:"direction"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Advise returns an advisor-class signal for symbol. The returned signal is
// flagged Degraded whenever the verdict could not be obtained or validated.
func (a *LLMAdvisor) Advise(ctx context.Context, symbol string, recent []models.Candle) models.Signal {
	cacheKey := a.cacheKey(symbol, recent)
	if a.cache != nil {
		var sig models.Signal
		if err := a.cache.Get(ctx, cacheKey, &sig); err == nil {
			return sig
		}
	}

	if !a.limiter.Allow("advisor", a.maxPerMinute, a.maxPerMinute/60) {
		return a.degraded(symbol, "rate limited")
	}

	apiKey := os.Getenv(a.apiKeyEnv)
	if apiKey == "" {
		return a.degraded(symbol, "api key missing")
	}

	sig, err := a.query(ctx, symbol, recent, apiKey)
	if err != nil {
		a.logger.Warn("advisor degraded",
			logger.String("symbol", symbol),
			logger.Error(err))
		return a.degraded(symbol, err.Error())
	}

	if a.cache != nil {
		_ = a.cache.Set(ctx, cacheKey, sig, a.cacheTTL)
	}
	return sig
}

func (a *LLMAdvisor) query(ctx context.Context, symbol string, recent []models.Candle, apiKey string) (models.Signal, error) {
	stateJSON, _ := json.Marshal(candleContext(recent))
	prompt := fmt.Sprintf("Symbol: %s\nCandles: %s", symbol, stateJSON)

	body := map[string]interface{}{
		"model": a.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
		"temperature": a.temperature,
		"max_tokens":  a.maxTokens,
	}

	var resp chatResponse
	err := a.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    a.url,
		Headers: map[string]string{
			"Authorization": "Bearer " + apiKey,
			"Content-Type":  "application/json",
		},
		Body: body,
	}, &resp)
	if err != nil {
		return models.Signal{}, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return models.Signal{}, fmt.Errorf("no choices in response")
	}

	return parseVerdict(symbol, resp.Choices[0].Message.Content)
}

// parseVerdict validates the completion against the strict verdict schema.
func parseVerdict(symbol, content string) (models.Signal, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var v verdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &v); err != nil {
		return models.Signal{}, fmt.Errorf("malformed verdict: %w", err)
	}

	var dir models.Direction
	switch strings.ToLower(strings.TrimSpace(v.Direction)) {
	case "long":
		dir = models.Long
	case "short":
		dir = models.Short
	case "flat":
		dir = models.Flat
	default:
		return models.Signal{}, fmt.Errorf("invalid direction token %q", v.Direction)
	}

	if v.Confidence < 0 || v.Confidence > 1 {
		return models.Signal{}, fmt.Errorf("confidence %f out of range", v.Confidence)
	}

	return models.Signal{
		Producer:  "llm",
		Class:     models.ClassAdvisor,
		Symbol:    symbol,
		Direction: dir,
		Strength:  v.Confidence * dir.Sign(),
		Rationale: v.Rationale,
	}, nil
}

func (a *LLMAdvisor) degraded(symbol, reason string) models.Signal {
	return models.Signal{
		Producer:  "llm",
		Class:     models.ClassAdvisor,
		Symbol:    symbol,
		Direction: models.Flat,
		Strength:  0,
		Rationale: reason,
		Degraded:  true,
	}
}

func (a *LLMAdvisor) cacheKey(symbol string, recent []models.Candle) string {
	if len(recent) == 0 {
		return "advisor:" + symbol
	}
	last := recent[len(recent)-1]
	return fmt.Sprintf("advisor:%s:%d", symbol, last.Bucket.Unix())
}

// candleContext trims the candle history to a bounded prompt payload.
func candleContext(recent []models.Candle) []map[string]float64 {
	const maxCandles = 30
	if len(recent) > maxCandles {
		recent = recent[len(recent)-maxCandles:]
	}
	out := make([]map[string]float64, 0, len(recent))
	for _, c := range recent {
		out = append(out, map[string]float64{
			"o": c.Open, "h": c.High, "l": c.Low, "c": c.Close, "v": c.Volume,
		})
	}
	return out
}

var _ domsvc.Advisor = (*LLMAdvisor)(nil)
