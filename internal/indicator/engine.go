package indicator

import (
	"errors"
	"fmt"
	"math"

	"TradeFuse/internal/domain/models"
)

// ErrInsufficientHistory is returned when the candle window is shorter than
// an indicator's warmup period.
var ErrInsufficientHistory = errors.New("insufficient candle history")

// Set selects which indicators to compute and their parameters.
type Set struct {
	SMAWindows []int
	EMAWindow  int
	RSIPeriod  int
	BBWindow   int
	BBStdDev   float64
	ATRPeriod  int
}

// DefaultSet returns the standard indicator parameters.
func DefaultSet() Set {
	return Set{
		SMAWindows: []int{9, 21, 50},
		EMAWindow:  12,
		RSIPeriod:  14,
		BBWindow:   20,
		BBStdDev:   2.0,
		ATRPeriod:  14,
	}
}

// Engine computes technical features from closed candle history.
type Engine struct {
	set Set
}

// NewEngine creates an indicator engine with the given parameter set.
func NewEngine(set Set) *Engine {
	if set.EMAWindow <= 0 {
		set = DefaultSet()
	}
	return &Engine{set: set}
}

// Compute derives a FeatureVector from candles, oldest first. Smoothed
// indicators restart after the most recent flagged gap, so a feed outage
// never leaks stale smoothing state into fresh values. Returns
// ErrInsufficientHistory when the usable window is shorter than the longest
// warmup period.
func (e *Engine) Compute(candles []models.Candle) (*models.FeatureVector, error) {
	candles = trimToLastGap(candles)

	warmup := e.warmup()
	if len(candles) < warmup {
		return nil, fmt.Errorf("%w: have %d candles, need %d", ErrInsufficientHistory, len(candles), warmup)
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	last := candles[len(candles)-1]
	features := make(map[string]float64)

	for _, w := range e.set.SMAWindows {
		features[fmt.Sprintf("sma_%d", w)] = SMA(closes, w)
	}
	features[fmt.Sprintf("ema_%d", e.set.EMAWindow)] = EMA(closes, e.set.EMAWindow)
	features[fmt.Sprintf("rsi_%d", e.set.RSIPeriod)] = RSI(closes, e.set.RSIPeriod)

	mid, upper, lower := Bollinger(closes, e.set.BBWindow, e.set.BBStdDev)
	features["bb_mid"] = mid
	features["bb_upper"] = upper
	features["bb_lower"] = lower
	if width := upper - lower; width > 0 {
		features["bb_pct"] = (last.Close - lower) / width
	}

	features[fmt.Sprintf("atr_%d", e.set.ATRPeriod)] = ATR(candles, e.set.ATRPeriod)
	features["close"] = last.Close

	return &models.FeatureVector{
		Symbol:    last.Symbol,
		Timestamp: last.Bucket,
		Features:  features,
	}, nil
}

// warmup returns the longest lookback any configured indicator needs.
func (e *Engine) warmup() int {
	w := e.set.EMAWindow
	for _, s := range e.set.SMAWindows {
		if s > w {
			w = s
		}
	}
	if e.set.RSIPeriod+1 > w {
		w = e.set.RSIPeriod + 1
	}
	if e.set.BBWindow > w {
		w = e.set.BBWindow
	}
	if e.set.ATRPeriod+1 > w {
		w = e.set.ATRPeriod + 1
	}
	return w
}

func trimToLastGap(candles []models.Candle) []models.Candle {
	for i := len(candles) - 1; i > 0; i-- {
		if candles[i].Gap {
			return candles[i:]
		}
	}
	return candles
}

// SMA returns the simple moving average of the last window closes.
func SMA(closes []float64, window int) float64 {
	if window <= 0 || len(closes) < window {
		return 0
	}
	sum := 0.0
	for _, v := range closes[len(closes)-window:] {
		sum += v
	}
	return sum / float64(window)
}

// EMA returns the exponential moving average seeded with an SMA over the
// first window values.
func EMA(closes []float64, window int) float64 {
	if window <= 0 || len(closes) < window {
		return 0
	}
	k := 2.0 / float64(window+1)
	ema := SMA(closes[:window], window)
	for _, v := range closes[window:] {
		ema = v*k + ema*(1-k)
	}
	return ema
}

// RSI returns the Wilder-smoothed relative strength index.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return 0
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// Bollinger returns middle, upper and lower bands over the last window.
func Bollinger(closes []float64, window int, stdDev float64) (mid, upper, lower float64) {
	if window <= 0 || len(closes) < window {
		return 0, 0, 0
	}
	mid = SMA(closes, window)

	variance := 0.0
	for _, v := range closes[len(closes)-window:] {
		d := v - mid
		variance += d * d
	}
	sd := math.Sqrt(variance / float64(window))

	return mid, mid + stdDev*sd, mid - stdDev*sd
}

// ATR returns the Wilder-smoothed average true range.
func ATR(candles []models.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}

	trs := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		h, l, pc := candles[i].High, candles[i].Low, candles[i-1].Close
		tr := h - l
		if d := math.Abs(h - pc); d > tr {
			tr = d
		}
		if d := math.Abs(l - pc); d > tr {
			tr = d
		}
		trs = append(trs, tr)
	}

	atr := 0.0
	for _, tr := range trs[:period] {
		atr += tr
	}
	atr /= float64(period)

	for _, tr := range trs[period:] {
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	return atr
}
