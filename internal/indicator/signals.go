package indicator

import (
	"fmt"

	"TradeFuse/internal/domain/models"
)

// Signals derives indicator-class signals from a computed feature vector.
// Each rule is an independent producer; strengths stay in [-1, 1].
func (e *Engine) Signals(fv *models.FeatureVector) []models.Signal {
	out := make([]models.Signal, 0, 3)

	if s, ok := e.rsiSignal(fv); ok {
		out = append(out, s)
	}
	if s, ok := e.crossoverSignal(fv); ok {
		out = append(out, s)
	}
	if s, ok := e.bollingerSignal(fv); ok {
		out = append(out, s)
	}

	return out
}

// rsiSignal maps RSI distance from the 50 midline to strength: oversold
// reads long, overbought reads short. RSI 0 is a real reading (no gains in
// the window), only an absent feature drops the signal.
func (e *Engine) rsiSignal(fv *models.FeatureVector) (models.Signal, bool) {
	rsi, ok := fv.Lookup(fmt.Sprintf("rsi_%d", e.set.RSIPeriod))
	if !ok {
		return models.Signal{}, false
	}

	strength := (50 - rsi) / 50 // rsi 30 -> +0.4, rsi 70 -> -0.4
	return models.Signal{
		Producer:  "rsi",
		Class:     models.ClassIndicator,
		Symbol:    fv.Symbol,
		Direction: models.DirectionOf(strength),
		Strength:  clamp(strength),
	}, true
}

// crossoverSignal compares the fastest and slowest configured SMAs.
func (e *Engine) crossoverSignal(fv *models.FeatureVector) (models.Signal, bool) {
	if len(e.set.SMAWindows) < 2 {
		return models.Signal{}, false
	}
	fast, fastOK := fv.Lookup(fmt.Sprintf("sma_%d", minInt(e.set.SMAWindows)))
	slow, slowOK := fv.Lookup(fmt.Sprintf("sma_%d", maxInt(e.set.SMAWindows)))
	if !fastOK || !slowOK || slow == 0 {
		return models.Signal{}, false
	}

	strength := (fast - slow) / slow * 50 // half a percent spread saturates at 0.25
	return models.Signal{
		Producer:  "sma_cross",
		Class:     models.ClassIndicator,
		Symbol:    fv.Symbol,
		Direction: models.DirectionOf(strength),
		Strength:  clamp(strength),
	}, true
}

// bollingerSignal reads band position as mean reversion: near the lower
// band is long, near the upper band is short.
func (e *Engine) bollingerSignal(fv *models.FeatureVector) (models.Signal, bool) {
	upper, lower := fv.Get("bb_upper"), fv.Get("bb_lower")
	if upper <= lower {
		return models.Signal{}, false
	}

	strength := 1 - 2*fv.Get("bb_pct")
	return models.Signal{
		Producer:  "bollinger",
		Class:     models.ClassIndicator,
		Symbol:    fv.Symbol,
		Direction: models.DirectionOf(strength),
		Strength:  clamp(strength),
	}, true
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

func minInt(vs []int) int {
	m := vs[0]
	for _, v := range vs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxInt(vs []int) int {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
