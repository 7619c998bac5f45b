package guard

import (
	"math"
	"sync"
	"time"

	"TradeFuse/internal/domain/models"
	domsvc "TradeFuse/internal/domain/service"
	"TradeFuse/pkg/logger"
)

// Severity tiers. Above SeverityEmergency the controller flattens the book
// and halts; above SeverityPause it pauses evaluation.
const (
	SeverityEmergency = 0.8
	SeverityPause     = 0.5
)

// ShockEvent describes one detected market anomaly.
type ShockEvent struct {
	Symbol      string
	Kind        string // "volatility" or "volume"
	Ratio       float64
	Severity    float64
	Observation string
	At          time.Time
}

// Config holds detection thresholds. Ratios compare the recent window to
// the full observed baseline.
type Config struct {
	VolatilityThreshold float64       // recent/baseline volatility ratio
	VolumeThreshold     float64       // last/mean volume ratio
	Window              int           // recent window in candles
	MaxAlertsPerDay     int
	AlertCooldown       time.Duration
}

// DefaultConfig mirrors conservative production thresholds.
func DefaultConfig() Config {
	return Config{
		VolatilityThreshold: 3.5,
		VolumeThreshold:     5.0,
		Window:              20,
		MaxAlertsPerDay:     3,
		AlertCooldown:       time.Hour,
	}
}

// Guard watches candle history for volatility and volume shocks. Alerts are
// budgeted per day and rate limited by a cooldown so a sustained shock does
// not flood the operator channel.
type Guard struct {
	cfg    Config
	clock  domsvc.Clock
	logger *logger.Logger

	mu         sync.Mutex
	lastAlert  time.Time
	alertCount int
	resetDate  time.Time
}

// New creates a shock guard.
func New(lgr *logger.Logger, cfg Config, clock domsvc.Clock) *Guard {
	if cfg.Window <= 0 {
		cfg = DefaultConfig()
	}
	if clock == nil {
		clock = domsvc.RealClock()
	}
	return &Guard{cfg: cfg, clock: clock, logger: lgr}
}

// Check inspects the candle history for symbol and returns a shock event
// when a threshold is breached, nil when the market looks normal or the
// alert budget is spent. candles are oldest first.
func (g *Guard) Check(symbol string, candles []models.Candle) *ShockEvent {
	if len(candles) < g.cfg.Window*2 {
		return nil
	}

	ev := g.detect(symbol, candles)
	if ev == nil {
		return nil
	}

	if !g.allowAlert() {
		g.logger.Debug("shock alert suppressed by budget",
			logger.String("symbol", symbol),
			logger.Float64("severity", ev.Severity))
		return nil
	}

	g.logger.Warn("market shock detected",
		logger.String("symbol", symbol),
		logger.String("kind", ev.Kind),
		logger.Float64("ratio", ev.Ratio),
		logger.Float64("severity", ev.Severity))
	return ev
}

func (g *Guard) detect(symbol string, candles []models.Candle) *ShockEvent {
	returns := make([]float64, 0, len(candles)-1)
	volumes := make([]float64, 0, len(candles))
	for i, c := range candles {
		volumes = append(volumes, c.Volume)
		if i == 0 || candles[i-1].Close == 0 {
			continue
		}
		returns = append(returns, c.Close/candles[i-1].Close-1)
	}

	var best *ShockEvent
	now := g.clock.Now()

	baseVol := stddev(returns)
	recentVol := stddev(returns[len(returns)-g.cfg.Window:])
	if baseVol > 0 {
		ratio := recentVol / baseVol
		if sev := severity(ratio, g.cfg.VolatilityThreshold, 2); sev > 0 {
			best = &ShockEvent{
				Symbol:      symbol,
				Kind:        "volatility",
				Ratio:       ratio,
				Severity:    sev,
				Observation: "recent volatility far above baseline",
				At:          now,
			}
		}
	}

	meanVolume := mean(volumes)
	if meanVolume > 0 {
		ratio := volumes[len(volumes)-1] / meanVolume
		if sev := severity(ratio, g.cfg.VolumeThreshold, 3); sev > 0 {
			if best == nil || sev > best.Severity {
				best = &ShockEvent{
					Symbol:      symbol,
					Kind:        "volume",
					Ratio:       ratio,
					Severity:    sev,
					Observation: "volume spike far above mean",
					At:          now,
				}
			}
		}
	}

	return best
}

// severity scales the threshold overshoot onto [0, 1]; spread widens the
// ramp so only extreme overshoots saturate.
func severity(value, threshold, spread float64) float64 {
	if threshold <= 0 {
		return 0
	}
	s := (value - threshold) / (spread * threshold)
	if s <= 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func (g *Guard) allowAlert() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	day := now.Truncate(24 * time.Hour)
	if day.After(g.resetDate) {
		g.resetDate = day
		g.alertCount = 0
	}

	if g.cfg.MaxAlertsPerDay > 0 && g.alertCount >= g.cfg.MaxAlertsPerDay {
		return false
	}
	if !g.lastAlert.IsZero() && now.Sub(g.lastAlert) < g.cfg.AlertCooldown {
		return false
	}

	g.lastAlert = now
	g.alertCount++
	return true
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	v := 0.0
	for _, x := range xs {
		d := x - m
		v += d * d
	}
	return math.Sqrt(v / float64(len(xs)-1))
}
