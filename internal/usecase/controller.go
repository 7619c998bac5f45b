package usecase

import (
	"context"
	"fmt"
	"sync"

	"TradeFuse/internal/domain/models"
	domsvc "TradeFuse/internal/domain/service"
	"TradeFuse/internal/execution"
	"TradeFuse/internal/guard"
	"TradeFuse/internal/risk"
	"TradeFuse/pkg/logger"
)

// RunState is the engine lifecycle state.
type RunState string

const (
	StateInitializing RunState = "initializing"
	StateReady        RunState = "ready"
	StateRunning      RunState = "running"
	StatePaused       RunState = "paused"
	StateEmergency    RunState = "emergency"
)

// Evaluator runs one decision cycle for a symbol.
type Evaluator interface {
	Evaluate(ctx context.Context, symbol string) error
}

// Controller owns the run state machine and gates evaluation cycles. Shock
// events route through it: a severe shock flattens the book and halts, a
// critical one pauses, anything milder just notifies.
type Controller struct {
	pipeline Evaluator
	exec     *execution.Engine
	book     *risk.Book
	guard    *guard.Guard
	notifier domsvc.Notifier
	logger   *logger.Logger

	// maxErrStreak pauses evaluation automatically when cycles keep
	// failing, so a broken dependency cannot burn the whole session.
	maxErrStreak int

	mu        sync.Mutex
	state     RunState
	errStreak int
}

// NewController creates a controller in the initializing state.
// maxErrStreak bounds consecutive cycle errors before the auto-pause.
func NewController(
	lgr *logger.Logger,
	pipeline Evaluator,
	exec *execution.Engine,
	book *risk.Book,
	g *guard.Guard,
	notifier domsvc.Notifier,
	maxErrStreak int,
) *Controller {
	if maxErrStreak <= 0 {
		maxErrStreak = 5
	}
	return &Controller{
		pipeline:     pipeline,
		exec:         exec,
		book:         book,
		guard:        g,
		notifier:     notifier,
		logger:       lgr,
		maxErrStreak: maxErrStreak,
		state:        StateInitializing,
	}
}

// State returns the current run state.
func (c *Controller) State() RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s RunState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// Ready moves initializing to ready once wiring is complete.
func (c *Controller) Ready() {
	c.setState(StateReady)
}

// Start moves ready or paused to running.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateReady, StatePaused:
		c.state = StateRunning
		c.logger.Info("engine running")
		return nil
	case StateRunning:
		return nil
	default:
		return fmt.Errorf("cannot start from state %s", c.state)
	}
}

// Pause suspends evaluation; open orders and positions are untouched.
func (c *Controller) Pause(reason string) {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return
	}
	c.state = StatePaused
	c.mu.Unlock()

	c.logger.Warn("engine paused", logger.String("reason", reason))
	c.notifier.Notify(context.Background(), domsvc.Event{
		Kind:     domsvc.EventLifecycle,
		Title:    "Engine paused",
		Body:     reason,
		Priority: "high",
	})
}

// Resume returns a paused engine to running.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePaused {
		return fmt.Errorf("cannot resume from state %s", c.state)
	}
	c.state = StateRunning
	c.errStreak = 0
	c.logger.Info("engine resumed")
	return nil
}

// EvaluateSymbol runs one cycle when the engine is running. Consecutive
// cycle errors beyond the threshold pause the engine.
func (c *Controller) EvaluateSymbol(ctx context.Context, symbol string) {
	if c.State() != StateRunning {
		return
	}

	if err := c.pipeline.Evaluate(ctx, symbol); err != nil {
		c.logger.Error("evaluation cycle error",
			logger.String("symbol", symbol),
			logger.Error(err))

		c.mu.Lock()
		c.errStreak++
		streak := c.errStreak
		c.mu.Unlock()

		if streak >= c.maxErrStreak {
			c.Pause(fmt.Sprintf("%d consecutive evaluation errors", streak))
		}
		return
	}

	c.mu.Lock()
	c.errStreak = 0
	c.mu.Unlock()
}

// CheckShock runs the guard over the symbol's history and reacts to the
// detected severity tier.
func (c *Controller) CheckShock(ctx context.Context, symbol string, candles []models.Candle) {
	ev := c.guard.Check(symbol, candles)
	if ev == nil {
		return
	}

	switch {
	case ev.Severity > guard.SeverityEmergency:
		c.EmergencyStop(ctx, fmt.Sprintf("%s shock on %s (severity %.2f)", ev.Kind, symbol, ev.Severity))
	case ev.Severity > guard.SeverityPause:
		c.Pause(fmt.Sprintf("%s shock on %s (severity %.2f)", ev.Kind, symbol, ev.Severity))
	default:
		c.notifier.Notify(ctx, domsvc.Event{
			Kind:     domsvc.EventShock,
			Symbol:   symbol,
			Title:    "Unusual market activity",
			Body:     fmt.Sprintf("%s: %s (ratio %.1f)", ev.Kind, ev.Observation, ev.Ratio),
			Priority: "normal",
		})
	}
}

// EmergencyStop halts evaluation, cancels open orders and flattens every
// position with market orders.
func (c *Controller) EmergencyStop(ctx context.Context, reason string) {
	c.mu.Lock()
	if c.state == StateEmergency {
		c.mu.Unlock()
		return
	}
	c.state = StateEmergency
	c.mu.Unlock()

	c.logger.Error("EMERGENCY STOP", logger.String("reason", reason))
	c.notifier.Notify(ctx, domsvc.Event{
		Kind:     domsvc.EventShock,
		Title:    "Emergency stop",
		Body:     reason,
		Priority: "critical",
	})

	c.cancelOpenOrders(ctx)
	c.closeAllPositions(ctx)
}

func (c *Controller) cancelOpenOrders(ctx context.Context) {
	for _, pos := range c.book.Positions() {
		for _, order := range c.exec.OpenOrders(pos.Symbol) {
			if order.ExchangeID == "" {
				continue
			}
			if err := c.exec.RequestCancel(ctx, order.Symbol, order.ExchangeID); err != nil {
				c.logger.Error("emergency cancel failed",
					logger.String("symbol", order.Symbol),
					logger.String("exchange_id", order.ExchangeID),
					logger.Error(err))
			}
		}
	}
}

func (c *Controller) closeAllPositions(ctx context.Context) {
	for _, pos := range c.book.Positions() {
		side := models.Sell
		if pos.Direction() == models.Short {
			side = models.Buy
		}

		decision := &models.Decision{
			Symbol:    pos.Symbol,
			Direction: directionFor(side),
		}
		verdict := models.RiskVerdict{
			Decision: decision,
			Approved: true,
			Quantity: pos.Quantity.Abs(),
		}
		if _, err := c.exec.Submit(ctx, verdict); err != nil {
			c.logger.Error("emergency close failed",
				logger.String("symbol", pos.Symbol),
				logger.Error(err))
		}
	}
}

func directionFor(side models.Side) models.Direction {
	if side == models.Sell {
		return models.Short
	}
	return models.Long
}
