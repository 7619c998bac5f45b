package execution

import (
	"context"
	"time"

	domsvc "TradeFuse/internal/domain/service"
	"TradeFuse/pkg/logger"
)

// Monitor polls the exchange for execution reports on open orders and folds
// them into the engine. The market stream carries ticks only, so without
// this loop an acknowledged order would sit open forever and the position
// book would never move. Redelivered reports are harmless: the engine
// deduplicates by fill id.
type Monitor struct {
	engine   *Engine
	exchange domsvc.Exchange
	logger   *logger.Logger
	clock    domsvc.Clock
	interval time.Duration
	symbols  []string
}

// NewMonitor creates an order monitor over the engine's open orders.
func NewMonitor(
	lgr *logger.Logger,
	engine *Engine,
	exchange domsvc.Exchange,
	clock domsvc.Clock,
	interval time.Duration,
	symbols []string,
) *Monitor {
	if clock == nil {
		clock = domsvc.RealClock()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{
		engine:   engine,
		exchange: exchange,
		logger:   lgr,
		clock:    clock,
		interval: interval,
		symbols:  symbols,
	}
}

// Run polls until the context ends.
func (m *Monitor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.clock.After(m.interval):
			m.Poll(ctx)
		}
	}
}

// Poll fetches fills for every open order once.
func (m *Monitor) Poll(ctx context.Context) {
	for _, symbol := range m.symbols {
		for _, order := range m.engine.OpenOrders(symbol) {
			if order.ExchangeID == "" {
				continue
			}

			fills, err := m.exchange.GetFills(ctx, symbol, order.ExchangeID)
			if err != nil {
				m.logger.Warn("fill poll failed",
					logger.String("symbol", symbol),
					logger.String("exchange_id", order.ExchangeID),
					logger.Error(err))
				continue
			}

			for _, f := range fills {
				if err := m.engine.ApplyFill(ctx, f); err != nil {
					m.logger.Warn("fill apply failed",
						logger.String("fill_id", f.FillID),
						logger.Error(err))
				}
			}
		}
	}
}
