package usecase

import (
	"context"
	"fmt"
	"time"

	"TradeFuse/internal/domain/models"
	drepo "TradeFuse/internal/domain/repository"
	domsvc "TradeFuse/internal/domain/service"
	"TradeFuse/internal/marketdata"
	"TradeFuse/pkg/backoff"
	"TradeFuse/pkg/logger"
)

// CollectorParams carries the collector's static configuration.
type CollectorParams struct {
	Symbols []string
	TF      drepo.Timeframe
	// TroubleAfter is the consecutive reconnect count after which the
	// operator is notified.
	TroubleAfter int
	// MaxReconnects bounds reconnect attempts per outage before the feed
	// is declared down. Zero means retry forever.
	MaxReconnects int
}

// TickCollector consumes the market stream, folds ticks into candles,
// publishes raw ticks to the bus, and hands completed candles to the
// evaluation trigger. On disconnect it reconnects with exponential backoff
// and replays the missed window over REST; replayed history keeps its gap
// flags, continuity is never silently dropped.
type TickCollector struct {
	stream    drepo.MarketStream
	exchange  domsvc.Exchange
	builder   *marketdata.Builder
	publisher drepo.Publisher
	storage   drepo.Storage
	metrics   drepo.Metrics
	notifier  domsvc.Notifier
	logger    *logger.Logger
	clock     domsvc.Clock
	policy    backoff.Policy

	symbols       []string
	tf            drepo.Timeframe
	troubleAfter  int
	maxReconnects int
	onCandle      func(symbol string)
	tickObserver  func(*models.Tick)

	lastTick   time.Time
	reconnects int
}

// NewTickCollector creates the collector. onCandle fires after each closed
// candle and is the evaluation trigger.
func NewTickCollector(
	lgr *logger.Logger,
	stream drepo.MarketStream,
	exchange domsvc.Exchange,
	builder *marketdata.Builder,
	publisher drepo.Publisher,
	storage drepo.Storage,
	metrics drepo.Metrics,
	notifier domsvc.Notifier,
	clock domsvc.Clock,
	policy backoff.Policy,
	params CollectorParams,
	onCandle func(symbol string),
) *TickCollector {
	if clock == nil {
		clock = domsvc.RealClock()
	}
	if params.TroubleAfter <= 0 {
		params.TroubleAfter = 3
	}
	return &TickCollector{
		stream:        stream,
		exchange:      exchange,
		builder:       builder,
		publisher:     publisher,
		storage:       storage,
		metrics:       metrics,
		notifier:      notifier,
		logger:        lgr,
		clock:         clock,
		policy:        policy,
		symbols:       params.Symbols,
		tf:            params.TF,
		troubleAfter:  params.TroubleAfter,
		maxReconnects: params.MaxReconnects,
		onCandle:      onCandle,
	}
}

// IsConnected reports the stream state.
func (c *TickCollector) IsConnected() bool { return c.stream.IsConnected() }

// Start verifies exchange credentials, connects, subscribes and begins
// consuming.
func (c *TickCollector) Start(ctx context.Context) error {
	balances, err := c.exchange.GetBalances(ctx)
	if err != nil {
		c.logger.Warn("balance check failed, trading credentials may be invalid",
			logger.Error(err))
	} else {
		for _, b := range balances {
			c.logger.Info("account balance",
				logger.String("asset", b.Asset),
				logger.String("free", b.Free.String()),
				logger.String("total", b.Total.String()))
		}
	}

	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx, c.symbols); err != nil {
		return err
	}
	tickCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, tickCh, errCh)
	return nil
}

// SetTickObserver registers an extra per-tick callback (stale-cycle
// cancellation hooks in here).
func (c *TickCollector) SetTickObserver(fn func(*models.Tick)) {
	c.tickObserver = fn
}

func (c *TickCollector) consume(ctx context.Context, tickCh <-chan *models.Tick, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err == nil {
				continue
			}
			c.metrics.RecordError("stream")
			tickCh, errCh = c.recover(ctx)
			if tickCh == nil {
				return
			}
		case t := <-tickCh:
			if t == nil {
				continue
			}
			c.handleTick(ctx, t)
		}
	}
}

func (c *TickCollector) handleTick(ctx context.Context, t *models.Tick) {
	c.lastTick = c.clock.Now()
	c.reconnects = 0
	c.metrics.RecordTick(t.Symbol)
	c.metrics.RecordLastPrice(t.Symbol, t.Last)

	if c.tickObserver != nil {
		c.tickObserver(t)
	}

	if err := c.publisher.PublishTick(ctx, t); err != nil {
		c.metrics.RecordError("tick_publish")
	}

	if closed := c.builder.Apply(t); closed != nil {
		if err := c.storage.StoreCandle(ctx, *closed); err != nil {
			c.metrics.RecordError("candle_store")
			c.logger.Warn("candle store failed",
				logger.String("symbol", closed.Symbol),
				logger.Error(err))
		}
		if c.onCandle != nil {
			c.onCandle(closed.Symbol)
		}
	}
}

// recover reconnects with exponential backoff and replays the gap window
// over REST. It returns fresh channels, or nils when the context ended.
func (c *TickCollector) recover(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	outageStart := c.lastTick
	if outageStart.IsZero() {
		outageStart = c.clock.Now().Add(-c.tf.Duration())
	}

	for attempt := 1; ; attempt++ {
		if c.maxReconnects > 0 && attempt > c.maxReconnects {
			c.logger.Error("market feed declared down",
				logger.Int("attempts", attempt-1))
			c.notifier.Notify(ctx, domsvc.Event{
				Kind:     domsvc.EventFeedTrouble,
				Title:    "Market feed down",
				Body:     fmt.Sprintf("gave up after %d reconnect attempts", attempt-1),
				Priority: "critical",
			})
			return nil, nil
		}

		if err := backoff.Wait(ctx, c.clock, c.policy, attempt); err != nil {
			return nil, nil
		}

		c.metrics.RecordReconnect()
		c.reconnects++
		if c.reconnects == c.troubleAfter {
			c.notifier.Notify(ctx, domsvc.Event{
				Kind:     domsvc.EventFeedTrouble,
				Title:    "Market feed reconnecting",
				Body:     "repeated stream disconnects, evaluation may lag",
				Priority: "high",
			})
		}

		if err := c.stream.Reconnect(ctx); err != nil {
			c.logger.Warn("reconnect failed",
				logger.Int("attempt", attempt),
				logger.Error(err))
			continue
		}

		c.logger.Info("market stream recovered", logger.Int("attempts", attempt))
		c.replayGap(ctx, outageStart)
		return c.stream.Read(ctx)
	}
}

// replayGap polls the REST candle endpoint for the outage window and
// backfills the builder. Replayed candles flag the discontinuity.
func (c *TickCollector) replayGap(ctx context.Context, from time.Time) {
	if c.exchange == nil {
		return
	}

	to := c.clock.Now()
	for _, symbol := range c.symbols {
		candles, err := c.exchange.GetCandles(ctx, symbol, c.tf, from.Truncate(c.tf.Duration()), to)
		if err != nil {
			c.metrics.RecordError("gap_replay")
			c.logger.Warn("gap replay failed",
				logger.String("symbol", symbol),
				logger.Error(err))
			continue
		}
		if len(candles) == 0 {
			continue
		}
		candles[0].Gap = true
		c.builder.Backfill(symbol, candles)
		for _, candle := range candles {
			if err := c.storage.StoreCandle(ctx, candle); err != nil {
				c.metrics.RecordError("candle_store")
			}
		}
		c.logger.Info("gap replayed",
			logger.String("symbol", symbol),
			logger.Int("candles", len(candles)))
	}
}

// Shutdown closes the stream.
func (c *TickCollector) Shutdown(context.Context) error {
	return c.stream.Close()
}
