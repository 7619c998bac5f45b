package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "TradeFuse/internal/domain/repository"
	"TradeFuse/internal/execution"
	"TradeFuse/internal/marketdata"
	internalrepo "TradeFuse/internal/repository"
	"TradeFuse/internal/usecase"
	pkgch "TradeFuse/pkg/clickhouse"
	"TradeFuse/pkg/config"
	xhttp "TradeFuse/pkg/http"
	pkgkafka "TradeFuse/pkg/kafka"
	"TradeFuse/pkg/logger"
	"TradeFuse/pkg/queue"
)

// App owns the application lifecycle: candle warmup, feed collection,
// background consumers, the operator HTTP API and graceful shutdown.
type App struct {
	cfg         *config.Config
	logger      *logger.Logger
	collector   *usecase.TickCollector
	controller  *usecase.Controller
	builder     *marketdata.Builder
	store       *internalrepo.ClickHouseStorage
	publisher   domrepo.Publisher
	consumer    *pkgkafka.Consumer
	kh          pkgkafka.MessageHandler
	notifyQueue *queue.RedisQueue
	chClient    *pkgch.Client
	monitor     *execution.Monitor
	httpHandler xhttp.Handler
	httpServer  *xhttp.Server
}

// New creates the application from its wired dependencies.
func New(
	cfg *config.Config,
	lgr *logger.Logger,
	collector *usecase.TickCollector,
	controller *usecase.Controller,
	builder *marketdata.Builder,
	store *internalrepo.ClickHouseStorage,
	publisher domrepo.Publisher,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	notifyQueue *queue.RedisQueue,
	chClient *pkgch.Client,
	monitor *execution.Monitor,
	handler xhttp.Handler,
) *App {
	return &App{
		cfg:         cfg,
		logger:      lgr,
		collector:   collector,
		controller:  controller,
		builder:     builder,
		store:       store,
		publisher:   publisher,
		consumer:    consumer,
		kh:          kh,
		notifyQueue: notifyQueue,
		chClient:    chClient,
		monitor:     monitor,
		httpHandler: handler,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.warmup(ctx)

	a.httpServer = xhttp.NewServer(a.logger, a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	if err := a.collector.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("collector started", logger.Strings("symbols", a.cfg.Exchange.Symbols))

	if a.monitor != nil {
		go a.monitor.Run(ctx)
		a.logger.Info("order monitor started",
			logger.Duration("interval", a.cfg.Execution.FillPollInterval))
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.logger.Error("kafka consumer error", logger.Error(err))
			}
		}()
		a.logger.Info("kafka consumer started", logger.String("topic", a.kh.Topic()))
	}

	if a.notifyQueue != nil {
		if err := a.notifyQueue.Start(); err != nil {
			a.logger.Error("notification queue start failed", logger.Error(err))
		} else {
			a.logger.Info("notification queue started")
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", logger.Error(err))
		return err
	}
	a.logger.Info("http server listening", logger.Int("port", a.cfg.Server.Port))

	a.controller.Ready()
	if err := a.controller.Start(ctx); err != nil {
		return err
	}

	if a.cfg.Guard.Enabled {
		go a.shockLoop(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// warmup rehydrates candle history from storage so indicators do not
// restart cold after a process restart.
func (a *App) warmup(ctx context.Context) {
	tf := domrepo.NormalizeTimeframe(a.cfg.Pipeline.Timeframe)
	to := time.Now()
	from := to.Add(-time.Duration(a.cfg.Pipeline.Lookback) * tf.Duration())

	for _, symbol := range a.cfg.Exchange.Symbols {
		candles, err := a.store.FetchCandles(ctx, symbol, tf, from, to)
		if err != nil {
			a.logger.Warn("candle warmup failed",
				logger.String("symbol", symbol),
				logger.Error(err))
			continue
		}
		if len(candles) == 0 {
			continue
		}
		a.builder.Backfill(symbol, candles)
		a.logger.Info("candle history warmed",
			logger.String("symbol", symbol),
			logger.Int("candles", len(candles)))
	}
}

// shockLoop periodically screens recent candles for volatility and volume
// shocks and routes detections through the controller.
func (a *App) shockLoop(ctx context.Context) {
	interval := a.cfg.Guard.CheckInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	tf := domrepo.NormalizeTimeframe(a.cfg.Pipeline.Timeframe)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range a.cfg.Exchange.Symbols {
				candles, err := a.builder.GetLatestNCandles(ctx, symbol, a.cfg.Guard.Lookback, tf)
				if err != nil || len(candles) == 0 {
					continue
				}
				a.controller.CheckShock(ctx, symbol, candles)
			}
		}
	}
}

// shutdown stops services in dependency order.
func (a *App) shutdown(ctx context.Context) error {
	if err := a.collector.Shutdown(ctx); err != nil {
		a.logger.Warn("collector stop error", logger.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.logger.Error("http shutdown error", logger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.logger.Warn("kafka consumer stop error", logger.Error(err))
		}
	}

	if a.notifyQueue != nil {
		if err := a.notifyQueue.Stop(shutdownCtx); err != nil {
			a.logger.Warn("notification queue stop error", logger.Error(err))
		}
	}

	if err := a.publisher.Close(); err != nil {
		a.logger.Warn("publisher close error", logger.Error(err))
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.logger.Warn("clickhouse close error", logger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}
