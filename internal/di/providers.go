package di

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"TradeFuse/internal/advisor"
	domrepo "TradeFuse/internal/domain/repository"
	domsvc "TradeFuse/internal/domain/service"
	"TradeFuse/internal/ensemble"
	"TradeFuse/internal/exchange"
	"TradeFuse/internal/execution"
	"TradeFuse/internal/fusion"
	"TradeFuse/internal/guard"
	"TradeFuse/internal/handler/api"
	"TradeFuse/internal/indicator"
	"TradeFuse/internal/domain/models"
	"TradeFuse/internal/marketdata"
	"TradeFuse/internal/notify"
	internalrepo "TradeFuse/internal/repository"
	"TradeFuse/internal/risk"
	"TradeFuse/internal/usecase"
	"TradeFuse/pkg/backoff"
	"TradeFuse/pkg/cache"
	pkgch "TradeFuse/pkg/clickhouse"
	"TradeFuse/pkg/config"
	xhttp "TradeFuse/pkg/http"
	pkgkafka "TradeFuse/pkg/kafka"
	"TradeFuse/pkg/logger"
	"TradeFuse/pkg/metrics"
	"TradeFuse/pkg/queue"
	"TradeFuse/pkg/server"
)

// ProvideLogger creates the application logger. Dev environments get a
// console writer, everything else emits JSON.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	format := "json"
	level := "info"
	if cfg.Environment == "dev" {
		format = "console"
		level = "debug"
	}
	return logger.New(&logger.Config{Level: level, Format: format, Output: "stdout"})
}

// ProvideClock returns the wall clock shared by retry, cooldown and guard
// state machines.
func ProvideClock() domsvc.Clock {
	return domsvc.RealClock()
}

// ProvideMetrics creates the Prometheus recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideStorage creates ClickHouse storage and applies the schema.
func ProvideStorage(chClient *pkgch.Client) (*internalrepo.ClickHouseStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := internalrepo.NewClickHouseStorage(ctx, chClient)
	if err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when no brokers are
// configured.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatch(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvidePublisher creates the Kafka publisher repository.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config) domrepo.Publisher {
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.TicksTopic, cfg.Kafka.EventsTopic)
}

// ProvideKafkaConsumer creates the ticks consumer, or nil when no brokers
// are configured.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideTicksHandler registers the handler for the raw ticks topic.
func ProvideTicksHandler(store domrepo.Storage, m domrepo.Metrics, cfg *config.Config) *usecase.KafkaTicksHandler {
	return usecase.NewKafkaTicksHandler(cfg.Kafka.TicksTopic, store, m)
}

// ProvideRedisClient creates a raw Redis client for the notification queue,
// or nil when Redis is disabled.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideCache creates the advisor verdict cache. Redis when enabled,
// otherwise an in-process LRU.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(1024), nil
	}
	return cache.NewRedisCache(
		cache.WithAddr(cfg.Redis.Addr),
		cache.WithPassword(cfg.Redis.Password),
		cache.WithDB(cfg.Redis.DB),
		cache.WithKeyPrefix("tradefuse"),
	)
}

// ProvideBuilder creates the candle builder sized for the evaluation
// lookback plus headroom.
func ProvideBuilder(cfg *config.Config) *marketdata.Builder {
	tf := domrepo.NormalizeTimeframe(cfg.Pipeline.Timeframe)
	return marketdata.NewBuilder(tf, cfg.Pipeline.Lookback*2)
}

// ProvideStream creates the exchange WebSocket stream.
func ProvideStream(lgr *logger.Logger, cfg *config.Config) domrepo.MarketStream {
	return marketdata.NewStream(lgr, cfg.Exchange.WebSocketURL, cfg.Exchange.APIKey,
		marketdata.WithReconnectDelay(cfg.Exchange.ReconnectDelay),
		marketdata.WithPingInterval(cfg.Exchange.PingInterval),
	)
}

// ProvideExchange creates the exchange REST client.
func ProvideExchange(cfg *config.Config) domsvc.Exchange {
	return exchange.NewRESTClient(cfg.Exchange.RestURL, cfg.Exchange.APIKey, cfg.Exchange.APISecret, 10*time.Second)
}

// ProvideEnsemble builds the model ensemble from configuration.
func ProvideEnsemble(lgr *logger.Logger, cfg *config.Config) (*ensemble.Ensemble, error) {
	var predictors []domsvc.Predictor
	for _, mc := range cfg.Ensemble.Models {
		if mc.Disabled {
			continue
		}
		switch mc.Kind {
		case ensemble.KindClassify:
			predictors = append(predictors, ensemble.NewClassifier(mc.Name, cfg.Ensemble.ServiceURL, cfg.Ensemble.Timeout))
		case ensemble.KindRegress:
			predictors = append(predictors, ensemble.NewRegressor(mc.Name, cfg.Ensemble.ServiceURL, mc.Scale, cfg.Ensemble.Timeout))
		default:
			return nil, fmt.Errorf("unknown model kind %q for %s", mc.Kind, mc.Name)
		}
	}
	return ensemble.New(lgr, predictors, cfg.Ensemble.MaxConcurrent), nil
}

// ProvideAdvisor creates the LLM advisor with caching and rate limiting.
func ProvideAdvisor(lgr *logger.Logger, c cache.Service, cfg *config.Config) domsvc.Advisor {
	return advisor.New(lgr, cfg.Advisor.URL, cfg.Advisor.APIKeyEnv, cfg.Advisor.Model, cfg.Advisor.Timeout,
		advisor.WithCache(c, cfg.Advisor.CacheTTL),
		advisor.WithRateLimit(cfg.Advisor.MaxPerMinute),
		advisor.WithSampling(cfg.Advisor.Temperature, cfg.Advisor.MaxTokens),
	)
}

// ProvideFuser creates the signal fuser with configured class weights.
func ProvideFuser(cfg *config.Config) *fusion.Fuser {
	weights := make(map[models.ProducerClass]float64, 3)
	for class, w := range cfg.FusionWeights() {
		weights[models.ProducerClass(class)] = w
	}
	return fusion.New(weights, cfg.Ensemble.MinQuorum)
}

// ProvideBook creates the shared position book.
func ProvideBook() *risk.Book {
	return risk.NewBook()
}

// ProvideRiskManager creates the risk manager from configured limits.
func ProvideRiskManager(lgr *logger.Logger, book *risk.Book, clock domsvc.Clock, cfg *config.Config) *risk.Manager {
	limits := risk.Limits{
		Equity:            decimal.NewFromFloat(cfg.Risk.Equity),
		RiskPct:           cfg.Risk.RiskPct / 100,
		StopATRMult:       cfg.Risk.StopATRMult,
		MaxSymbolNotional: decimal.NewFromFloat(cfg.Risk.MaxSymbolNotional),
		MaxTotalNotional:  decimal.NewFromFloat(cfg.Risk.MaxTotalNotional),
		MaxDrawdown:       cfg.Risk.MaxDrawdownPct / 100,
		MinConfidence:     cfg.Risk.MinConfidence,
		FlipCooldown:      cfg.Risk.FlipCooldown,
	}
	return risk.NewManager(lgr, limits, book, clock)
}

// ProvideBackoffPolicy returns the retry schedule shared by execution and
// stream recovery.
func ProvideBackoffPolicy(cfg *config.Config) backoff.Policy {
	return backoff.Policy{
		Min:    cfg.Execution.BackoffMin,
		Max:    cfg.Execution.BackoffMax,
		Factor: 2,
	}
}

// ProvideExecutionEngine creates the order execution engine.
func ProvideExecutionEngine(
	lgr *logger.Logger,
	exch domsvc.Exchange,
	book *risk.Book,
	store domrepo.Storage,
	m domrepo.Metrics,
	clock domsvc.Clock,
	policy backoff.Policy,
	cfg *config.Config,
) *execution.Engine {
	return execution.NewEngine(lgr, exch, book, store, m, clock, policy, cfg.Execution.RetryMax)
}

// ProvideOrderMonitor creates the fill poller feeding execution reports
// back into the engine and the position book.
func ProvideOrderMonitor(
	lgr *logger.Logger,
	engine *execution.Engine,
	exch domsvc.Exchange,
	clock domsvc.Clock,
	cfg *config.Config,
) *execution.Monitor {
	return execution.NewMonitor(lgr, engine, exch, clock,
		cfg.Execution.FillPollInterval, cfg.Exchange.Symbols)
}

// ProvideGuard creates the market shock guard.
func ProvideGuard(lgr *logger.Logger, clock domsvc.Clock, cfg *config.Config) *guard.Guard {
	gc := guard.DefaultConfig()
	if cfg.Guard.ReturnZ > 0 {
		gc.VolatilityThreshold = cfg.Guard.ReturnZ
	}
	if cfg.Guard.VolumeZ > 0 {
		gc.VolumeThreshold = cfg.Guard.VolumeZ
	}
	if cfg.Guard.MaxAlertsPerDay > 0 {
		gc.MaxAlertsPerDay = cfg.Guard.MaxAlertsPerDay
	}
	if cfg.Guard.AlertCooldown > 0 {
		gc.AlertCooldown = cfg.Guard.AlertCooldown
	}
	return guard.New(lgr, gc, clock)
}

// ProvideNotifier creates the operator event dispatcher. Without Redis or
// with notifications disabled it degrades to a no-op.
func ProvideNotifier(lgr *logger.Logger, client *redis.Client, clock domsvc.Clock, cfg *config.Config) domsvc.Notifier {
	if !cfg.Notify.Enabled || client == nil {
		return notify.Nop()
	}
	publisher := queue.NewRedisPublisher(lgr, client, queue.WithKeyPrefix(cfg.Notify.QueueName))
	return notify.NewDispatcher(lgr, publisher, clock, cfg.Notify.Cooldown)
}

// ProvideNotifyConsumer creates the queue consumer delivering events to
// Telegram, or nil when notifications are disabled.
func ProvideNotifyConsumer(lgr *logger.Logger, client *redis.Client, cfg *config.Config) *queue.RedisQueue {
	if !cfg.Notify.Enabled || client == nil {
		return nil
	}
	tg := notify.NewTelegramClient(cfg.Notify.BotTokenEnv, cfg.Notify.ChatIDs, 10*time.Second)
	jobs := []queue.Job{notify.NewSendJob(lgr, tg)}
	qc := &queue.Config{Workers: cfg.Notify.QueueWorkers, RetryLimit: 3, RetryDelay: 10 * time.Second}
	return queue.NewRedisConsumer(lgr, qc, client, jobs, queue.WithKeyPrefix(cfg.Notify.QueueName))
}

// ProvideIndicatorEngine creates the indicator engine from configured
// parameters, falling back to the default set where unset.
func ProvideIndicatorEngine(cfg *config.Config) *indicator.Engine {
	set := indicator.DefaultSet()
	if len(cfg.Indicators.SMAWindows) > 0 {
		set.SMAWindows = cfg.Indicators.SMAWindows
	}
	if cfg.Indicators.EMAWindow > 0 {
		set.EMAWindow = cfg.Indicators.EMAWindow
	}
	if cfg.Indicators.RSIPeriod > 0 {
		set.RSIPeriod = cfg.Indicators.RSIPeriod
	}
	if cfg.Indicators.BBWindow > 0 {
		set.BBWindow = cfg.Indicators.BBWindow
	}
	if cfg.Indicators.BBStdDev > 0 {
		set.BBStdDev = cfg.Indicators.BBStdDev
	}
	if cfg.Indicators.ATRPeriod > 0 {
		set.ATRPeriod = cfg.Indicators.ATRPeriod
	}
	return indicator.NewEngine(set)
}

// ProvidePipeline wires the evaluation pipeline.
func ProvidePipeline(
	lgr *logger.Logger,
	indicators *indicator.Engine,
	ens *ensemble.Ensemble,
	adv domsvc.Advisor,
	fuser *fusion.Fuser,
	riskMgr *risk.Manager,
	exec *execution.Engine,
	builder *marketdata.Builder,
	publisher domrepo.Publisher,
	store domrepo.Storage,
	m domrepo.Metrics,
	notifier domsvc.Notifier,
	clock domsvc.Clock,
	cfg *config.Config,
) *usecase.Pipeline {
	return usecase.NewPipeline(lgr, indicators, ens, adv, fuser, riskMgr, exec, builder, publisher, store, m, notifier, clock,
		usecase.PipelineParams{
			Timeframe:     domrepo.NormalizeTimeframe(cfg.Pipeline.Timeframe),
			Lookback:      cfg.Pipeline.Lookback,
			ATRPeriod:     cfg.Indicators.ATRPeriod,
			StaleDriftPct: cfg.Pipeline.StaleDriftPct,
		})
}

// ProvideController creates the run-state controller.
func ProvideController(
	lgr *logger.Logger,
	pipeline *usecase.Pipeline,
	exec *execution.Engine,
	book *risk.Book,
	g *guard.Guard,
	notifier domsvc.Notifier,
	cfg *config.Config,
) *usecase.Controller {
	return usecase.NewController(lgr, pipeline, exec, book, g, notifier, cfg.Guard.ConsecutiveFails)
}

// ProvideCollector creates the tick collector. Each closed candle triggers
// an evaluation cycle, and every tick feeds the stale-cycle watchdog.
func ProvideCollector(
	lgr *logger.Logger,
	stream domrepo.MarketStream,
	exch domsvc.Exchange,
	builder *marketdata.Builder,
	publisher domrepo.Publisher,
	store domrepo.Storage,
	m domrepo.Metrics,
	notifier domsvc.Notifier,
	clock domsvc.Clock,
	policy backoff.Policy,
	controller *usecase.Controller,
	pipeline *usecase.Pipeline,
	cfg *config.Config,
) *usecase.TickCollector {
	onCandle := func(symbol string) {
		go controller.EvaluateSymbol(context.Background(), symbol)
	}
	params := usecase.CollectorParams{
		Symbols:       cfg.Exchange.Symbols,
		TF:            domrepo.NormalizeTimeframe(cfg.Pipeline.Timeframe),
		TroubleAfter:  cfg.Guard.FeedDownRetries,
		MaxReconnects: cfg.Exchange.MaxReconnects,
	}
	collector := usecase.NewTickCollector(lgr, stream, exch, builder, publisher, store, m, notifier, clock, policy,
		params, onCandle)
	collector.SetTickObserver(pipeline.ObserveTick)
	return collector
}

// ProvideHandler creates the operator HTTP API handler.
func ProvideHandler(
	lgr *logger.Logger,
	controller *usecase.Controller,
	collector *usecase.TickCollector,
	store domrepo.Storage,
	builder *marketdata.Builder,
	book *risk.Book,
) xhttp.Handler {
	return api.NewEngineHandler(lgr, controller, collector, store, builder, book)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	lgr *logger.Logger,
	collector *usecase.TickCollector,
	controller *usecase.Controller,
	builder *marketdata.Builder,
	store *internalrepo.ClickHouseStorage,
	publisher domrepo.Publisher,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaTicksHandler,
	notifyConsumer *queue.RedisQueue,
	chClient *pkgch.Client,
	monitor *execution.Monitor,
	handler xhttp.Handler,
) *server.App {
	return server.New(cfg, lgr, collector, controller, builder, store, publisher, consumer, kh, notifyConsumer, chClient, monitor, handler)
}
