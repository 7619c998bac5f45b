//go:build wireinject
// +build wireinject

package di

import (
	domrepo "TradeFuse/internal/domain/repository"
	internalrepo "TradeFuse/internal/repository"
	"TradeFuse/pkg/config"
	"TradeFuse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideClock,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideRedisClient,
		ProvideCache,

		// Repositories
		ProvideStorage,
		wire.Bind(new(domrepo.Storage), new(*internalrepo.ClickHouseStorage)),
		ProvidePublisher,
		ProvideStream,

		// Engine components
		ProvideBuilder,
		ProvideIndicatorEngine,
		ProvideEnsemble,
		ProvideAdvisor,
		ProvideFuser,
		ProvideBook,
		ProvideRiskManager,
		ProvideBackoffPolicy,
		ProvideExchange,
		ProvideExecutionEngine,
		ProvideOrderMonitor,
		ProvideGuard,
		ProvideNotifier,
		ProvideNotifyConsumer,

		// Use cases
		ProvidePipeline,
		ProvideController,
		ProvideCollector,
		ProvideTicksHandler,

		// HTTP and application server
		ProvideHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
