//go:build wireinject
// +build wireinject

package di

import (
	"ProTrdx/pkg/config"
	"ProTrdx/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,
		ProvideRedisCache,
		ProvideStore,
		ProvideCache,
		ProvideClickHouseClient,

		// Providers behind domain interfaces
		ProvideMarketData,
		ProvideNewsFactory,
		ProvideDecider,
		ProvideNotifier,
		ProvideChartStore,
		ProvideResultArchive,
		ProvideHub,
		ProvideJobEvents,

		// Use cases
		ProvideQueue,
		ProvideSettingsService,
		ProvideWatchlistService,
		ProvidePipeline,
		ProvideRunner,
		ProvideJobs,
		ProvideScheduler,
		ProvideKafkaRunHandler,

		// Transport
		ProvideRunLimiter,
		ProvideAPIHandler,
		ProvideHealth,
		ProvideHTTPServer,
		ProvideKafkaConsumer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
