//go:build wireinject
// +build wireinject

package di

import (
	"StockCast/pkg/config"
	"StockCast/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideRedisCache,
	ProvideCacheService,
	ProvideKeyLocker,
	ProvidePredictionCache,
	ProvideClickHouseClient,
	ProvidePriceHistory,
	ProvidePredictionLog,
	ProvideKafkaProducer,
	ProvideEventPublisher,
	ProvideArtifactStore,
	ProvideArtifactCatalog,
	ProvidePriceSource,
	ProvideRetryPolicy,
	ProvideTrainer,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		infraSet,

		ProvideCalendar,
		ProvidePredictor,
		ProvideRegistry,
		ProvideModelEvents,
		ProvideKafkaConsumer,
		ProvideTrainingHub,

		ProvideTrainingJobHandler,
		ProvideRedisQueue,
		ProvideLocalJobs,
		ProvideJobQueue,
		ProvideScheduler,

		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil, nil
}

// InitializeToolkit wires the trainers used by the command line tool.
func InitializeToolkit(cfg *config.Config) (*Toolkit, func(), error) {
	wire.Build(
		infraSet,
		ProvideRedisPublisher,
		ProvideBatchTrainer,
		ProvideToolkit,
	)
	return &Toolkit{}, nil, nil
}
