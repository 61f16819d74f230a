//go:build wireinject
// +build wireinject

package di

import (
	"FinSignal/pkg/config"
	"FinSignal/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application
// with a cleanup that releases connections in reverse order.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,
		ProvideHTTPClient,
		ProvideRateLimiter,

		// Infrastructure clients
		ProvideRedis,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Market data
		ProvideBinanceMarket,
		ProvideCandleStore,
		ProvideLivePrices,
		ProvideMarketData,
		ProvidePriceCollector,
		ProvideUniverse,
		ProvideCandleSync,

		// Analyzers
		ProvidePatterns,
		ProvideTrend,
		ProvideVolume,
		ProvideDerivatives,
		ProvideEngine,
		ProvideEvaluator,

		// Delivery
		ProvideCooldownStore,
		ProvideTracker,
		ProvideFormatter,
		ProvideDeliveryChain,
		ProvideNotifyQueue,
		ProvideNotifier,
		ProvideKafkaPublisher,
		ProvideSignalPublisher,
		ProvideEmitter,

		// Use cases and transports
		ProvideScanner,
		ProvideKafkaConsumer,
		ProvideSignalsHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
