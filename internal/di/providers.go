package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"

	domrepo "FinSignal/internal/domain/repository"
	domsvc "FinSignal/internal/domain/service"
	"FinSignal/internal/handler/api"
	mid "FinSignal/internal/middleware"
	internalrepo "FinSignal/internal/repository"
	"FinSignal/internal/service/binancews"
	icache "FinSignal/internal/service/cache"
	svcmetrics "FinSignal/internal/service/metrics"
	"FinSignal/internal/service/notify"
	"FinSignal/internal/service/ratelimit"
	"FinSignal/internal/services/derivatives"
	"FinSignal/internal/services/engine"
	"FinSignal/internal/services/message"
	"FinSignal/internal/services/patterns"
	"FinSignal/internal/services/trend"
	"FinSignal/internal/services/volume"
	"FinSignal/internal/usecase"
	pkgcache "FinSignal/pkg/cache"
	pkgch "FinSignal/pkg/clickhouse"
	"FinSignal/pkg/config"
	pkghttp "FinSignal/pkg/http"
	pkgkafka "FinSignal/pkg/kafka"
	"FinSignal/pkg/logger"
	"FinSignal/pkg/metrics"
	"FinSignal/pkg/queue"
	"FinSignal/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	svcmetrics.Register()
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideHTTPClient creates the REST client shared by exchange adapters.
func ProvideHTTPClient(cfg *config.Config) *pkghttp.Client {
	return pkghttp.NewClient(pkghttp.WithTimeout(cfg.Binance.Timeout))
}

func ProvideRateLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

// ProvideBinanceMarket creates the futures REST adapter.
func ProvideBinanceMarket(cfg *config.Config, client *pkghttp.Client, limiter *ratelimit.Limiter, m domrepo.Metrics, l *logger.Logger) *internalrepo.BinanceMarket {
	return internalrepo.NewBinanceMarket(internalrepo.BinanceConfig{
		BaseURL:    cfg.Binance.BaseURL,
		APIKey:     cfg.Binance.APIKey,
		RateBurst:  float64(cfg.Binance.RateLimit.Capacity),
		RateRefill: cfg.Binance.RateLimit.Refill,
	}, client, limiter, m, l.With(logger.String("component", "binance")))
}

// ProvideRedis connects to redis when a component needs it, nil otherwise.
func ProvideRedis(cfg *config.Config) (*pkgcache.RedisCache, func(), error) {
	if cfg.Tracker.Backend != "redis" && !cfg.Notify.Async {
		return nil, func() {}, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(cfg.Redis.Addr),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Redis.KeyPrefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideClickHouseClient connects and creates the candle table when
// candles are read from clickhouse, nil otherwise.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if cfg.MarketData.CandlesSource != "clickhouse" {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.CandleSchema); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideCandleStore wraps the clickhouse client, nil when it is disabled.
func ProvideCandleStore(cfg *config.Config, ch *pkgch.Client, binance *internalrepo.BinanceMarket, l *logger.Logger) *internalrepo.CHCandleStore {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHCandleStore(ch.DB(), cfg.MarketData.Table, binance, l.With(logger.String("component", "candle_store")))
}

// ProvideLivePrices layers streamed prices and the candle cache over the
// configured candle source.
func ProvideLivePrices(cfg *config.Config, binance *internalrepo.BinanceMarket, store *internalrepo.CHCandleStore) *usecase.LivePrices {
	var source domrepo.MarketData = binance
	if store != nil {
		source = store
	}
	return usecase.NewLivePrices(icache.NewCandleCache(source, cfg.Binance.CandleCacheTTL), cfg.Binance.Stream.PriceMaxAge)
}

func ProvideMarketData(live *usecase.LivePrices) domrepo.MarketData {
	return live
}

// ProvidePriceCollector builds the websocket to pipeline path, nil when the
// stream is disabled.
func ProvidePriceCollector(cfg *config.Config, live *usecase.LivePrices, m domrepo.Metrics, l *logger.Logger) *usecase.PriceCollector {
	if !cfg.Binance.Stream.Enabled {
		return nil
	}
	sl := l.With(logger.String("component", "price_stream"))
	stream := binancews.New(cfg.Binance.Stream.URL, cfg.Scanner.Symbols, cfg.Binance.Stream.ReconnectDelay, 0, sl)
	pipe := mid.NewTickerPipeline(live, m,
		mid.WithMaxRPS(4),
		mid.WithBufferSize(1000),
	)
	return usecase.NewPriceCollector(stream, pipe, m, sl)
}

func ProvideUniverse(cfg *config.Config, binance *internalrepo.BinanceMarket, l *logger.Logger) *usecase.Universe {
	return usecase.NewUniverse(binance, usecase.UniverseConfig{
		MinQuoteVolume: cfg.Scanner.MinVolume24h,
		Max:            cfg.Scanner.MaxInstruments,
		Symbols:        cfg.Scanner.Symbols,
	}, l)
}

// ProvideCandleSync copies exchange candles into clickhouse, nil when the
// store is disabled.
func ProvideCandleSync(cfg *config.Config, binance *internalrepo.BinanceMarket, store *internalrepo.CHCandleStore, universe *usecase.Universe, m domrepo.Metrics, l *logger.Logger) *usecase.CandleSync {
	if store == nil {
		return nil
	}
	tfs := make([]domrepo.Timeframe, 0, len(cfg.MarketData.SyncTimeframes))
	for _, tf := range cfg.MarketData.SyncTimeframes {
		tfs = append(tfs, domrepo.Timeframe(tf))
	}
	return usecase.NewCandleSync(binance, store, universe, usecase.CandleSyncConfig{
		Timeframes: tfs,
		Limit:      cfg.MarketData.SyncCandles,
		Interval:   cfg.MarketData.SyncInterval,
	}, m, l.With(logger.String("component", "candle_sync")))
}

func ProvidePatterns() *patterns.Recognizer {
	return patterns.NewRecognizer()
}

func ProvideTrend(cfg *config.Config, market domrepo.MarketData) *trend.Analyzer {
	return trend.NewAnalyzer(market, trend.Config{
		Long:            domrepo.Timeframe(cfg.Strategy.TimeframeLong),
		Medium:          domrepo.Timeframe(cfg.Strategy.TimeframeMedium),
		Short:           domrepo.Timeframe(cfg.Strategy.TimeframeShort),
		MinConfirmation: cfg.Strategy.MinCandlesConfirmation,
	})
}

func ProvideVolume(cfg *config.Config, market domrepo.MarketData) *volume.Detector {
	vc := volume.DefaultConfig()
	if cfg.Strategy.SpikeThreshold > 0 {
		vc.SpikeThreshold = cfg.Strategy.SpikeThreshold
	}
	return volume.NewDetector(market, vc)
}

func ProvideDerivatives(binance *internalrepo.BinanceMarket, l *logger.Logger) *derivatives.Analyzer {
	return derivatives.NewAnalyzer(binance, l.With(logger.String("component", "derivatives")))
}

func ProvideEngine(cfg *config.Config) *engine.Engine {
	return engine.New(engine.Config{
		MinConfidence: cfg.Strategy.MinConfidence,
		TakeProfitPct: cfg.Strategy.TakeProfitPct,
		StopLossPct:   cfg.Strategy.StopLossPct,
	})
}

// ProvideEvaluator fans the four lenses out per instrument.
func ProvideEvaluator(
	cfg *config.Config,
	market domrepo.MarketData,
	p *patterns.Recognizer,
	t *trend.Analyzer,
	d *derivatives.Analyzer,
	v *volume.Detector,
	eng *engine.Engine,
	m domrepo.Metrics,
	l *logger.Logger,
) *usecase.Evaluator {
	ec := usecase.DefaultEvaluatorConfig()
	ec.CallTimeout = cfg.Scanner.CallTimeout
	return usecase.NewEvaluator(market, p, t, d, v, eng, ec, m, l.With(logger.String("component", "evaluator")))
}

// ProvideCooldownStore selects the tracker backend.
func ProvideCooldownStore(cfg *config.Config, rc *pkgcache.RedisCache) (domrepo.CooldownStore, func(), error) {
	switch cfg.Tracker.Backend {
	case "redis":
		if rc == nil {
			return nil, nil, errors.New("tracker backend redis: redis is not connected")
		}
		return internalrepo.NewCacheCooldownStore(rc), func() {}, nil
	case "sqlite", "postgres":
		driver := "postgres"
		if cfg.Tracker.Backend == "sqlite" {
			driver = "sqlite3"
		}
		db, err := internalrepo.OpenCooldownDB(driver, cfg.Tracker.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("tracker db: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := internalrepo.NewSQLCooldownStore(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("tracker schema: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		store, mc := internalrepo.NewMemoryCooldownStore()
		return store, func() { _ = mc.Close() }, nil
	}
}

func ProvideTracker(cfg *config.Config, store domrepo.CooldownStore) *usecase.SignalTracker {
	return usecase.NewSignalTracker(store, cfg.Tracker.Cooldown, cfg.Tracker.LockTTL)
}

func ProvideFormatter(cfg *config.Config) *message.Formatter {
	return message.NewFormatter(cfg.Strategy.TakeProfitPct, cfg.Strategy.StopLossPct)
}

// ProvideDeliveryChain tries telegram first and falls back to the console.
func ProvideDeliveryChain(cfg *config.Config, m domrepo.Metrics, l *logger.Logger) *notify.Fallback {
	nl := l.With(logger.String("component", "notify"))
	var channels []domsvc.Notifier
	if cfg.TelegramEnabled() {
		channels = append(channels, notify.NewTelegram(notify.TelegramConfig{
			APIURL:   cfg.Telegram.APIURL,
			BotToken: cfg.Telegram.BotToken,
			ChatID:   cfg.Telegram.ChatID,
		}, pkghttp.NewClient(pkghttp.WithTimeout(cfg.Telegram.Timeout))))
	}
	channels = append(channels, notify.NewConsole(nil, nl))
	return notify.NewFallback(m, nl, channels...)
}

// ProvideNotifyQueue runs the delivery job on the redis queue when async
// delivery is enabled, nil otherwise.
func ProvideNotifyQueue(cfg *config.Config, rc *pkgcache.RedisCache, chain *notify.Fallback, l *logger.Logger) *queue.RedisQueue {
	if !cfg.Notify.Async || rc == nil {
		return nil
	}
	ql := l.With(logger.String("component", "notify_queue"))
	q := queue.NewRedisQueue(ql, &queue.QueueConfig{
		Workers:    cfg.Notify.Workers,
		RetryLimit: cfg.Notify.MaxRetries,
		RetryDelay: cfg.Notify.RetryDelay,
	}, rc.Client(), queue.ModeProducerConsumer,
		queue.WithKeyPrefix(cfg.Redis.KeyPrefix+":"+cfg.Notify.QueueName),
	)
	q.RegisterJob(notify.NewDeliveryJob(chain, ql))
	return q
}

func ProvideNotifier(chain *notify.Fallback, q *queue.RedisQueue) domsvc.Notifier {
	if q != nil {
		return notify.NewQueued(q)
	}
	return chain
}

// ProvideKafkaProducer creates a Kafka producer, nil when kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideKafkaPublisher wraps the producer, nil when kafka is disabled.
func ProvideKafkaPublisher(cfg *config.Config, producer *pkgkafka.Producer, l *logger.Logger) *internalrepo.KafkaPublisher {
	if producer == nil {
		return nil
	}
	pub := internalrepo.NewKafkaPublisher(producer, cfg.Kafka.SignalTopic)
	if cfg.Log.Collect {
		l.AddCollector(&logger.CollectionConfig{
			TimeInterval:   cfg.Log.CollectInterval,
			CountThreshold: cfg.Log.CollectMax,
			Topic:          cfg.Kafka.LogTopic,
			Publisher:      pub,
		})
	}
	return pub
}

// ProvideSignalPublisher exposes the kafka publisher to the emitter when
// notify.kafka is set.
func ProvideSignalPublisher(cfg *config.Config, pub *internalrepo.KafkaPublisher) domrepo.SignalPublisher {
	if pub == nil || !cfg.Notify.Kafka {
		return nil
	}
	return pub
}

func ProvideEmitter(
	cfg *config.Config,
	tracker *usecase.SignalTracker,
	formatter *message.Formatter,
	notifier domsvc.Notifier,
	publisher domrepo.SignalPublisher,
	m domrepo.Metrics,
	l *logger.Logger,
) *usecase.Emitter {
	return usecase.NewEmitter(tracker, formatter, notifier, publisher, cfg.Strategy.MinConfidence, m, l.With(logger.String("component", "emitter")))
}

func ProvideScanner(
	cfg *config.Config,
	universe *usecase.Universe,
	evaluator *usecase.Evaluator,
	emitter *usecase.Emitter,
	tracker *usecase.SignalTracker,
	m domrepo.Metrics,
	l *logger.Logger,
) *usecase.Scanner {
	return usecase.NewScanner(universe, evaluator, emitter, tracker, usecase.ScannerConfig{
		Interval:      cfg.Scanner.Interval,
		RetryBackoff:  cfg.Scanner.RetryBackoff,
		Workers:       cfg.Scanner.Workers,
		EmitPause:     cfg.Scanner.EmitPause,
		MinConfidence: cfg.Strategy.MinConfidence,
	}, m, l.With(logger.String("component", "scanner")))
}

// ProvideKafkaConsumer serves evaluation requests, nil unless
// kafka.consumer.enabled.
func ProvideKafkaConsumer(
	cfg *config.Config,
	evaluator *usecase.Evaluator,
	emitter *usecase.Emitter,
	m domrepo.Metrics,
	l *logger.Logger,
) (*pkgkafka.Consumer, func(), error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Consumer.Enabled {
		return nil, func() {}, nil
	}
	cl := l.With(logger.String("component", "kafka_consumer"))
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(cl),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewEvaluationRequestHandler(cfg.Kafka.RequestTopic, evaluator, emitter, m, cl))
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.TraceHook(),
		pkgkafka.HookFuncs{
			Err: func(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
				m.RecordError("kafka_consume")
			},
		},
	))
	return consumer, func() {}, nil
}

// ProvideSignalsHandler registers the query API. Responses are cached in
// redis when it is connected, in process otherwise.
func ProvideSignalsHandler(
	cfg *config.Config,
	evaluator *usecase.Evaluator,
	formatter *message.Formatter,
	market domrepo.MarketData,
	p *patterns.Recognizer,
	t *trend.Analyzer,
	v *volume.Detector,
	d *derivatives.Analyzer,
	tracker *usecase.SignalTracker,
	limiter *ratelimit.Limiter,
	rc *pkgcache.RedisCache,
	collector *usecase.PriceCollector,
	q *queue.RedisQueue,
	l *logger.Logger,
) *api.SignalsHandler {
	var respCache icache.BytesCache = icache.NewTTLCache()
	if rc != nil {
		respCache = icache.NewRedisCache(rc.Client(), cfg.Redis.KeyPrefix)
	}
	health := func() map[string]interface{} {
		out := map[string]interface{}{
			"tracker_backend": cfg.Tracker.Backend,
			"candles_source":  cfg.MarketData.CandlesSource,
		}
		if collector != nil {
			out["price_stream"] = collector.IsConnected()
		}
		if q != nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if pending, retrying, dead, err := q.Depth(ctx); err == nil {
				out["notify_queue"] = map[string]int64{"pending": pending, "retrying": retrying, "dead": dead}
			}
		}
		return out
	}
	return api.NewSignalsHandler(
		l.With(logger.String("component", "api")),
		evaluator, formatter, market, p, t, v, d, tracker,
		api.WithResponseCache(respCache, 15*time.Second),
		api.WithRateLimit(limiter, float64(cfg.Server.RateLimit.Capacity), cfg.Server.RateLimit.Refill),
		api.WithHealth(health),
	)
}

// ProvideHTTPServer creates the echo server, nil when it is disabled.
func ProvideHTTPServer(cfg *config.Config, h *api.SignalsHandler, l *logger.Logger) *pkghttp.Server {
	if !cfg.Server.Enabled {
		return nil
	}
	path := ""
	if cfg.Metrics.Enabled {
		path = cfg.Metrics.Path
	}
	return pkghttp.NewServer(h,
		pkghttp.WithHost(cfg.Server.Host),
		pkghttp.WithPort(cfg.Server.Port),
		pkghttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		pkghttp.WithMetricsPath(path),
		pkghttp.WithCORSOrigins(cfg.Server.CORSOrigins),
		pkghttp.WithSlowThreshold(cfg.Server.SlowThreshold),
		pkghttp.WithLogger(l.With(logger.String("component", "http"))),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	scanner *usecase.Scanner,
	collector *usecase.PriceCollector,
	sync *usecase.CandleSync,
	consumer *pkgkafka.Consumer,
	q *queue.RedisQueue,
	httpServer *pkghttp.Server,
) *server.App {
	return server.New(cfg, l, server.Components{
		Scanner:    scanner,
		Collector:  collector,
		CandleSync: sync,
		Consumer:   consumer,
		Queue:      q,
		HTTP:       httpServer,
	})
}
