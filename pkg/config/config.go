package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Log         struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
		// Errors are aggregated and published to kafka.log_topic when enabled.
		Collect         bool          `yaml:"collect"`
		CollectInterval time.Duration `yaml:"collect_interval" default:"30s"`
		CollectMax      int           `yaml:"collect_max" default:"100"`
	} `yaml:"log"`
	Server struct {
		Enabled         bool          `yaml:"enabled" default:"true"`
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowThreshold   time.Duration `yaml:"slow_threshold" default:"2s"`
		CORSOrigins     []string      `yaml:"cors_origins"`
		RateLimit       struct {
			Capacity int     `yaml:"capacity" default:"30"`
			Refill   float64 `yaml:"refill_per_sec" default:"1"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Binance struct {
		APIKey    string        `yaml:"api_key"`
		SecretKey string        `yaml:"secret_key"`
		BaseURL   string        `yaml:"base_url" default:"https://fapi.binance.com"`
		Timeout   time.Duration `yaml:"timeout" default:"10s"`
		RateLimit struct {
			// Requests per second sustained, burst up to Capacity.
			Capacity int     `yaml:"capacity" default:"20"`
			Refill   float64 `yaml:"refill_per_sec" default:"20"`
		} `yaml:"rate_limit"`
		Stream struct {
			Enabled        bool          `yaml:"enabled"`
			URL            string        `yaml:"url" default:"wss://fstream.binance.com/ws/!miniTicker@arr"`
			ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
			PriceMaxAge    time.Duration `yaml:"price_max_age" default:"10s"`
		} `yaml:"stream"`
		CandleCacheTTL time.Duration `yaml:"candle_cache_ttl" default:"30s"`
	} `yaml:"binance"`
	MarketData struct {
		// binance or clickhouse
		CandlesSource string `yaml:"candles_source" default:"binance"`
		// Binance candles are copied into clickhouse on this schedule when
		// candles_source is clickhouse.
		SyncInterval   time.Duration `yaml:"sync_interval" default:"5m"`
		SyncCandles    int           `yaml:"sync_candles" default:"200"`
		SyncTimeframes []string      `yaml:"sync_timeframes" default:"[\"15m\",\"1h\",\"4h\"]"`
		Table          string        `yaml:"table" default:"finsignal.candles"`
	} `yaml:"market_data"`
	Strategy struct {
		TimeframeLong          string  `yaml:"timeframe_long" default:"4h"`
		TimeframeMedium        string  `yaml:"timeframe_medium" default:"1h"`
		TimeframeShort         string  `yaml:"timeframe_short" default:"15m"`
		MinCandlesConfirmation int     `yaml:"min_candles_confirmation" default:"3"`
		MinConfidence          int     `yaml:"min_confidence" default:"70"`
		TakeProfitPct          float64 `yaml:"take_profit_pct" default:"10"`
		StopLossPct            float64 `yaml:"stop_loss_pct" default:"5"`
		SpikeThreshold         float64 `yaml:"spike_threshold" default:"3"`
	} `yaml:"strategy"`
	Scanner struct {
		Enabled        bool          `yaml:"enabled" default:"true"`
		Interval       time.Duration `yaml:"interval" default:"60s"`
		RetryBackoff   time.Duration `yaml:"retry_backoff" default:"10s"`
		MinVolume24h   float64       `yaml:"min_volume_24h" default:"5000000"`
		MaxInstruments int           `yaml:"max_instruments" default:"600"`
		Workers        int           `yaml:"workers" default:"1"`
		CallTimeout    time.Duration `yaml:"call_timeout" default:"15s"`
		EmitPause      time.Duration `yaml:"emit_pause" default:"1s"`
		Symbols        []string      `yaml:"symbols"`
	} `yaml:"scanner"`
	Tracker struct {
		// memory, redis, sqlite or postgres
		Backend  string        `yaml:"backend" default:"memory"`
		Cooldown time.Duration `yaml:"cooldown" default:"2h"`
		LockTTL  time.Duration `yaml:"lock_ttl" default:"30s"`
		DSN      string        `yaml:"dsn" default:"signals.db"`
	} `yaml:"tracker"`
	Redis struct {
		Addr      string `yaml:"addr" default:"localhost:6379"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		KeyPrefix string `yaml:"key_prefix" default:"finsignal"`
	} `yaml:"redis"`
	Telegram struct {
		BotToken string        `yaml:"bot_token"`
		ChatID   string        `yaml:"chat_id"`
		APIURL   string        `yaml:"api_url" default:"https://api.telegram.org"`
		Timeout  time.Duration `yaml:"timeout" default:"10s"`
	} `yaml:"telegram"`
	Notify struct {
		// Publish emitted signals to kafka.signal_topic.
		Kafka bool `yaml:"kafka"`
		// Deliver notifications through the redis job queue.
		Async      bool          `yaml:"async"`
		QueueName  string        `yaml:"queue_name" default:"signal-notifications"`
		MaxRetries int           `yaml:"max_retries" default:"3"`
		Workers    int           `yaml:"workers" default:"2"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"10s"`
	} `yaml:"notify"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		SignalTopic  string   `yaml:"signal_topic" default:"crypto.signals"`
		RequestTopic string   `yaml:"request_topic" default:"crypto.signal-requests"`
		LogTopic     string   `yaml:"log_topic" default:"finsignal.logs"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"finsignal"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"100"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"default"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
}

// Default returns a configuration with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Parse decodes YAML on top of the defaults without validating.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	c, err := Parse(b)
	if err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// LoadWithEnv loads the .env file (if any), the YAML file, applies
// environment overrides and validates the result.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	c, err := Parse(b)
	if err != nil {
		return nil, err
	}

	if err := c.ApplyEnv(os.Getenv); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// ApplyEnv overrides fields from environment variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("BINANCE_API_KEY"); v != "" {
		c.Binance.APIKey = v
	}
	if v := getenv("BINANCE_SECRET_KEY"); v != "" {
		c.Binance.SecretKey = v
	}
	if v := getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := getenv("TIMEFRAME_LONG"); v != "" {
		c.Strategy.TimeframeLong = v
	}
	if v := getenv("TIMEFRAME_MEDIUM"); v != "" {
		c.Strategy.TimeframeMedium = v
	}
	if v := getenv("TIMEFRAME_SHORT"); v != "" {
		c.Strategy.TimeframeShort = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := getenv("TRACKER_BACKEND"); v != "" {
		c.Tracker.Backend = v
	}
	if v := getenv("SYMBOLS"); v != "" {
		c.Scanner.Symbols = strings.Split(v, ",")
	}

	if v := getenv("MIN_VOLUME_24H"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("MIN_VOLUME_24H: %w", err)
		}
		c.Scanner.MinVolume24h = f
	}
	if v := getenv("MAX_CRYPTOS_TO_MONITOR"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_CRYPTOS_TO_MONITOR: %w", err)
		}
		c.Scanner.MaxInstruments = n
	}
	if v := getenv("SCAN_INTERVAL_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SCAN_INTERVAL_SECONDS: %w", err)
		}
		c.Scanner.Interval = time.Duration(n) * time.Second
	}
	if v := getenv("MIN_CANDLES_CONFIRMATION"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MIN_CANDLES_CONFIRMATION: %w", err)
		}
		c.Strategy.MinCandlesConfirmation = n
	}
	if v := getenv("SIGNAL_COOLDOWN_HOURS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SIGNAL_COOLDOWN_HOURS: %w", err)
		}
		c.Tracker.Cooldown = time.Duration(f * float64(time.Hour))
	}
	if v := getenv("TP_PERCENTAGE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("TP_PERCENTAGE: %w", err)
		}
		c.Strategy.TakeProfitPct = f
	}
	if v := getenv("SL_PERCENTAGE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SL_PERCENTAGE: %w", err)
		}
		c.Strategy.StopLossPct = f
	}

	return nil
}

// TelegramEnabled reports whether both bot token and chat id are set.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

var validTimeframes = map[string]bool{
	"1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "12h": true, "1d": true,
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Binance.APIKey == "" || c.Binance.SecretKey == "" {
		return fmt.Errorf("binance api_key and secret_key are required (BINANCE_API_KEY, BINANCE_SECRET_KEY)")
	}
	for name, tf := range map[string]string{
		"strategy.timeframe_long":   c.Strategy.TimeframeLong,
		"strategy.timeframe_medium": c.Strategy.TimeframeMedium,
		"strategy.timeframe_short":  c.Strategy.TimeframeShort,
	} {
		if !validTimeframes[tf] {
			return fmt.Errorf("%s: unsupported timeframe '%s'", name, tf)
		}
	}
	if c.Strategy.MinCandlesConfirmation < 1 || c.Strategy.MinCandlesConfirmation > 6 {
		return fmt.Errorf("strategy.min_candles_confirmation must be in [1,6], got %d", c.Strategy.MinCandlesConfirmation)
	}
	if c.Strategy.MinConfidence < 0 || c.Strategy.MinConfidence > 95 {
		return fmt.Errorf("strategy.min_confidence must be in [0,95], got %d", c.Strategy.MinConfidence)
	}
	if c.Strategy.TakeProfitPct <= 0 || c.Strategy.TakeProfitPct >= 100 {
		return fmt.Errorf("strategy.take_profit_pct must be in (0,100)")
	}
	if c.Strategy.StopLossPct <= 0 || c.Strategy.StopLossPct >= 100 {
		return fmt.Errorf("strategy.stop_loss_pct must be in (0,100)")
	}
	if c.Scanner.Interval <= 0 {
		return fmt.Errorf("scanner.interval must be positive")
	}
	if c.Scanner.MaxInstruments <= 0 {
		return fmt.Errorf("scanner.max_instruments must be positive")
	}
	if c.Scanner.Workers <= 0 {
		return fmt.Errorf("scanner.workers must be positive")
	}
	if c.Tracker.Cooldown < 0 {
		return fmt.Errorf("tracker.cooldown cannot be negative")
	}
	switch c.Tracker.Backend {
	case "memory", "redis", "sqlite", "postgres":
	default:
		return fmt.Errorf("tracker.backend must be one of memory, redis, sqlite, postgres, got '%s'", c.Tracker.Backend)
	}
	switch c.MarketData.CandlesSource {
	case "binance", "clickhouse":
	default:
		return fmt.Errorf("market_data.candles_source must be 'binance' or 'clickhouse', got '%s'", c.MarketData.CandlesSource)
	}
	if c.MarketData.CandlesSource == "clickhouse" {
		if c.MarketData.SyncInterval <= 0 || c.MarketData.SyncCandles <= 0 {
			return fmt.Errorf("market_data.sync_interval and sync_candles must be positive")
		}
		for _, tf := range c.MarketData.SyncTimeframes {
			if !validTimeframes[tf] {
				return fmt.Errorf("market_data.sync_timeframes: unsupported timeframe '%s'", tf)
			}
		}
	}
	needKafka := c.Notify.Kafka || c.Kafka.Consumer.Enabled || c.Log.Collect
	if needKafka && (!c.Kafka.Enabled || len(c.Kafka.Brokers) == 0) {
		return fmt.Errorf("kafka.enabled with brokers is required by notify.kafka, kafka.consumer or log.collect")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram bot_token and chat_id must be set together")
	}
	return nil
}
