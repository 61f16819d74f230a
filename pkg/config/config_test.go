package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaultsApplied(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Strategy.TimeframeLong != "4h" || c.Strategy.TimeframeMedium != "1h" || c.Strategy.TimeframeShort != "15m" {
		t.Fatalf("unexpected timeframes %+v", c.Strategy)
	}
	if c.Strategy.TakeProfitPct != 10 || c.Strategy.StopLossPct != 5 {
		t.Fatalf("unexpected tp/sl %v/%v", c.Strategy.TakeProfitPct, c.Strategy.StopLossPct)
	}
	if c.Tracker.Cooldown != 2*time.Hour {
		t.Fatalf("unexpected cooldown %v", c.Tracker.Cooldown)
	}
	if c.Scanner.Interval != time.Minute || c.Scanner.RetryBackoff != 10*time.Second {
		t.Fatalf("unexpected scanner timings %v %v", c.Scanner.Interval, c.Scanner.RetryBackoff)
	}
	if c.Scanner.MinVolume24h != 5_000_000 || c.Scanner.MaxInstruments != 600 {
		t.Fatalf("unexpected universe limits %v %v", c.Scanner.MinVolume24h, c.Scanner.MaxInstruments)
	}
	if c.Strategy.MinCandlesConfirmation != 3 || c.Strategy.MinConfidence != 70 {
		t.Fatalf("unexpected strategy thresholds %+v", c.Strategy)
	}
}

func TestValidateRequiresBinanceKeys(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "binance") {
		t.Fatalf("expected binance key error, got %v", err)
	}

	c.Binance.APIKey = "k"
	c.Binance.SecretKey = "s"
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(c *Config){
		"tracker backend": func(c *Config) { c.Tracker.Backend = "file" },
		"timeframe":       func(c *Config) { c.Strategy.TimeframeShort = "7m" },
		"stop loss":       func(c *Config) { c.Strategy.StopLossPct = 0 },
		"take profit":     func(c *Config) { c.Strategy.TakeProfitPct = 100 },
		"confirmation":    func(c *Config) { c.Strategy.MinCandlesConfirmation = 7 },
		"telegram pair":   func(c *Config) { c.Telegram.BotToken = "token" },
		"kafka notify":    func(c *Config) { c.Notify.Kafka = true },
		"candles source":  func(c *Config) { c.MarketData.CandlesSource = "csv" },
	}
	for name, mutate := range cases {
		c, err := Parse([]byte("environment: test\nbinance:\n  api_key: k\n  secret_key: s\n"))
		if err != nil {
			t.Fatalf("%s: parse: %v", name, err)
		}
		mutate(c)
		if err := c.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	err = c.ApplyEnv(envMap(map[string]string{
		"BINANCE_API_KEY":        "key",
		"BINANCE_SECRET_KEY":     "secret",
		"TELEGRAM_BOT_TOKEN":     "bot",
		"TELEGRAM_CHAT_ID":       "42",
		"MIN_VOLUME_24H":         "1000000",
		"MAX_CRYPTOS_TO_MONITOR": "25",
		"SCAN_INTERVAL_SECONDS":  "30",
		"SIGNAL_COOLDOWN_HOURS":  "1.5",
		"TP_PERCENTAGE":          "8",
		"SL_PERCENTAGE":          "4",
		"TIMEFRAME_SHORT":        "5m",
	}))
	if err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if c.Binance.APIKey != "key" || c.Binance.SecretKey != "secret" {
		t.Fatalf("binance keys not applied")
	}
	if !c.TelegramEnabled() {
		t.Fatalf("expected telegram enabled")
	}
	if c.Scanner.MinVolume24h != 1_000_000 || c.Scanner.MaxInstruments != 25 {
		t.Fatalf("universe overrides not applied: %v %v", c.Scanner.MinVolume24h, c.Scanner.MaxInstruments)
	}
	if c.Scanner.Interval != 30*time.Second {
		t.Fatalf("unexpected interval %v", c.Scanner.Interval)
	}
	if c.Tracker.Cooldown != 90*time.Minute {
		t.Fatalf("unexpected cooldown %v", c.Tracker.Cooldown)
	}
	if c.Strategy.TakeProfitPct != 8 || c.Strategy.StopLossPct != 4 || c.Strategy.TimeframeShort != "5m" {
		t.Fatalf("strategy overrides not applied: %+v", c.Strategy)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestApplyEnvRejectsGarbage(t *testing.T) {
	c, _ := Parse([]byte("environment: test\n"))
	if err := c.ApplyEnv(envMap(map[string]string{"TP_PERCENTAGE": "ten"})); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "environment: test\nbinance:\n  api_key: k\n  secret_key: s\nscanner:\n  workers: 8\n  symbols: [BTCUSDT, ETHUSDT]\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Scanner.Workers != 8 || len(c.Scanner.Symbols) != 2 {
		t.Fatalf("unexpected scanner section %+v", c.Scanner)
	}
	if c.Scanner.Interval != time.Minute {
		t.Fatalf("defaults lost after yaml decode: %v", c.Scanner.Interval)
	}
}
