package repository

import (
	"context"
	"time"

	"FinSignal/internal/domain/models"
)

// MarketData serves candles, prices and the tradable universe.
type MarketData interface {
	Candles(ctx context.Context, symbol string, tf Timeframe, limit int) ([]models.Candle, error)
	Price(ctx context.Context, symbol string) (float64, error)
}

// InstrumentSource enumerates tradable instruments and their 24h quote volume.
type InstrumentSource interface {
	Instruments(ctx context.Context) ([]string, error)
	QuoteVolumes(ctx context.Context) (map[string]float64, error)
}

// DerivativesData serves futures positioning metrics. Each call may fail
// independently; models.ErrUnavailable marks restricted data.
type DerivativesData interface {
	FundingRate(ctx context.Context, symbol string) (float64, error)
	OpenInterest(ctx context.Context, symbol string) (float64, error)
	OpenInterestHistory(ctx context.Context, symbol, period string, limit int) ([]float64, error)
	TopLongShortAccountRatio(ctx context.Context, symbol, period string) (ratio, longAccount, shortAccount float64, err error)
}

// CandleStore is a persistent candle source.
type CandleStore interface {
	MarketData
	StoreCandles(ctx context.Context, symbol string, tf Timeframe, candles []models.Candle) error
}

// MarketStream delivers live tickers.
type MarketStream interface {
	Connect(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Ticker, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// CooldownStore persists one record per instrument.
type CooldownStore interface {
	// Get returns models.ErrNoRecord for unseen instruments.
	Get(ctx context.Context, symbol string) (*models.CooldownRecord, error)
	Put(ctx context.Context, rec *models.CooldownRecord) error
	List(ctx context.Context) ([]*models.CooldownRecord, error)
	// Lock serialises check-then-record per instrument. ok is false when
	// another holder owns the lock.
	Lock(ctx context.Context, symbol string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// SignalPublisher forwards delivered signals to downstream consumers.
type SignalPublisher interface {
	PublishSignal(ctx context.Context, ev *models.SignalEvent) error
	Close() error
}

// Metrics records operational counters. Labels are plain strings so the
// prometheus recorder in pkg/metrics needs no domain imports.
type Metrics interface {
	RecordSignal(symbol, side string, confidence int)
	RecordNotification(channel string, ok bool)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordCycle(instruments, signals int)
}
