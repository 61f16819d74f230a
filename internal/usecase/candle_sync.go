package usecase

import (
	"context"
	"fmt"
	"time"

	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/pkg/logger"
)

// CandleSyncConfig selects what is copied on each pass.
type CandleSyncConfig struct {
	Timeframes []domrepo.Timeframe
	Limit      int
	Interval   time.Duration
}

// CandleSync copies recent exchange candles into the persistent store that
// backs the analyzers.
type CandleSync struct {
	source   domrepo.MarketData
	store    domrepo.CandleStore
	universe InstrumentLister
	cfg      CandleSyncConfig
	metrics  domrepo.Metrics
	log      *logger.Logger
}

func NewCandleSync(source domrepo.MarketData, store domrepo.CandleStore, universe InstrumentLister, cfg CandleSyncConfig, m domrepo.Metrics, l *logger.Logger) *CandleSync {
	if len(cfg.Timeframes) == 0 {
		cfg.Timeframes = []domrepo.Timeframe{domrepo.TF15m, domrepo.TF1h, domrepo.TF4h}
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 200
	}
	if cfg.Limit > 1500 {
		cfg.Limit = 1500
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &CandleSync{source: source, store: store, universe: universe, cfg: cfg, metrics: orNop(m), log: l}
}

// SyncResult counts stored candles per pass.
type SyncResult struct {
	Symbols int
	Stored  int
	Failed  int
}

// SyncSymbol copies every configured timeframe of one symbol.
func (s *CandleSync) SyncSymbol(ctx context.Context, symbol string) (int, error) {
	if symbol == "" {
		return 0, fmt.Errorf("symbol required")
	}
	stored := 0
	for _, tf := range s.cfg.Timeframes {
		candles, err := s.source.Candles(ctx, symbol, tf, s.cfg.Limit)
		if err != nil {
			return stored, fmt.Errorf("fetch %s %s: %w", symbol, tf, err)
		}
		if len(candles) == 0 {
			continue
		}
		if err := s.store.StoreCandles(ctx, symbol, tf, candles); err != nil {
			return stored, fmt.Errorf("store %s %s: %w", symbol, tf, err)
		}
		stored += len(candles)
	}
	return stored, nil
}

// SyncOnce copies candles for the whole universe.
func (s *CandleSync) SyncOnce(ctx context.Context) (*SyncResult, error) {
	start := time.Now()
	symbols, err := s.universe.Instruments(ctx)
	if err != nil {
		return nil, err
	}
	res := &SyncResult{Symbols: len(symbols)}
	for _, sym := range symbols {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		n, err := s.SyncSymbol(ctx, sym)
		res.Stored += n
		if err != nil {
			res.Failed++
			s.metrics.RecordError("candle_sync")
			s.log.Warn("candle sync failed", logger.String("symbol", sym), logger.Error(err))
		}
	}
	s.metrics.RecordLatency("candle_sync", time.Since(start).Seconds())
	return res, nil
}

// Run syncs immediately and then every Interval until ctx is done.
func (s *CandleSync) Run(ctx context.Context) error {
	for {
		res, err := s.SyncOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			s.log.Error("candle sync pass failed", logger.Error(err))
		} else {
			s.log.Info("candle sync pass done",
				logger.Int("symbols", res.Symbols),
				logger.Int("stored", res.Stored),
				logger.Int("failed", res.Failed))
		}
		if sleepCtx(ctx, s.cfg.Interval) != nil {
			return nil
		}
	}
}
