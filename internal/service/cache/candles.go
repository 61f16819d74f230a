package cache

import (
	"context"
	"fmt"
	"time"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
)

// CandleCache memoizes candle windows for a short TTL so analyzers that
// request the same window within one evaluation hit the exchange once.
// Prices pass through.
type CandleCache struct {
	next  repository.MarketData
	store *TTLCache
	ttl   time.Duration
}

var _ repository.MarketData = (*CandleCache)(nil)

func NewCandleCache(next repository.MarketData, ttl time.Duration) *CandleCache {
	return &CandleCache{next: next, store: NewTTLCache(), ttl: ttl}
}

func (c *CandleCache) Candles(ctx context.Context, symbol string, tf repository.Timeframe, limit int) ([]models.Candle, error) {
	if c.ttl <= 0 {
		return c.next.Candles(ctx, symbol, tf, limit)
	}
	key := fmt.Sprintf("%s|%s|%d", symbol, tf, limit)
	if v, ok := c.store.Get(key); ok {
		cached := v.([]models.Candle)
		out := make([]models.Candle, len(cached))
		copy(out, cached)
		return out, nil
	}
	candles, err := c.next.Candles(ctx, symbol, tf, limit)
	if err != nil {
		return nil, err
	}
	kept := make([]models.Candle, len(candles))
	copy(kept, candles)
	c.store.Set(key, kept, c.ttl)
	return candles, nil
}

func (c *CandleCache) Price(ctx context.Context, symbol string) (float64, error) {
	return c.next.Price(ctx, symbol)
}
