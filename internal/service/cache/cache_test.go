package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
)

func TestTTLCacheExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTLCache()
	c.now = func() time.Time { return now }

	c.Set("a", 1, time.Second)
	c.Set("forever", 2, 0)
	if v, ok := c.Get("a"); !ok || v.(int) != 1 {
		t.Fatalf("expected hit, got %v %v", v, ok)
	}
	now = now.Add(2 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected expiry")
	}
	if _, ok := c.Get("forever"); !ok {
		t.Fatalf("zero ttl must not expire")
	}

	ctx := context.Background()
	_ = c.SetBytes(ctx, "b", []byte("x"), 0)
	if b, ok, _ := c.GetBytes(ctx, "b"); !ok || string(b) != "x" {
		t.Fatalf("bytes roundtrip failed")
	}
	if _, ok, _ := c.GetBytes(ctx, "forever"); ok {
		t.Fatalf("non-byte value must not be returned as bytes")
	}
}

type countingMarket struct {
	calls int
	err   error
}

func (m *countingMarket) Candles(_ context.Context, symbol string, _ repository.Timeframe, limit int) ([]models.Candle, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([]models.Candle, limit)
	for i := range out {
		out[i] = models.Candle{Symbol: symbol, Close: float64(i)}
	}
	return out, nil
}

func (m *countingMarket) Price(context.Context, string) (float64, error) { return 1, nil }

func TestCandleCacheMemoizes(t *testing.T) {
	next := &countingMarket{}
	c := NewCandleCache(next, time.Minute)
	ctx := context.Background()

	first, err := c.Candles(ctx, "BTCUSDT", "1h", 3)
	if err != nil {
		t.Fatalf("candles: %v", err)
	}
	first[0].Close = 999
	second, _ := c.Candles(ctx, "BTCUSDT", "1h", 3)
	if next.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", next.calls)
	}
	if second[0].Close != 0 {
		t.Fatalf("cached window must not alias caller slices")
	}
	if _, _ = c.Candles(ctx, "BTCUSDT", "4h", 3); next.calls != 2 {
		t.Fatalf("different timeframe must miss")
	}
}

func TestCandleCacheDoesNotStoreErrors(t *testing.T) {
	next := &countingMarket{err: errors.New("boom")}
	c := NewCandleCache(next, time.Minute)
	for i := 0; i < 2; i++ {
		if _, err := c.Candles(context.Background(), "BTCUSDT", "1h", 3); err == nil {
			t.Fatalf("expected error")
		}
	}
	if next.calls != 2 {
		t.Fatalf("errors must not be cached, got %d calls", next.calls)
	}
}
