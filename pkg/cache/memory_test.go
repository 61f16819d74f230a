package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type payload struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

func TestMemoryCacheTypedRoundTrip(t *testing.T) {
	c := NewMemoryCache(WithMemoryCleanup(0))
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, GenerateKey("rec", "BTCUSDT"), payload{Name: "btc", Price: 42}, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got payload
	if err := c.Get(ctx, "rec:BTCUSDT", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "btc" || got.Price != 42 {
		t.Fatalf("unexpected value %+v", got)
	}

	typed, err := MGetTyped[payload](ctx, c, "rec:BTCUSDT", "rec:missing")
	if err != nil || len(typed) != 1 || typed["rec:BTCUSDT"].Price != 42 {
		t.Fatalf("mget typed: %v %v", typed, err)
	}
}

func TestMemoryCacheExpiryAndLock(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache(WithMemoryCleanup(0), WithMemoryClock(func() time.Time { return now }))
	defer c.Close()
	ctx := context.Background()

	ok, err := c.TryLock(ctx, "lock:BTC", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first lock: %v %v", ok, err)
	}
	if ok, _ := c.TryLock(ctx, "lock:BTC", time.Minute); ok {
		t.Fatalf("lock must be exclusive")
	}
	now = now.Add(2 * time.Minute)
	if ok, _ := c.TryLock(ctx, "lock:BTC", time.Minute); !ok {
		t.Fatalf("expired lock must be reacquirable")
	}
	if err := c.Unlock(ctx, "lock:BTC"); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	_ = c.Set(ctx, "tmp", "v", time.Second)
	now = now.Add(2 * time.Second)
	var s string
	if err := c.Get(ctx, "tmp", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after expiry, got %v", err)
	}
}

func TestMemoryCacheKeysAndEviction(t *testing.T) {
	c := NewMemoryCache(WithMemoryCleanup(0), WithMemoryMaxSize(2))
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "rec:A", "1", 0)
	time.Sleep(time.Millisecond)
	_ = c.Set(ctx, "rec:B", "2", 0)
	time.Sleep(time.Millisecond)
	_ = c.Set(ctx, "other", "3", 0)

	keys, err := c.Keys(ctx, BuildPattern("rec"))
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "rec:B" {
		t.Fatalf("expected oldest key evicted, got %v", keys)
	}
}
