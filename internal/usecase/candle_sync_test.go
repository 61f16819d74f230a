package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
)

type memCandleStore struct {
	mu     sync.Mutex
	stored map[string]int
	err    error
}

func (s *memCandleStore) Candles(context.Context, string, domrepo.Timeframe, int) ([]models.Candle, error) {
	return nil, nil
}

func (s *memCandleStore) Price(context.Context, string) (float64, error) { return 0, models.ErrUnavailable }

func (s *memCandleStore) StoreCandles(_ context.Context, symbol string, tf domrepo.Timeframe, c []models.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.stored == nil {
		s.stored = map[string]int{}
	}
	s.stored[symbol+"|"+string(tf)] += len(c)
	return nil
}

func TestCandleSyncCopiesEveryTimeframe(t *testing.T) {
	src := &fakeMarket{candles: nCandles(3)}
	store := &memCandleStore{}
	s := NewCandleSync(src, store, staticUniverse{symbols: []string{"BTCUSDT", "ETHUSDT"}},
		CandleSyncConfig{Timeframes: []domrepo.Timeframe{domrepo.TF1h, domrepo.TF4h}, Limit: 3}, nil, nil)

	res, err := s.SyncOnce(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Symbols != 2 || res.Stored != 12 || res.Failed != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if store.stored["ETHUSDT|4h"] != 3 {
		t.Fatalf("unexpected store contents %v", store.stored)
	}
}

func TestCandleSyncCountsFailures(t *testing.T) {
	m := newRecMetrics()
	s := NewCandleSync(&fakeMarket{candles: nCandles(2)}, &memCandleStore{err: errors.New("ch down")},
		staticUniverse{symbols: []string{"BTCUSDT"}}, CandleSyncConfig{}, m, nil)

	res, err := s.SyncOnce(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Failed != 1 || m.errors["candle_sync"] != 1 {
		t.Fatalf("failure not counted: %+v %v", res, m.errors)
	}
	if _, err := s.SyncSymbol(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty symbol")
	}
}
