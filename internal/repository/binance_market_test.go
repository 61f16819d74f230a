package repository

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"FinSignal/internal/domain/models"
)

type fakeMetrics struct {
	mu     sync.Mutex
	errors map[string]int
	prices map[string]float64
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{errors: map[string]int{}, prices: map[string]float64{}}
}

func (f *fakeMetrics) RecordSignal(string, string, int)    {}
func (f *fakeMetrics) RecordNotification(string, bool)    {}
func (f *fakeMetrics) RecordLatency(string, float64)      {}
func (f *fakeMetrics) RecordCycle(int, int)               {}
func (f *fakeMetrics) RecordError(kind string) {
	f.mu.Lock()
	f.errors[kind]++
	f.mu.Unlock()
}
func (f *fakeMetrics) RecordLastPrice(symbol string, p float64) {
	f.mu.Lock()
	f.prices[symbol] = p
	f.mu.Unlock()
}

func newTestMarket(t *testing.T, h http.HandlerFunc) (*BinanceMarket, *fakeMetrics) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	m := newFakeMetrics()
	cfg := BinanceConfig{BaseURL: srv.URL, APIKey: "key", RateBurst: 100, RateRefill: 100, MaxRetries: 3, RetryDelay: time.Millisecond}
	return NewBinanceMarket(cfg, nil, nil, m, nil), m
}

func TestBinanceCandles(t *testing.T) {
	b, _ := newTestMarket(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fapi/v1/klines" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-MBX-APIKEY") != "key" {
			t.Errorf("api key header missing")
		}
		q := r.URL.Query()
		if q.Get("symbol") != "BTCUSDT" || q.Get("interval") != "1h" || q.Get("limit") != "2" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`[
			[1700000000000,"100.5","110","90","105","1234.5",1700003599999,"0",10,"0","0","0"],
			[1700003600000,"105","112","101","108","999",1700007199999,"0",10,"0","0","0"]
		]`))
	})

	candles, err := b.Candles(context.Background(), "BTCUSDT", "1h", 2)
	if err != nil {
		t.Fatalf("candles: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	c := candles[0]
	if c.Open != 100.5 || c.High != 110 || c.Low != 90 || c.Close != 105 || c.Volume != 1234.5 {
		t.Fatalf("unexpected candle %+v", c)
	}
	if !c.OpenTime.Equal(time.UnixMilli(1700000000000)) || c.Symbol != "BTCUSDT" {
		t.Fatalf("unexpected open time or symbol %+v", c)
	}
}

func TestBinancePriceRecordsMetric(t *testing.T) {
	b, m := newTestMarket(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbol":"ETHUSDT","price":"2000.25"}`))
	})
	p, err := b.Price(context.Background(), "ETHUSDT")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if p != 2000.25 || m.prices["ETHUSDT"] != 2000.25 {
		t.Fatalf("unexpected price %v / %v", p, m.prices["ETHUSDT"])
	}
}

func TestBinanceInstrumentsFilter(t *testing.T) {
	b, _ := newTestMarket(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbols":[
			{"symbol":"XRPUSDT","status":"TRADING","quoteAsset":"USDT","contractType":"PERPETUAL"},
			{"symbol":"BTCUSDT","status":"TRADING","quoteAsset":"USDT","contractType":"PERPETUAL"},
			{"symbol":"BTCUSDT_240329","status":"TRADING","quoteAsset":"USDT","contractType":"CURRENT_QUARTER"},
			{"symbol":"ETHBUSD","status":"TRADING","quoteAsset":"BUSD","contractType":"PERPETUAL"},
			{"symbol":"OLDUSDT","status":"SETTLING","quoteAsset":"USDT","contractType":"PERPETUAL"}
		]}`))
	})
	got, err := b.Instruments(context.Background())
	if err != nil {
		t.Fatalf("instruments: %v", err)
	}
	if len(got) != 2 || got[0] != "BTCUSDT" || got[1] != "XRPUSDT" {
		t.Fatalf("unexpected instruments %v", got)
	}
}

func TestBinanceRatioForbiddenIsUnavailable(t *testing.T) {
	var calls int32
	b, _ := newTestMarket(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	})
	_, _, _, err := b.TopLongShortAccountRatio(context.Background(), "BTCUSDT", "1h")
	if !errors.Is(err, models.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("403 must not be retried, got %d calls", atomic.LoadInt32(&calls))
	}
}

func TestBinanceRetriesRateLimit(t *testing.T) {
	var calls int32
	b, m := newTestMarket(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"openInterest":"1500.5"}`))
	})
	oi, err := b.OpenInterest(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("open interest: %v", err)
	}
	if oi != 1500.5 || atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("unexpected oi %v after %d calls", oi, atomic.LoadInt32(&calls))
	}
	if m.errors["binance_rate_limited"] != 1 {
		t.Fatalf("rate limit not recorded: %v", m.errors)
	}
}

func TestBinanceDerivativeEndpoints(t *testing.T) {
	b, _ := newTestMarket(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fapi/v1/fundingRate":
			_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","fundingRate":"0.00025","fundingTime":1}]`))
		case "/futures/data/openInterestHist":
			if r.URL.Query().Get("period") != "5m" || r.URL.Query().Get("limit") != "288" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
			_, _ = w.Write([]byte(`[{"sumOpenInterest":"1000"},{"sumOpenInterest":"1100"}]`))
		case "/futures/data/topLongShortAccountRatio":
			_, _ = w.Write([]byte(`[{"longShortRatio":"1.8","longAccount":"0.6429","shortAccount":"0.3571"}]`))
		case "/fapi/v1/ticker/24hr":
			_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","quoteVolume":"123456789.5"},{"symbol":"BAD","quoteVolume":"x"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	rate, err := b.FundingRate(ctx, "BTCUSDT")
	if err != nil || rate != 0.00025 {
		t.Fatalf("funding: %v %v", rate, err)
	}
	hist, err := b.OpenInterestHistory(ctx, "BTCUSDT", "5m", 288)
	if err != nil || len(hist) != 2 || hist[0] != 1000 {
		t.Fatalf("oi history: %v %v", hist, err)
	}
	ratio, long, short, err := b.TopLongShortAccountRatio(ctx, "BTCUSDT", "1h")
	if err != nil || ratio != 1.8 || long != 0.6429 || short != 0.3571 {
		t.Fatalf("ratio: %v %v %v %v", ratio, long, short, err)
	}
	vols, err := b.QuoteVolumes(ctx)
	if err != nil || vols["BTCUSDT"] != 123456789.5 {
		t.Fatalf("volumes: %v %v", vols, err)
	}
	if _, ok := vols["BAD"]; ok {
		t.Fatalf("unparseable volume must be skipped")
	}
}

func TestBinanceEmptyFundingIsUnavailable(t *testing.T) {
	b, _ := newTestMarket(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	if _, err := b.FundingRate(context.Background(), "BTCUSDT"); !errors.Is(err, models.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
