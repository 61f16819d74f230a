package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/internal/repository"
	icache "FinSignal/internal/service/cache"
	"FinSignal/internal/service/ratelimit"
	"FinSignal/internal/services/message"
	"FinSignal/internal/services/patterns"
	"FinSignal/internal/usecase"
	"FinSignal/pkg/cache"
)

type stubEvaluator struct {
	calls int
	sig   *models.ConsolidatedSignal
	err   error
}

func (e *stubEvaluator) Evaluate(_ context.Context, symbol string) (*models.ConsolidatedSignal, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	s := *e.sig
	s.Symbol = symbol
	return &s, nil
}

type stubMarket struct{ candles []models.Candle }

func (m stubMarket) Candles(context.Context, string, domrepo.Timeframe, int) ([]models.Candle, error) {
	return m.candles, nil
}

func (m stubMarket) Price(context.Context, string) (float64, error) { return 100, nil }

type stubTrend struct{}

func (stubTrend) Confirm(_ context.Context, symbol string) (models.TrendConfirmation, error) {
	return models.TrendConfirmation{Side: models.Long}, nil
}

type stubVolume struct{ err error }

func (v stubVolume) Analyze(context.Context, string) (models.VolumeReport, error) {
	return models.VolumeReport{Ratio: &models.VolumeRatio{Ratio: 3, State: models.VolumeMove}}, v.err
}

type stubDerivatives struct{}

func (stubDerivatives) Analyze(context.Context, string) (models.DerivativesReport, error) {
	return models.DerivativesReport{Funding: &models.FundingReading{RatePct: 0.12}}, nil
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func fired() *models.ConsolidatedSignal {
	return &models.ConsolidatedSignal{
		Price: 100, Side: models.Long, Confidence: 70, Reasons: []string{"🟢 pattern"},
		TakeProfit: 110, StopLoss: 95,
	}
}

func newTestServer(t *testing.T, ev *stubEvaluator, opts ...HandlerOption) (*echo.Echo, *usecase.SignalTracker) {
	t.Helper()
	mem := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	t.Cleanup(func() { _ = mem.Close() })
	tracker := usecase.NewSignalTracker(repository.NewCacheCooldownStore(mem), time.Hour, time.Second)

	candles := make([]models.Candle, 60)
	for i := range candles {
		candles[i] = models.Candle{OpenTime: time.Unix(int64(i)*3600, 0), Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1}
	}
	h := NewSignalsHandler(nil, ev, message.NewFormatter(10, 5), stubMarket{candles: candles},
		patterns.NewRecognizer(), stubTrend{}, stubVolume{}, stubDerivatives{}, tracker, opts...)
	e := echo.New()
	h.RegisterRoutes(e)
	return e, tracker
}

func get(t *testing.T, e *echo.Echo, target string) envelope {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("%s: transport status %d", target, rec.Code)
	}
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s: decode: %v (%s)", target, err, rec.Body.String())
	}
	return env
}

func TestEvaluateReturnsMessageWhenFired(t *testing.T) {
	e, _ := newTestServer(t, &stubEvaluator{sig: fired()})
	env := get(t, e, "/api/evaluate?symbol=BTCUSDT")
	if env.Status != http.StatusOK {
		t.Fatalf("unexpected status %d", env.Status)
	}
	var res models.EvaluateResponse
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if res.Signal.Symbol != "BTCUSDT" || res.Signal.Side != models.Long || res.Message == "" {
		t.Fatalf("unexpected response %+v", res)
	}
}

func TestEvaluateValidation(t *testing.T) {
	e, _ := newTestServer(t, &stubEvaluator{sig: fired()})
	if env := get(t, e, "/api/evaluate"); env.Status != http.StatusBadRequest {
		t.Fatalf("missing symbol: status %d", env.Status)
	}
	if env := get(t, e, "/api/evaluate?symbol=btcusdt"); env.Status != http.StatusBadRequest {
		t.Fatalf("lowercase symbol: status %d", env.Status)
	}
}

func TestEvaluateMapsUnavailable(t *testing.T) {
	e, _ := newTestServer(t, &stubEvaluator{err: models.ErrPriceUnavailable})
	if env := get(t, e, "/api/evaluate?symbol=BTCUSDT"); env.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 in body, got %d", env.Status)
	}
}

func TestResponsesAreCached(t *testing.T) {
	ev := &stubEvaluator{sig: fired()}
	e, _ := newTestServer(t, ev, WithResponseCache(icache.NewTTLCache(), time.Minute))
	get(t, e, "/api/evaluate?symbol=BTCUSDT")
	env := get(t, e, "/api/evaluate?symbol=BTCUSDT")
	if ev.calls != 1 {
		t.Fatalf("expected one evaluation, got %d", ev.calls)
	}
	var res models.EvaluateResponse
	if err := json.Unmarshal(env.Data, &res); err != nil || res.Signal == nil {
		t.Fatalf("cached body not decodable: %v", err)
	}
}

func TestPatternsEndpoint(t *testing.T) {
	e, _ := newTestServer(t, &stubEvaluator{sig: fired()})
	env := get(t, e, "/api/patterns?symbol=BTCUSDT&tf=1h&n=60")
	if env.Status != http.StatusOK {
		t.Fatalf("unexpected status %d", env.Status)
	}
	var res models.PatternsResponse
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Candles != 60 || res.Timeframe != "1h" {
		t.Fatalf("unexpected patterns response %+v", res)
	}
	if env := get(t, e, "/api/patterns?symbol=BTCUSDT&n=10"); env.Status != http.StatusBadRequest {
		t.Fatalf("n below minimum should be rejected, got %d", env.Status)
	}
}

func TestAnalysisEndpoints(t *testing.T) {
	e, _ := newTestServer(t, &stubEvaluator{sig: fired()})
	for _, path := range []string{"/api/trend", "/api/volume", "/api/derivatives"} {
		if env := get(t, e, path+"?symbol=ETHUSDT"); env.Status != http.StatusOK || len(env.Data) == 0 {
			t.Fatalf("%s: status %d", path, env.Status)
		}
	}
}

func TestCooldownAndStats(t *testing.T) {
	e, tracker := newTestServer(t, &stubEvaluator{sig: fired()})
	if err := tracker.Record(context.Background(), "BTCUSDT", models.Short, 50); err != nil {
		t.Fatalf("record: %v", err)
	}

	env := get(t, e, "/api/cooldown?symbol=BTCUSDT")
	var st models.CooldownStatus
	if err := json.Unmarshal(env.Data, &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.CanEmit || st.RemainingSeconds <= 0 || st.Last == nil || st.Last.Side != models.Short {
		t.Fatalf("unexpected cooldown status %+v", st)
	}

	env = get(t, e, "/api/stats")
	var stats models.TrackerStats
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Total != 1 || stats.Shorts != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestRateLimit(t *testing.T) {
	e, _ := newTestServer(t, &stubEvaluator{sig: fired()}, WithRateLimit(ratelimit.New(), 1, 0.001))
	if env := get(t, e, "/api/stats"); env.Status != http.StatusOK {
		t.Fatalf("first request limited: %d", env.Status)
	}
	if env := get(t, e, "/api/stats"); env.Status != http.StatusTooManyRequests {
		t.Fatalf("expected 429 in body, got %d", env.Status)
	}
	if env := get(t, e, "/healthz"); env.Status != http.StatusOK {
		t.Fatalf("health must bypass the limiter, got %d", env.Status)
	}
}
