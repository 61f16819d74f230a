package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/services/engine"
)

func patternVerdict(side models.Side, conf float64, reason string) models.PatternReport {
	return models.PatternReport{Verdict: models.Verdict{Side: side, Confidence: conf, Reasons: []string{reason}}}
}

func newTestEvaluator(market *fakeMarket, p fakePatterns, tr fakeTrend, d fakeDerivatives, v fakeVolume, m *recMetrics) *Evaluator {
	return NewEvaluator(market, p, tr, d, v, engine.New(engine.DefaultConfig()), EvaluatorConfig{CallTimeout: time.Second}, m, nil)
}

func TestEvaluatePatternOnlyFiresLong(t *testing.T) {
	market := &fakeMarket{price: 100, candles: nCandles(100)}
	m := newRecMetrics()
	ev := newTestEvaluator(market,
		fakePatterns{report: patternVerdict(models.Long, 80, "🟢 Ascending triangle")},
		fakeTrend{err: models.ErrInsufficientData},
		fakeDerivatives{},
		fakeVolume{},
		m)

	sig, err := ev.Evaluate(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if sig.Side != models.Long || sig.Confidence != 70 {
		t.Fatalf("expected LONG/70, got %s/%d", sig.Side, sig.Confidence)
	}
	if sig.ID == "" || sig.GeneratedAt.IsZero() {
		t.Fatalf("missing id or timestamp")
	}
	if sig.TakeProfit != 110 || sig.StopLoss != 95 {
		t.Fatalf("unexpected levels %v %v", sig.TakeProfit, sig.StopLoss)
	}
	if _, ok := sig.Errors["trend"]; !ok {
		t.Fatalf("expected trend error to be recorded, got %v", sig.Errors)
	}
	if m.prices["BTCUSDT"] != 100 {
		t.Fatalf("last price not recorded")
	}
	if err := sig.Validate(); err != nil {
		t.Fatalf("fired signal should validate: %v", err)
	}
}

func TestEvaluateAllSilent(t *testing.T) {
	market := &fakeMarket{price: 2, candles: nCandles(100)}
	ev := newTestEvaluator(market, fakePatterns{}, fakeTrend{}, fakeDerivatives{}, fakeVolume{}, nil)

	sig, err := ev.Evaluate(context.Background(), "ETHUSDT")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if sig.Side != models.None || sig.Confidence != 0 || len(sig.Reasons) != 0 {
		t.Fatalf("expected NONE/0, got %s/%d %v", sig.Side, sig.Confidence, sig.Reasons)
	}
	if sig.Errors != nil {
		t.Fatalf("unexpected errors %v", sig.Errors)
	}
}

func TestEvaluatePriceFailureAborts(t *testing.T) {
	market := &fakeMarket{priceErr: errors.New("timeout")}
	ev := newTestEvaluator(market, fakePatterns{}, fakeTrend{}, fakeDerivatives{}, fakeVolume{}, nil)
	if _, err := ev.Evaluate(context.Background(), "BTCUSDT"); !errors.Is(err, models.ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable, got %v", err)
	}

	market = &fakeMarket{price: 0}
	ev = newTestEvaluator(market, fakePatterns{}, fakeTrend{}, fakeDerivatives{}, fakeVolume{}, nil)
	if _, err := ev.Evaluate(context.Background(), "BTCUSDT"); !errors.Is(err, models.ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable for zero price, got %v", err)
	}
}

func TestEvaluateShortWindowDropsPatterns(t *testing.T) {
	market := &fakeMarket{price: 100, candles: nCandles(49)}
	ev := newTestEvaluator(market,
		fakePatterns{report: patternVerdict(models.Long, 90, "x")},
		fakeTrend{}, fakeDerivatives{}, fakeVolume{}, nil)

	sig, err := ev.Evaluate(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if sig.Side != models.None || sig.Patterns != nil {
		t.Fatalf("patterns should be dropped, got %s %+v", sig.Side, sig.Patterns)
	}
	if _, ok := sig.Errors["patterns"]; !ok {
		t.Fatalf("expected patterns error")
	}
}

func TestEvaluateCombinesLenses(t *testing.T) {
	market := &fakeMarket{price: 100, candles: nCandles(100)}
	spike := &models.VolumeSpike{Ratio: 4, Opinion: models.Opinion{Kind: models.KindVolumeSpike, Direction: models.Bearish, Confidence: 80, Description: "Volume spike 4.0x"}}
	ev := newTestEvaluator(market,
		fakePatterns{report: patternVerdict(models.Short, 75, "🔴 Double top")},
		fakeTrend{},
		fakeDerivatives{report: models.DerivativesReport{Verdict: models.Verdict{Side: models.Short, Confidence: 70, Reasons: []string{"funding"}}}},
		fakeVolume{report: models.VolumeReport{Spike: spike}},
		nil)

	sig, err := ev.Evaluate(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	// 75 + 70 + 80 = 225 -> floor(112.5)+30 = 142 -> capped 95
	if sig.Side != models.Short || sig.Confidence != 95 {
		t.Fatalf("expected SHORT/95, got %s/%d", sig.Side, sig.Confidence)
	}
	want := []string{"🔴 Double top", "funding", "📊 Volume spike 4.0x"}
	if len(sig.Reasons) != len(want) {
		t.Fatalf("unexpected reasons %v", sig.Reasons)
	}
	for i := range want {
		if sig.Reasons[i] != want[i] {
			t.Fatalf("reason %d: want %q got %q", i, want[i], sig.Reasons[i])
		}
	}
}

func TestEvaluateHonoursCallTimeout(t *testing.T) {
	market := &fakeMarket{price: 100, candles: nCandles(100)}
	ev := NewEvaluator(market, fakePatterns{}, slowTrend{}, fakeDerivatives{}, fakeVolume{},
		engine.New(engine.DefaultConfig()), EvaluatorConfig{CallTimeout: 20 * time.Millisecond}, nil, nil)

	start := time.Now()
	sig, err := ev.Evaluate(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("evaluation not bounded by call timeout")
	}
	if _, ok := sig.Errors["trend"]; !ok {
		t.Fatalf("expected trend timeout error")
	}
}

type slowTrend struct{}

func (slowTrend) Confirm(ctx context.Context, _ string) (models.TrendConfirmation, error) {
	<-ctx.Done()
	return models.TrendConfirmation{}, ctx.Err()
}

type panickingVolume struct{}

func (panickingVolume) Analyze(context.Context, string) (models.VolumeReport, error) {
	panic("index out of range")
}

func TestEvaluateAnalyzerPanicDegradesSource(t *testing.T) {
	market := &fakeMarket{price: 100, candles: nCandles(100)}
	ev := NewEvaluator(market,
		fakePatterns{report: patternVerdict(models.Long, 80, "🟢 Ascending triangle")},
		fakeTrend{}, fakeDerivatives{}, panickingVolume{},
		engine.New(engine.DefaultConfig()), EvaluatorConfig{CallTimeout: time.Second}, nil, nil)

	sig, err := ev.Evaluate(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if sig.Side != models.Long || sig.Confidence != 70 {
		t.Fatalf("other sources must still score, got %s/%d", sig.Side, sig.Confidence)
	}
	if msg, ok := sig.Errors["volume"]; !ok || msg == "" {
		t.Fatalf("expected volume panic recorded as error, got %v", sig.Errors)
	}
}
