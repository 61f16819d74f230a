package volume

import (
	"context"
	"errors"
	"testing"
	"time"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
)

func window(n int, vol float64) []models.Candle {
	out := make([]models.Candle, n)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = models.Candle{
			OpenTime: t0.Add(time.Duration(i) * time.Hour),
			Open:     100, High: 101, Low: 99, Close: 100, Volume: vol,
		}
	}
	return out
}

func TestRatioExtreme(t *testing.T) {
	candles := window(100, 10)
	candles[99].Volume = 60
	r, err := Ratio(candles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Ratio != 6 || r.State != models.VolumeStrongMove || r.Confidence != 85 {
		t.Fatalf("unexpected ratio reading %+v", r)
	}
	if r.ZScore != 0 {
		t.Fatalf("constant history has no deviation, got z=%v", r.ZScore)
	}
	if r.Interpretation != "EXTREME volume (6.0x) - whales active" {
		t.Fatalf("unexpected interpretation %q", r.Interpretation)
	}
}

func TestRatioStates(t *testing.T) {
	cases := []struct {
		last  float64
		state models.VolumeState
		conf  float64
	}{
		{35, models.VolumeStrongMove, 70},
		{25, models.VolumeMove, 55},
		{2, models.VolumeCalm, 40},
		{12, models.VolumeNormal, 0},
	}
	for _, c := range cases {
		candles := window(60, 10)
		candles[59].Volume = c.last
		r, err := Ratio(candles)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.State != c.state || r.Confidence != c.conf {
			t.Fatalf("volume %v: got %s/%v", c.last, r.State, r.Confidence)
		}
	}
}

func TestRatioZeroAverage(t *testing.T) {
	candles := window(50, 0)
	candles[49].Volume = 5
	r, _ := Ratio(candles)
	if r.Ratio != 1 || r.State != models.VolumeNormal {
		t.Fatalf("zero average must read ratio 1, got %+v", r)
	}
}

func TestRatioNeedsFiftyCandles(t *testing.T) {
	if _, err := Ratio(window(49, 10)); !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("expected insufficient data, got %v", err)
	}
}

func TestSpike(t *testing.T) {
	candles := window(50, 10)
	candles[49].Volume = 50
	candles[49].Close = 102
	s, err := Spike(candles, 3)
	if err != nil || s == nil {
		t.Fatalf("expected spike, got %v %v", s, err)
	}
	if s.Opinion.Direction != models.Bullish || s.Opinion.Confidence != 90 {
		t.Fatalf("unexpected spike %+v", s.Opinion)
	}

	candles[49].Volume = 200
	candles[49].Close = 98
	s, _ = Spike(candles, 3)
	if s.Opinion.Direction != models.Bearish || s.Opinion.Confidence != 95 {
		t.Fatalf("expected capped bearish spike, got %+v", s.Opinion)
	}

	candles[49].Volume = 20
	if s, _ := Spike(candles, 3); s != nil {
		t.Fatalf("2x must not be a spike: %+v", s)
	}
	if _, err := Spike(window(19, 10), 3); !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("expected insufficient data, got %v", err)
	}
}

func TestProfile(t *testing.T) {
	candles := window(120, 1)
	// a heavy cluster around 100 and a light tail up to 140
	for i := 0; i < 20; i++ {
		candles[i].High = 140
		candles[i].Low = 130
	}
	for i := 20; i < 120; i++ {
		candles[i].Volume = 100
	}
	p, err := Profile(candles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Zones) != 3 {
		t.Fatalf("expected 3 zones, got %d", len(p.Zones))
	}
	if !p.InHighZone {
		t.Fatalf("close at 100 must be in a high volume zone: %+v", p)
	}
	for i := 1; i < len(p.Zones); i++ {
		if p.Zones[i].Volume > p.Zones[i-1].Volume {
			t.Fatalf("zones not ranked: %+v", p.Zones)
		}
	}
	if _, err := Profile(window(99, 1)); !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("expected insufficient data, got %v", err)
	}
}

type fakeMarket struct {
	windows map[repository.Timeframe][]models.Candle
	err     error
}

func (f *fakeMarket) Candles(_ context.Context, _ string, tf repository.Timeframe, limit int) ([]models.Candle, error) {
	if f.err != nil {
		return nil, f.err
	}
	w := f.windows[tf]
	if len(w) > limit {
		w = w[len(w)-limit:]
	}
	return w, nil
}

func (f *fakeMarket) Price(context.Context, string) (float64, error) { return 100, nil }

func TestDetectorAnalyze(t *testing.T) {
	hourly := window(200, 10)
	hourly[199].Volume = 60
	quarter := window(50, 10)
	quarter[49].Volume = 40
	quarter[49].Close = 101

	m := &fakeMarket{windows: map[repository.Timeframe][]models.Candle{
		repository.TF1h:  hourly,
		repository.TF15m: quarter,
	}}
	report, err := NewDetector(m, DefaultConfig()).Analyze(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Ratio == nil || report.Ratio.State != models.VolumeStrongMove {
		t.Fatalf("unexpected ratio %+v", report.Ratio)
	}
	if report.Spike == nil || report.Spike.Opinion.Direction != models.Bullish {
		t.Fatalf("unexpected spike %+v", report.Spike)
	}
	if report.Profile == nil {
		t.Fatalf("expected profile")
	}

	m.err = errors.New("down")
	if _, err := NewDetector(m, DefaultConfig()).Analyze(context.Background(), "BTCUSDT"); err == nil {
		t.Fatalf("expected error when every fetch fails")
	}
}
