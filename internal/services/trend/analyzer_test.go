package trend

import (
	"context"
	"errors"
	"testing"
	"time"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
)

// colors builds candles from a string of g/r/n letters, oldest first.
func colors(pattern string) []models.Candle {
	out := make([]models.Candle, 0, len(pattern))
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, ch := range pattern {
		c := models.Candle{OpenTime: t0.Add(time.Duration(i) * time.Minute), Open: 100, High: 102, Low: 98}
		switch ch {
		case 'g':
			c.Close = 101
		case 'r':
			c.Close = 99
		default:
			c.Close = 100
		}
		out = append(out, c)
	}
	return out
}

type fakeMarket struct {
	windows map[repository.Timeframe][]models.Candle
	errs    map[repository.Timeframe]error
}

func (f *fakeMarket) Candles(_ context.Context, _ string, tf repository.Timeframe, _ int) ([]models.Candle, error) {
	if err := f.errs[tf]; err != nil {
		return nil, err
	}
	return f.windows[tf], nil
}

func (f *fakeMarket) Price(context.Context, string) (float64, error) { return 100, nil }

func testConfig() Config {
	return Config{Long: repository.TF4h, Medium: repository.TF1h, Short: repository.TF15m, MinConfirmation: 3}
}

func TestClassify(t *testing.T) {
	got := Classify("1h", colors("rrrrgggrgg"))
	// newest six are gggrgg
	if got.Trend != models.Bullish || got.Green != 5 || got.Red != 1 {
		t.Fatalf("unexpected reading %+v", got)
	}
	if got.Streak != 2 || got.Color != models.ColorGreen {
		t.Fatalf("unexpected streak %+v", got)
	}

	got = Classify("1h", colors("gggrrrrr"))
	if got.Trend != models.Bearish || got.Streak != 5 {
		t.Fatalf("unexpected reading %+v", got)
	}

	got = Classify("1h", colors("gggggn"))
	if got.Streak != 0 || got.Color != models.ColorNeutral || got.Trend != models.Bullish {
		t.Fatalf("neutral newest candle must reset streak: %+v", got)
	}

	got = Classify("1h", colors("ggggg"))
	if got.Trend != models.Neutral || got.Streak != 0 {
		t.Fatalf("short tier must be neutral: %+v", got)
	}
}

func TestConfirmLong(t *testing.T) {
	m := &fakeMarket{windows: map[repository.Timeframe][]models.Candle{
		repository.TF4h:  colors("rrrrgggggg"),
		repository.TF1h:  colors("rrrrggrggg"),
		repository.TF15m: colors("rrrrrrrggg"),
	}}
	got, err := NewAnalyzer(m, testConfig()).Confirm(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Side != models.Long {
		t.Fatalf("expected LONG, got %+v", got)
	}
}

func TestConfirmShortNeedsStreak(t *testing.T) {
	m := &fakeMarket{windows: map[repository.Timeframe][]models.Candle{
		repository.TF4h:  colors("ggggrrrrrr"),
		repository.TF1h:  colors("ggggrrrrrr"),
		repository.TF15m: colors("ggggggggrr"),
	}}
	a := NewAnalyzer(m, testConfig())
	got, _ := a.Confirm(context.Background(), "BTCUSDT")
	if got.Side != models.None {
		t.Fatalf("streak of 2 must not confirm, got %v", got.Side)
	}

	m.windows[repository.TF15m] = colors("gggggggrrr")
	got, _ = a.Confirm(context.Background(), "BTCUSDT")
	if got.Side != models.Short {
		t.Fatalf("expected SHORT, got %v", got.Side)
	}
}

func TestConfirmMissingTierBlocks(t *testing.T) {
	m := &fakeMarket{
		windows: map[repository.Timeframe][]models.Candle{
			repository.TF1h:  colors("gggggggggg"),
			repository.TF15m: colors("gggggggggg"),
		},
		errs: map[repository.Timeframe]error{repository.TF4h: errors.New("timeout")},
	}
	got, err := NewAnalyzer(m, testConfig()).Confirm(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("partial failure must not error: %v", err)
	}
	if got.Side != models.None || got.Long.Trend != models.Neutral {
		t.Fatalf("missing tier must block confirmation: %+v", got)
	}
}

func TestConfirmAllTiersFail(t *testing.T) {
	boom := errors.New("down")
	m := &fakeMarket{errs: map[repository.Timeframe]error{
		repository.TF4h: boom, repository.TF1h: boom, repository.TF15m: boom,
	}}
	if _, err := NewAnalyzer(m, testConfig()).Confirm(context.Background(), "BTCUSDT"); !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
}
