// Package trend confirms direction across long, medium and short timeframes
// from candle colors.
package trend

import (
	"context"
	"errors"
	"fmt"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
	"FinSignal/internal/domain/service"
)

const (
	// FetchCandles is how many candles are loaded per tier.
	FetchCandles = 10
	// WindowCandles is how many of the newest candles are classified.
	WindowCandles = 6
	majority      = 4
)

// Config selects the three tiers and the short tier streak requirement.
type Config struct {
	Long            repository.Timeframe
	Medium          repository.Timeframe
	Short           repository.Timeframe
	MinConfirmation int
}

type Analyzer struct {
	market repository.MarketData
	cfg    Config
}

var _ service.TrendAnalyzer = (*Analyzer)(nil)

func NewAnalyzer(market repository.MarketData, cfg Config) *Analyzer {
	if cfg.MinConfirmation <= 0 {
		cfg.MinConfirmation = 3
	}
	return &Analyzer{market: market, cfg: cfg}
}

// Confirm loads the three tiers and evaluates the confirmation rules.
// A tier that fails to load reads as NEUTRAL; an error is returned only when
// no tier could be loaded.
func (a *Analyzer) Confirm(ctx context.Context, symbol string) (models.TrendConfirmation, error) {
	tiers := []repository.Timeframe{a.cfg.Long, a.cfg.Medium, a.cfg.Short}
	readings := make([]models.TimeframeTrend, len(tiers))
	var errs []error
	for i, tf := range tiers {
		candles, err := a.market.Candles(ctx, symbol, tf, FetchCandles)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", tf, err))
			candles = nil
		}
		readings[i] = Classify(string(tf), candles)
	}
	if len(errs) == len(tiers) {
		return models.TrendConfirmation{Side: models.None}, errors.Join(errs...)
	}

	return models.TrendConfirmation{
		Side:   Decide(readings[0], readings[1], readings[2], a.cfg.MinConfirmation),
		Long:   readings[0],
		Medium: readings[1],
		Short:  readings[2],
	}, nil
}

// Classify reads the last six candles of one tier. Fewer than six candles
// yield a NEUTRAL reading with no streak.
func Classify(tf string, candles []models.Candle) models.TimeframeTrend {
	out := models.TimeframeTrend{Timeframe: tf, Trend: models.Neutral, Color: models.ColorNeutral}
	if len(candles) < WindowCandles {
		return out
	}

	for _, c := range candles[len(candles)-WindowCandles:] {
		color := models.ColorOf(c)
		out.Colors = append(out.Colors, color)
		switch color {
		case models.ColorGreen:
			out.Green++
		case models.ColorRed:
			out.Red++
		}
	}
	out.Color = out.Colors[len(out.Colors)-1]
	out.Streak = streak(out.Colors)

	switch {
	case out.Green >= majority:
		out.Trend = models.Bullish
	case out.Red >= majority:
		out.Trend = models.Bearish
	}
	return out
}

// streak counts same-colored candles backwards from the newest one.
func streak(colors []models.CandleColor) int {
	if len(colors) == 0 {
		return 0
	}
	last := colors[len(colors)-1]
	if last == models.ColorNeutral {
		return 0
	}
	n := 0
	for i := len(colors) - 1; i >= 0 && colors[i] == last; i-- {
		n++
	}
	return n
}

// Decide applies the cross-timeframe confirmation rules.
func Decide(long, medium, short models.TimeframeTrend, minConfirmation int) models.Side {
	confirmed := short.Streak >= minConfirmation
	switch {
	case long.Trend == models.Bullish && medium.Trend == models.Bullish &&
		short.Color == models.ColorGreen && confirmed:
		return models.Long
	case long.Trend == models.Bearish && medium.Trend == models.Bearish &&
		short.Color == models.ColorRed && confirmed:
		return models.Short
	default:
		return models.None
	}
}
