// Package derivatives reads futures positioning metrics: funding rate, open
// interest change and the top trader long/short account ratio.
package derivatives

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
	"FinSignal/internal/domain/service"
	"FinSignal/pkg/logger"
)

const (
	// The open interest change is always measured over 24h of 5m samples.
	oiHistoryPeriod = "5m"
	oiHistoryLimit  = 288
	ratioPeriod     = "1h"

	signalThreshold = 60
	maxConfidence   = 90
)

type Analyzer struct {
	data repository.DerivativesData
	log  *logger.Logger
}

var _ service.DerivativesAnalyzer = (*Analyzer)(nil)

func NewAnalyzer(data repository.DerivativesData, log *logger.Logger) *Analyzer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Analyzer{data: data, log: log}
}

// Analyze fetches the three metrics concurrently. Any metric may be missing;
// an error is returned only when all of them failed.
func (a *Analyzer) Analyze(ctx context.Context, symbol string) (models.DerivativesReport, error) {
	var (
		wg      sync.WaitGroup
		report  models.DerivativesReport
		errFund error
		errOI   error
		errLS   error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		var rate float64
		if rate, errFund = a.data.FundingRate(ctx, symbol); errFund == nil {
			r := ClassifyFunding(rate * 100)
			report.Funding = &r
		}
	}()
	go func() {
		defer wg.Done()
		report.OpenInterest, errOI = a.openInterest(ctx, symbol)
	}()
	go func() {
		defer wg.Done()
		ratio, longAcc, shortAcc, err := a.data.TopLongShortAccountRatio(ctx, symbol, ratioPeriod)
		if err != nil {
			errLS = err
			return
		}
		r := ClassifyLongShort(ratio, longAcc*100, shortAcc*100)
		report.LongShort = &r
	}()
	wg.Wait()

	for name, err := range map[string]error{"funding": errFund, "open_interest": errOI, "long_short": errLS} {
		if err != nil && !errors.Is(err, models.ErrUnavailable) {
			a.log.Debug("derivative metric unavailable",
				logger.String("symbol", symbol),
				logger.String("metric", name),
				logger.Error(err),
			)
		}
	}
	if errFund != nil && errOI != nil && errLS != nil {
		return models.DerivativesReport{Verdict: models.Verdict{Side: models.None}}, errors.Join(errFund, errOI, errLS)
	}

	report.Verdict = Consolidate(report.Funding, report.OpenInterest, report.LongShort)
	return report, nil
}

func (a *Analyzer) openInterest(ctx context.Context, symbol string) (*models.OpenInterestReading, error) {
	current, err := a.data.OpenInterest(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("open interest: %w", err)
	}
	hist, err := a.data.OpenInterestHistory(ctx, symbol, oiHistoryPeriod, oiHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("open interest history: %w", err)
	}
	change := 0.0
	if len(hist) > 0 && hist[0] > 0 {
		change = (current - hist[0]) / hist[0] * 100
	}
	r := ClassifyOpenInterest(current, change)
	return &r, nil
}

// ClassifyFunding interprets a funding rate given in percent. High positive
// funding means crowded longs and reads bearish.
func ClassifyFunding(ratePct float64) models.FundingReading {
	op := models.Opinion{Kind: models.KindFunding, Direction: models.Neutral}
	switch {
	case ratePct > 0.1:
		op.Direction, op.Confidence, op.Description = models.Bearish, 70, "Funding VERY HIGH - excess longs"
	case ratePct > 0.05:
		op.Direction, op.Confidence, op.Description = models.Bearish, 55, "Funding high - longs dominate"
	case ratePct < -0.1:
		op.Direction, op.Confidence, op.Description = models.Bullish, 70, "Funding VERY NEGATIVE - excess shorts"
	case ratePct < -0.05:
		op.Direction, op.Confidence, op.Description = models.Bullish, 55, "Funding negative - shorts dominate"
	default:
		op.Description = "Funding neutral"
	}
	return models.FundingReading{RatePct: ratePct, Opinion: op}
}

// ClassifyOpenInterest interprets a 24h open interest change. It conveys
// strength only, never direction.
func ClassifyOpenInterest(current, changePct float64) models.OpenInterestReading {
	r := models.OpenInterestReading{Current: current, ChangePct: changePct, State: models.OINeutral}
	switch {
	case changePct > 10:
		r.State, r.Confidence = models.OIStrongTrend, 65
		r.Interpretation = fmt.Sprintf("OI rising fast (+%.1f%%) - new activity", changePct)
	case changePct > 5:
		r.State, r.Confidence = models.OITrend, 50
		r.Interpretation = fmt.Sprintf("OI rising (+%.1f%%) - growing interest", changePct)
	case changePct < -10:
		r.State, r.Confidence = models.OIWeak, 60
		r.Interpretation = fmt.Sprintf("OI falling fast (%.1f%%) - positions closing", changePct)
	case changePct < -5:
		r.State, r.Confidence = models.OIWeak, 45
		r.Interpretation = fmt.Sprintf("OI falling (%.1f%%) - fading interest", changePct)
	default:
		r.Interpretation = fmt.Sprintf("OI stable (%.1f%%)", changePct)
	}
	return r
}

// ClassifyLongShort interprets the top trader account ratio contrarian-style.
func ClassifyLongShort(ratio, longPct, shortPct float64) models.LongShortReading {
	op := models.Opinion{Kind: models.KindLongShort, Direction: models.Neutral}
	switch {
	case ratio > 2.5:
		op.Direction, op.Confidence = models.Bearish, 75
		op.Description = fmt.Sprintf("Extreme LONG (%.0f%%) - downside risk", longPct)
	case ratio > 1.5:
		op.Direction, op.Confidence = models.Bearish, 55
		op.Description = fmt.Sprintf("Mostly LONG (%.0f%%)", longPct)
	case ratio < 0.4:
		op.Direction, op.Confidence = models.Bullish, 75
		op.Description = fmt.Sprintf("Extreme SHORT (%.0f%%) - upside risk", shortPct)
	case ratio < 0.67:
		op.Direction, op.Confidence = models.Bullish, 55
		op.Description = fmt.Sprintf("Mostly SHORT (%.0f%%)", shortPct)
	default:
		op.Description = fmt.Sprintf("Balanced (L:%.0f%%/S:%.0f%%)", longPct, shortPct)
	}
	return models.LongShortReading{Ratio: ratio, LongPct: longPct, ShortPct: shortPct, Opinion: op}
}

// Consolidate scores funding and ratio, then appends the open interest
// narrative whenever it is available.
func Consolidate(funding *models.FundingReading, oi *models.OpenInterestReading, ls *models.LongShortReading) models.Verdict {
	v := models.Verdict{Side: models.None}
	add := func(op models.Opinion, label string) {
		switch op.Direction {
		case models.Bullish:
			v.Bullish += op.Confidence
		case models.Bearish:
			v.Bearish += op.Confidence
		default:
			return
		}
		v.Reasons = append(v.Reasons, "📊 "+label+": "+op.Description)
	}
	if funding != nil {
		add(funding.Opinion, "Funding")
	}
	if ls != nil {
		add(ls.Opinion, "Ratio L/S")
	}
	if oi != nil {
		v.Reasons = append(v.Reasons, "📊 OI: "+oi.Interpretation)
	}

	switch {
	case v.Bullish > v.Bearish && v.Bullish >= signalThreshold:
		v.Side, v.Confidence = models.Long, math.Min(v.Bullish, maxConfidence)
	case v.Bearish > v.Bullish && v.Bearish >= signalThreshold:
		v.Side, v.Confidence = models.Short, math.Min(v.Bearish, maxConfidence)
	}
	return v
}
