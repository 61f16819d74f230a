// Package patterns detects chart and candlestick patterns in a candle window.
package patterns

import (
	"fmt"
	"math"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/service"
	"FinSignal/internal/services/features"
)

const (
	// MinCandles is the window needed for full pattern coverage.
	MinCandles = 50

	levelOrder       = 5
	triangleWindow   = 20
	triangleEps      = 0.001
	doubleWindow     = 30
	doubleOrder      = 3
	doubleTolerance  = 0.02
	channelWindow    = 20
	channelMinR2     = 0.7
	channelSlopeEps  = 0.001
	candleMinWindow  = 5
	signalThreshold  = 70
	signalConfidence = 95
)

// Recognizer is stateless and safe for concurrent use.
type Recognizer struct{}

var _ service.PatternAnalyzer = (*Recognizer)(nil)

func NewRecognizer() *Recognizer { return &Recognizer{} }

// Analyze runs every detector over the window and aggregates the result.
// Windows shorter than MinCandles yield an empty report.
func (r *Recognizer) Analyze(candles []models.Candle) models.PatternReport {
	report := models.PatternReport{Verdict: models.Verdict{Side: models.None}}
	if len(candles) < MinCandles {
		return report
	}
	report.Support, report.Resistance = SupportResistance(candles, levelOrder)
	report.Patterns = FindAll(candles)
	report.Verdict = Signal(report.Patterns)
	return report
}

// FindAll returns every detected pattern in detection order: triangle,
// double top/bottom, channel, candlesticks.
func FindAll(candles []models.Candle) []models.Opinion {
	if len(candles) < MinCandles {
		return nil
	}
	var out []models.Opinion
	out = append(out, Triangle(candles)...)
	out = append(out, DoubleTopBottom(candles)...)
	out = append(out, Channel(candles)...)
	out = append(out, Candlesticks(candles)...)
	return out
}

// SupportResistance returns local minima of lows and local maxima of highs.
func SupportResistance(candles []models.Candle, order int) (support, resistance []models.Level) {
	highs := features.Highs(candles)
	lows := features.Lows(candles)
	for _, i := range features.LocalMinima(lows, order) {
		support = append(support, models.Level{Index: i, Price: lows[i]})
	}
	for _, i := range features.LocalMaxima(highs, order) {
		resistance = append(resistance, models.Level{Index: i, Price: highs[i]})
	}
	return support, resistance
}

// Triangle classifies the last 20 candles. First matching rule wins.
func Triangle(candles []models.Candle) []models.Opinion {
	if len(candles) < triangleWindow {
		return nil
	}
	recent := features.Tail(candles, triangleWindow)
	highSlope, _ := features.LinearFit(features.Highs(recent))
	lowSlope, _ := features.LinearFit(features.Lows(recent))

	switch {
	case lowSlope > triangleEps && math.Abs(highSlope) < triangleEps:
		return []models.Opinion{{
			Kind:        models.KindTriangleAscending,
			Direction:   models.Bullish,
			Confidence:  70,
			Description: "Ascending triangle - likely bullish breakout",
		}}
	case highSlope < -triangleEps && math.Abs(lowSlope) < triangleEps:
		return []models.Opinion{{
			Kind:        models.KindTriangleDescending,
			Direction:   models.Bearish,
			Confidence:  70,
			Description: "Descending triangle - likely bearish breakout",
		}}
	case highSlope < -triangleEps/2 && lowSlope > triangleEps/2:
		return []models.Opinion{{
			Kind:        models.KindTriangleSymmetric,
			Direction:   models.Neutral,
			Confidence:  60,
			Description: "Symmetric triangle - breakout imminent",
		}}
	}
	return nil
}

// DoubleTopBottom compares the two most recent order-3 extrema of the last
// 30 candles.
func DoubleTopBottom(candles []models.Candle) []models.Opinion {
	if len(candles) < doubleWindow {
		return nil
	}
	recent := features.Tail(candles, doubleWindow)
	highs := features.Highs(recent)
	lows := features.Lows(recent)

	var out []models.Opinion
	if idx := features.LocalMaxima(highs, doubleOrder); len(idx) >= 2 {
		a, b := highs[idx[len(idx)-2]], highs[idx[len(idx)-1]]
		if a != 0 && math.Abs(a-b)/a < doubleTolerance {
			out = append(out, models.Opinion{
				Kind:        models.KindDoubleTop,
				Direction:   models.Bearish,
				Confidence:  75,
				Description: fmt.Sprintf("Double top at $%.4f - bearish signal", a),
			})
		}
	}
	if idx := features.LocalMinima(lows, doubleOrder); len(idx) >= 2 {
		a, b := lows[idx[len(idx)-2]], lows[idx[len(idx)-1]]
		if a != 0 && math.Abs(a-b)/a < doubleTolerance {
			out = append(out, models.Opinion{
				Kind:        models.KindDoubleBottom,
				Direction:   models.Bullish,
				Confidence:  75,
				Description: fmt.Sprintf("Double bottom at $%.4f - bullish signal", a),
			})
		}
	}
	return out
}

// Channel fits the last 20 closes and reports a channel when R² > 0.7.
func Channel(candles []models.Candle) []models.Opinion {
	if len(candles) < channelWindow {
		return nil
	}
	closes := features.Closes(features.Tail(candles, channelWindow))
	slope, intercept := features.LinearFit(closes)
	r2 := features.RSquared(closes, slope, intercept)
	if r2 <= channelMinR2 {
		return nil
	}

	switch {
	case slope > channelSlopeEps:
		return []models.Opinion{{
			Kind:        models.KindChannelUp,
			Direction:   models.Bullish,
			Confidence:  math.Round(r2 * 80),
			Description: "Rising channel - clear trend",
		}}
	case slope < -channelSlopeEps:
		return []models.Opinion{{
			Kind:        models.KindChannelDown,
			Direction:   models.Bearish,
			Confidence:  math.Round(r2 * 80),
			Description: "Falling channel - clear trend",
		}}
	default:
		return []models.Opinion{{
			Kind:        models.KindChannelLateral,
			Direction:   models.Neutral,
			Confidence:  math.Round(r2 * 70),
			Description: "Sideways channel - wait for breakout",
		}}
	}
}

// Candlesticks inspects the previous and latest candle.
func Candlesticks(candles []models.Candle) []models.Opinion {
	if len(candles) < candleMinWindow {
		return nil
	}
	prev := candles[len(candles)-2]
	last := candles[len(candles)-1]

	var out []models.Opinion
	if prev.Red() && last.Green() && last.Open < prev.Close && last.Close > prev.Open {
		out = append(out, models.Opinion{
			Kind:        models.KindEngulfingBullish,
			Direction:   models.Bullish,
			Confidence:  80,
			Description: "Bullish engulfing - possible upside reversal",
		})
	}
	if prev.Green() && last.Red() && last.Open > prev.Close && last.Close < prev.Open {
		out = append(out, models.Opinion{
			Kind:        models.KindEngulfingBearish,
			Direction:   models.Bearish,
			Confidence:  80,
			Description: "Bearish engulfing - possible downside reversal",
		})
	}

	rng := last.Range()
	if rng <= 0 {
		return out
	}
	body := last.Body()
	upper := last.UpperShadow()
	lower := last.LowerShadow()

	if lower >= 2*body && upper < 0.5*body && body < 0.3*rng {
		out = append(out, models.Opinion{
			Kind:        models.KindHammer,
			Direction:   models.Bullish,
			Confidence:  75,
			Description: "Hammer - bullish reversal signal",
		})
	}
	if upper >= 2*body && lower < 0.5*body && body < 0.3*rng {
		out = append(out, models.Opinion{
			Kind:        models.KindShootingStar,
			Direction:   models.Bearish,
			Confidence:  75,
			Description: "Shooting star - bearish reversal signal",
		})
	}
	if body/rng < 0.1 {
		out = append(out, models.Opinion{
			Kind:        models.KindDoji,
			Direction:   models.Neutral,
			Confidence:  60,
			Description: "Doji - indecision, possible trend change",
		})
	}
	return out
}

// Signal sums directional confidences and fires a side at 70 or more.
func Signal(opinions []models.Opinion) models.Verdict {
	v := models.Verdict{Side: models.None}
	for _, o := range opinions {
		switch o.Direction {
		case models.Bullish:
			v.Bullish += o.Confidence
			v.Reasons = append(v.Reasons, "✅ "+o.Description)
		case models.Bearish:
			v.Bearish += o.Confidence
			v.Reasons = append(v.Reasons, "🔻 "+o.Description)
		}
	}

	switch {
	case v.Bullish > v.Bearish && v.Bullish >= signalThreshold:
		v.Side = models.Long
		v.Confidence = math.Min(v.Bullish, signalConfidence)
	case v.Bearish > v.Bullish && v.Bearish >= signalThreshold:
		v.Side = models.Short
		v.Confidence = math.Min(v.Bearish, signalConfidence)
	default:
		v.Reasons = nil
	}
	return v
}
