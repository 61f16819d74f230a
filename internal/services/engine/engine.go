// Package engine merges per-lens opinions into one bounded, deterministic
// trade signal.
package engine

import (
	"math"

	"FinSignal/internal/domain/models"
)

const maxConfidence = 95

// Config holds the firing threshold and the take-profit/stop-loss offsets
// in percent.
type Config struct {
	MinConfidence int
	TakeProfitPct float64
	StopLossPct   float64
}

func DefaultConfig() Config {
	return Config{MinConfidence: 70, TakeProfitPct: 10, StopLossPct: 5}
}

// Inputs are the lens outputs for one instrument. Nil means no opinion.
type Inputs struct {
	Symbol      string
	Price       float64
	Patterns    *models.PatternReport
	Derivatives *models.DerivativesReport
	Volume      *models.VolumeReport
	Trend       *models.TrendConfirmation
}

type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

func (e *Engine) Config() Config { return e.cfg }

// Consolidate scores the inputs. Reasons keep pattern, derivative, volume
// order and are cut to models.MaxReasons. The trend confirmation is carried
// as context and does not score.
func (e *Engine) Consolidate(in Inputs) *models.ConsolidatedSignal {
	sig := &models.ConsolidatedSignal{
		Symbol:      in.Symbol,
		Price:       in.Price,
		Side:        models.None,
		Reasons:     []string{},
		Patterns:    in.Patterns,
		Trend:       in.Trend,
		Derivatives: in.Derivatives,
		Volume:      in.Volume,
	}

	var bull, bear float64
	addVerdict := func(v models.Verdict) {
		switch v.Side {
		case models.Long:
			bull += v.Confidence
		case models.Short:
			bear += v.Confidence
		default:
			return
		}
		sig.Reasons = append(sig.Reasons, v.Reasons...)
	}

	if in.Patterns != nil {
		addVerdict(in.Patterns.Verdict)
	}
	if in.Derivatives != nil {
		addVerdict(in.Derivatives.Verdict)
	}
	if in.Volume != nil {
		switch {
		case in.Volume.Spike != nil && in.Volume.Spike.Opinion.Directional():
			op := in.Volume.Spike.Opinion
			if op.Direction == models.Bullish {
				bull += op.Confidence
			} else {
				bear += op.Confidence
			}
			sig.Reasons = append(sig.Reasons, "📊 "+op.Description)
		case in.Volume.Ratio != nil && in.Volume.Ratio.IsMove():
			sig.Reasons = append(sig.Reasons, "📊 "+in.Volume.Ratio.Interpretation)
		}
	}

	sig.BullishScore, sig.BearishScore = bull, bear
	sig.Confidence = Confidence(math.Max(bull, bear))

	switch {
	case bull > bear && sig.Confidence >= e.cfg.MinConfidence:
		sig.Side = models.Long
		sig.TakeProfit = in.Price * (1 + e.cfg.TakeProfitPct/100)
		sig.StopLoss = in.Price * (1 - e.cfg.StopLossPct/100)
	case bear > bull && sig.Confidence >= e.cfg.MinConfidence:
		sig.Side = models.Short
		sig.TakeProfit = in.Price * (1 - e.cfg.TakeProfitPct/100)
		sig.StopLoss = in.Price * (1 + e.cfg.StopLossPct/100)
	}

	if len(sig.Reasons) > models.MaxReasons {
		sig.Reasons = sig.Reasons[:models.MaxReasons]
	}
	return sig
}

// Confidence dampens a raw score: floor(total/2)+30 capped at 95, and 0
// when nothing scored.
func Confidence(total float64) int {
	if total <= 0 {
		return 0
	}
	c := int(math.Floor(total/2)) + 30
	if c > maxConfidence {
		return maxConfidence
	}
	return c
}
