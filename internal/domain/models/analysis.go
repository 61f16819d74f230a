package models

// Level is a support or resistance price at a window index.
type Level struct {
	Index int     `json:"index"`
	Price float64 `json:"price"`
}

// PatternReport is the full output of the pattern recognizer.
type PatternReport struct {
	Support    []Level   `json:"support"`
	Resistance []Level   `json:"resistance"`
	Patterns   []Opinion `json:"patterns"`
	Verdict    Verdict   `json:"verdict"`
}

// TimeframeTrend is the candle color reading of one timeframe tier.
type TimeframeTrend struct {
	Timeframe string        `json:"timeframe"`
	Trend     Direction     `json:"trend"`
	Colors    []CandleColor `json:"colors"`
	Green     int           `json:"green"`
	Red       int           `json:"red"`
	Streak    int           `json:"streak"`
	// Color of the newest candle.
	Color CandleColor `json:"color"`
}

// CandleColor is green (close > open), red (close < open) or neutral.
type CandleColor string

const (
	ColorGreen   CandleColor = "green"
	ColorRed     CandleColor = "red"
	ColorNeutral CandleColor = "neutral"
)

// ColorOf classifies a candle.
func ColorOf(c Candle) CandleColor {
	switch {
	case c.Green():
		return ColorGreen
	case c.Red():
		return ColorRed
	default:
		return ColorNeutral
	}
}

// TrendConfirmation is the cross-timeframe confirmation result.
type TrendConfirmation struct {
	Side   Side           `json:"side"`
	Long   TimeframeTrend `json:"long"`
	Medium TimeframeTrend `json:"medium"`
	Short  TimeframeTrend `json:"short"`
}

// OIState classifies an open interest change.
type OIState string

const (
	OIStrongTrend OIState = "STRONG_TREND"
	OITrend       OIState = "TREND"
	OIWeak        OIState = "WEAK"
	OINeutral     OIState = "NEUTRAL"
)

// FundingReading is the latest funding rate in percent.
type FundingReading struct {
	RatePct float64 `json:"rate_pct"`
	Opinion Opinion `json:"opinion"`
}

// OpenInterestReading compares current open interest with the start of
// the trailing history window.
type OpenInterestReading struct {
	Current        float64 `json:"current"`
	ChangePct      float64 `json:"change_pct"`
	State          OIState `json:"state"`
	Confidence     float64 `json:"confidence"`
	Interpretation string  `json:"interpretation"`
}

// LongShortReading is the top trader account ratio.
type LongShortReading struct {
	Ratio    float64 `json:"ratio"`
	LongPct  float64 `json:"long_pct"`
	ShortPct float64 `json:"short_pct"`
	Opinion  Opinion `json:"opinion"`
}

// DerivativesReport groups the optional derivative metrics.
type DerivativesReport struct {
	Funding      *FundingReading      `json:"funding,omitempty"`
	OpenInterest *OpenInterestReading `json:"open_interest,omitempty"`
	LongShort    *LongShortReading    `json:"long_short,omitempty"`
	Verdict      Verdict              `json:"verdict"`
}

// VolumeState classifies the current volume against its history.
type VolumeState string

const (
	VolumeStrongMove VolumeState = "STRONG_MOVE"
	VolumeMove       VolumeState = "MOVE"
	VolumeCalm       VolumeState = "CALM"
	VolumeNormal     VolumeState = "NORMAL"
)

// VolumeRatio compares the latest volume to the preceding mean.
type VolumeRatio struct {
	Current        float64     `json:"current"`
	Average        float64     `json:"average"`
	Ratio          float64     `json:"ratio"`
	ZScore         float64     `json:"z_score"`
	State          VolumeState `json:"state"`
	Confidence     float64     `json:"confidence"`
	Interpretation string      `json:"interpretation"`
}

// IsMove reports a MOVE or STRONG_MOVE reading.
func (v VolumeRatio) IsMove() bool {
	return v.State == VolumeMove || v.State == VolumeStrongMove
}

// VolumeSpike is a detected short timeframe spike. Opinion carries its
// direction, taken from the latest candle's price change.
type VolumeSpike struct {
	Ratio          float64 `json:"ratio"`
	PriceChangePct float64 `json:"price_change_pct"`
	Opinion        Opinion `json:"opinion"`
}

// VolumeZone is one price bin of the volume profile.
type VolumeZone struct {
	Low    float64 `json:"low"`
	High   float64 `json:"high"`
	Volume float64 `json:"volume"`
}

// VolumeProfile lists the highest volume bins.
type VolumeProfile struct {
	Zones          []VolumeZone `json:"zones"`
	CurrentPrice   float64      `json:"current_price"`
	InHighZone     bool         `json:"in_high_zone"`
	Interpretation string       `json:"interpretation"`
}

// VolumeReport groups the volume sub-analyses. Nil fields mean no opinion.
type VolumeReport struct {
	Ratio   *VolumeRatio   `json:"ratio,omitempty"`
	Spike   *VolumeSpike   `json:"spike,omitempty"`
	Profile *VolumeProfile `json:"profile,omitempty"`
}
