package models

// Direction is the bias of a single opinion.
type Direction string

const (
	Bullish Direction = "BULLISH"
	Bearish Direction = "BEARISH"
	Neutral Direction = "NEUTRAL"
)

// Kind tags what produced an opinion.
type Kind string

const (
	KindTriangleAscending  Kind = "TRIANGLE_ASCENDING"
	KindTriangleDescending Kind = "TRIANGLE_DESCENDING"
	KindTriangleSymmetric  Kind = "TRIANGLE_SYMMETRIC"
	KindDoubleTop          Kind = "DOUBLE_TOP"
	KindDoubleBottom       Kind = "DOUBLE_BOTTOM"
	KindChannelUp          Kind = "CHANNEL_UP"
	KindChannelDown        Kind = "CHANNEL_DOWN"
	KindChannelLateral     Kind = "CHANNEL_LATERAL"
	KindEngulfingBullish   Kind = "ENGULFING_BULLISH"
	KindEngulfingBearish   Kind = "ENGULFING_BEARISH"
	KindHammer             Kind = "HAMMER"
	KindShootingStar       Kind = "SHOOTING_STAR"
	KindDoji               Kind = "DOJI"

	KindFunding   Kind = "FUNDING"
	KindLongShort Kind = "LONG_SHORT_RATIO"

	KindVolumeSpike Kind = "VOLUME_SPIKE"
)

// Opinion is one detector verdict. Confidence is within [0,100].
type Opinion struct {
	Kind        Kind      `json:"kind"`
	Direction   Direction `json:"direction"`
	Confidence  float64   `json:"confidence"`
	Description string    `json:"description"`
}

// Directional reports whether the opinion leans bullish or bearish.
func (o Opinion) Directional() bool {
	return o.Direction == Bullish || o.Direction == Bearish
}

// Side is the trade direction of an aggregated verdict.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
	None  Side = "NONE"
)

// Bias maps a side to the opinion direction that supports it.
func (s Side) Bias() Direction {
	switch s {
	case Long:
		return Bullish
	case Short:
		return Bearish
	default:
		return Neutral
	}
}

// Verdict is the aggregated output of a lens that can fire a side.
// Reasons are ready-to-print lines.
type Verdict struct {
	Side       Side     `json:"side"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons,omitempty"`
	Bullish    float64  `json:"bullish_score"`
	Bearish    float64  `json:"bearish_score"`
}

// Fired reports whether the verdict carries a side.
func (v Verdict) Fired() bool { return v.Side == Long || v.Side == Short }
