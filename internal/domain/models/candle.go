package models

import "time"

// Candle is one OHLCV bar. Windows are ordered oldest to newest and unique
// by OpenTime.
type Candle struct {
	Symbol   string    `json:"symbol,omitempty"`
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Green reports close > open.
func (c Candle) Green() bool { return c.Close > c.Open }

// Red reports close < open.
func (c Candle) Red() bool { return c.Close < c.Open }

// Body is the absolute open/close distance.
func (c Candle) Body() float64 {
	if c.Close > c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Range is high minus low.
func (c Candle) Range() float64 { return c.High - c.Low }

// UpperShadow is the wick above the body.
func (c Candle) UpperShadow() float64 {
	if c.Close > c.Open {
		return c.High - c.Close
	}
	return c.High - c.Open
}

// LowerShadow is the wick below the body.
func (c Candle) LowerShadow() float64 {
	if c.Close < c.Open {
		return c.Close - c.Low
	}
	return c.Open - c.Low
}

// Ticker is a rolling 24h snapshot pushed by the exchange stream.
type Ticker struct {
	Symbol      string    `json:"symbol"`
	EventTime   time.Time `json:"event_time"`
	Close       float64   `json:"close"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Volume      float64   `json:"volume"`
	QuoteVolume float64   `json:"quote_volume"`
}

// Instrument is a tradable contract with its 24h quote volume.
type Instrument struct {
	Symbol         string  `json:"symbol"`
	QuoteVolume24h float64 `json:"quote_volume_24h"`
}
