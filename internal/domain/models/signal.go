package models

import (
	"fmt"
	"math"
	"time"
)

// MaxReasons bounds the reasons carried by a consolidated signal.
const MaxReasons = 5

// ConsolidatedSignal is the merged verdict for one instrument.
// Note: no transport concerns beyond json tags for the API and events.
type ConsolidatedSignal struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Price        float64   `json:"price"`
	Side         Side      `json:"side"`
	Confidence   int       `json:"confidence"`
	Reasons      []string  `json:"reasons"`
	TakeProfit   float64   `json:"take_profit,omitempty"`
	StopLoss     float64   `json:"stop_loss,omitempty"`
	BullishScore float64   `json:"bullish_score"`
	BearishScore float64   `json:"bearish_score"`
	GeneratedAt  time.Time `json:"generated_at"`

	Patterns    *PatternReport     `json:"patterns,omitempty"`
	Trend       *TrendConfirmation `json:"trend,omitempty"`
	Derivatives *DerivativesReport `json:"derivatives,omitempty"`
	Volume      *VolumeReport      `json:"volume,omitempty"`
	Errors      map[string]string  `json:"errors,omitempty"`
}

// Fired reports whether the signal carries a trade side.
func (s *ConsolidatedSignal) Fired() bool {
	return s != nil && (s.Side == Long || s.Side == Short)
}

// Validate checks that a fired signal is complete enough to deliver.
func (s *ConsolidatedSignal) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil signal", ErrMalformedSignal)
	}
	if s.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrMalformedSignal)
	}
	if !s.Fired() {
		return fmt.Errorf("%w: side %q", ErrMalformedSignal, s.Side)
	}
	if !(s.Price > 0) || math.IsInf(s.Price, 0) {
		return fmt.Errorf("%w: price %v", ErrMalformedSignal, s.Price)
	}
	if s.Confidence < 0 || s.Confidence > 95 {
		return fmt.Errorf("%w: confidence %d", ErrMalformedSignal, s.Confidence)
	}
	if len(s.Reasons) > MaxReasons {
		return fmt.Errorf("%w: %d reasons", ErrMalformedSignal, len(s.Reasons))
	}
	switch s.Side {
	case Long:
		if !(s.TakeProfit > s.Price && s.StopLoss < s.Price && s.StopLoss > 0) {
			return fmt.Errorf("%w: long levels tp=%v sl=%v", ErrMalformedSignal, s.TakeProfit, s.StopLoss)
		}
	case Short:
		if !(s.TakeProfit < s.Price && s.TakeProfit > 0 && s.StopLoss > s.Price) {
			return fmt.Errorf("%w: short levels tp=%v sl=%v", ErrMalformedSignal, s.TakeProfit, s.StopLoss)
		}
	}
	return nil
}

// CooldownRecord is the last emitted signal of an instrument.
type CooldownRecord struct {
	Symbol    string    `json:"symbol" db:"symbol"`
	Timestamp time.Time `json:"timestamp" db:"emitted_at"`
	Side      Side      `json:"signal" db:"side"`
	Price     float64   `json:"price" db:"price"`
}

// TrackerStats summarises stored cooldown records.
type TrackerStats struct {
	Total  int `json:"total_signals"`
	Longs  int `json:"longs"`
	Shorts int `json:"shorts"`
}

// SignalEvent is published for every delivered signal.
type SignalEvent struct {
	Signal  *ConsolidatedSignal `json:"signal"`
	Message string              `json:"message"`
	SentAt  time.Time           `json:"sent_at"`
}

// EvaluationRequest asks for an on-demand evaluation of one instrument.
type EvaluationRequest struct {
	Symbol string `json:"symbol"`
	// Emit routes a fired signal through the cooldown gate and notifiers.
	Emit bool `json:"emit"`
}
