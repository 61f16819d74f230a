package models

// Query shapes and responses of the signal API.

type SymbolRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,symbol"`
}

type PatternsRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,symbol"`
	TF     string `query:"tf" json:"tf" default:"1h" validate:"oneof=5m 15m 1h 4h 1d"`
	N      int    `query:"n" json:"n" default:"100" validate:"gte=50,lte=1000"`
}

// EvaluateResponse carries the formatted message when the signal fired.
type EvaluateResponse struct {
	Signal  *ConsolidatedSignal `json:"signal"`
	Message string              `json:"message,omitempty"`
}

// PatternsResponse is the recognizer output over the requested window.
type PatternsResponse struct {
	Symbol    string        `json:"symbol"`
	Timeframe string        `json:"timeframe"`
	Candles   int           `json:"candles"`
	Report    PatternReport `json:"report"`
}

// CooldownStatus describes the emission gate of one instrument.
type CooldownStatus struct {
	Symbol           string          `json:"symbol"`
	CanEmit          bool            `json:"can_emit"`
	RemainingSeconds int64           `json:"remaining_seconds"`
	CooldownSeconds  int64           `json:"cooldown_seconds"`
	Last             *CooldownRecord `json:"last,omitempty"`
}
