package service

import (
	"context"

	"FinSignal/internal/domain/models"
)

// PatternAnalyzer recognizes chart and candlestick patterns in one window.
type PatternAnalyzer interface {
	Analyze(candles []models.Candle) models.PatternReport
}

// TrendAnalyzer confirms direction across three timeframe tiers.
type TrendAnalyzer interface {
	Confirm(ctx context.Context, symbol string) (models.TrendConfirmation, error)
}

// DerivativesAnalyzer reads funding, open interest and long/short ratio.
type DerivativesAnalyzer interface {
	Analyze(ctx context.Context, symbol string) (models.DerivativesReport, error)
}

// VolumeAnalyzer detects volume anomalies.
type VolumeAnalyzer interface {
	Analyze(ctx context.Context, symbol string) (models.VolumeReport, error)
}

// Notifier delivers a formatted signal message.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, sig *models.ConsolidatedSignal, text string) error
}
