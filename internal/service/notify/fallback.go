package notify

import (
	"context"
	"errors"
	"fmt"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	domsvc "FinSignal/internal/domain/service"
	"FinSignal/pkg/logger"
)

var _ domsvc.Notifier = (*Fallback)(nil)

// Fallback tries channels in order and stops at the first that accepts
// the message.
type Fallback struct {
	channels []domsvc.Notifier
	metrics  domrepo.Metrics
	log      *logger.Logger
}

func NewFallback(m domrepo.Metrics, l *logger.Logger, channels ...domsvc.Notifier) *Fallback {
	if l == nil {
		l = logger.NewNop()
	}
	return &Fallback{channels: channels, metrics: m, log: l}
}

func (f *Fallback) Name() string { return "fallback" }

func (f *Fallback) Notify(ctx context.Context, sig *models.ConsolidatedSignal, text string) error {
	if len(f.channels) == 0 {
		return ErrNotConfigured
	}
	var errs []error
	for _, ch := range f.channels {
		err := ch.Notify(ctx, sig, text)
		if f.metrics != nil {
			f.metrics.RecordNotification(ch.Name(), err == nil)
		}
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.log.Warn("notifier failed, trying next",
			logger.String("channel", ch.Name()),
			logger.String("symbol", sig.Symbol),
			logger.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
	}
	return errors.Join(errs...)
}
