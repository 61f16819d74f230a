package usecase

import (
	"context"
	"fmt"
	"time"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	domsvc "FinSignal/internal/domain/service"
	"FinSignal/internal/services/message"
	"FinSignal/pkg/logger"
)

// Emitter delivers fired signals through the cooldown gate.
type Emitter struct {
	tracker   *SignalTracker
	formatter *message.Formatter
	notifier  domsvc.Notifier
	publisher domrepo.SignalPublisher
	minConf   int
	metrics   domrepo.Metrics
	log       *logger.Logger
}

// NewEmitter wires the delivery path. publisher may be nil.
func NewEmitter(
	tracker *SignalTracker,
	formatter *message.Formatter,
	notifier domsvc.Notifier,
	publisher domrepo.SignalPublisher,
	minConfidence int,
	m domrepo.Metrics,
	l *logger.Logger,
) *Emitter {
	if l == nil {
		l = logger.NewNop()
	}
	return &Emitter{
		tracker:   tracker,
		formatter: formatter,
		notifier:  notifier,
		publisher: publisher,
		minConf:   minConfidence,
		metrics:   orNop(m),
		log:       l,
	}
}

// Emit formats and delivers sig when it is well formed, confident enough
// and its instrument is out of cooldown. It returns models.ErrCooldown or
// models.ErrLocked when the gate refuses, and records the emission only
// after a notifier accepted the message.
func (e *Emitter) Emit(ctx context.Context, sig *models.ConsolidatedSignal) error {
	if err := sig.Validate(); err != nil {
		e.metrics.RecordError("malformed_signal")
		return err
	}
	if sig.Confidence < e.minConf {
		return fmt.Errorf("%w: confidence %d below %d", models.ErrMalformedSignal, sig.Confidence, e.minConf)
	}

	text := e.formatter.Format(sig)
	err := e.tracker.TryEmit(ctx, sig, func(ctx context.Context) error {
		return e.notifier.Notify(ctx, sig, text)
	})
	if err != nil {
		return err
	}

	e.metrics.RecordSignal(sig.Symbol, string(sig.Side), sig.Confidence)
	e.log.Info("signal emitted",
		logger.String("symbol", sig.Symbol),
		logger.String("side", string(sig.Side)),
		logger.Int("confidence", sig.Confidence),
		logger.Float64("price", sig.Price))

	if e.publisher != nil {
		ev := &models.SignalEvent{Signal: sig, Message: text, SentAt: time.Now().UTC()}
		if perr := e.publisher.PublishSignal(ctx, ev); perr != nil {
			e.metrics.RecordError("publish_signal")
			e.log.Warn("publish signal event failed",
				logger.String("symbol", sig.Symbol),
				logger.Error(perr))
		}
	}
	return nil
}

// Tracker exposes the cooldown gate for status queries.
func (e *Emitter) Tracker() *SignalTracker { return e.tracker }
