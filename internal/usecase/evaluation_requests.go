package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	pkgkafka "FinSignal/pkg/kafka"
	"FinSignal/pkg/logger"
)

var _ pkgkafka.MessageHandler = (*EvaluationRequestHandler)(nil)

// EvaluationRequestHandler serves on-demand evaluations requested over
// kafka. Message schema: {"symbol": "BTCUSDT", "emit": true}.
type EvaluationRequestHandler struct {
	topic     string
	evaluator SignalEvaluator
	emitter   SignalEmitter
	metrics   domrepo.Metrics
	log       *logger.Logger
}

func NewEvaluationRequestHandler(topic string, evaluator SignalEvaluator, emitter SignalEmitter, m domrepo.Metrics, l *logger.Logger) *EvaluationRequestHandler {
	if l == nil {
		l = logger.NewNop()
	}
	return &EvaluationRequestHandler{topic: topic, evaluator: evaluator, emitter: emitter, metrics: orNop(m), log: l}
}

func (h *EvaluationRequestHandler) Topic() string { return h.topic }

func (h *EvaluationRequestHandler) Handle(ctx context.Context, b []byte) error {
	var req models.EvaluationRequest
	if err := json.Unmarshal(b, &req); err != nil {
		h.metrics.RecordError("request_unmarshal")
		return fmt.Errorf("decode evaluation request: %w", err)
	}
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Symbol == "" {
		h.metrics.RecordError("request_invalid")
		return errors.New("evaluation request without symbol")
	}

	sig, err := h.evaluator.Evaluate(ctx, req.Symbol)
	if err != nil {
		return err
	}
	h.log.Info("on-demand evaluation",
		logger.String("trace_id", pkgkafka.TraceID(ctx)),
		logger.String("symbol", sig.Symbol),
		logger.String("side", string(sig.Side)),
		logger.Int("confidence", sig.Confidence))

	if !req.Emit || !sig.Fired() || h.emitter == nil {
		return nil
	}
	err = h.emitter.Emit(ctx, sig)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrCooldown), errors.Is(err, models.ErrLocked), errors.Is(err, models.ErrMalformedSignal):
		h.log.Debug("on-demand emit skipped", logger.String("symbol", sig.Symbol), logger.Error(err))
		return nil
	default:
		return err
	}
}
