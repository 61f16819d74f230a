package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"FinSignal/internal/domain/models"
	domsvc "FinSignal/internal/domain/service"
	"FinSignal/pkg/logger"
	"FinSignal/pkg/queue"
)

// DeliveryJobType tags queued signal deliveries.
const DeliveryJobType = "signal.deliver"

// Delivery is the queued payload.
type Delivery struct {
	ID         string                     `json:"id"`
	Signal     *models.ConsolidatedSignal `json:"signal"`
	Text       string                     `json:"text"`
	EnqueuedAt time.Time                  `json:"enqueued_at"`
}

var _ domsvc.Notifier = (*Queued)(nil)

// Queued hands messages to a job queue. A message counts as accepted once
// it is enqueued; DeliveryJob performs the send with the queue's retries.
type Queued struct {
	q queue.QueueService
}

func NewQueued(q queue.QueueService) *Queued {
	return &Queued{q: q}
}

func (n *Queued) Name() string { return "queue" }

func (n *Queued) Notify(ctx context.Context, sig *models.ConsolidatedSignal, text string) error {
	d := Delivery{ID: uuid.NewString(), Signal: sig, Text: text, EnqueuedAt: time.Now().UTC()}
	if err := n.q.PublishMessage(ctx, DeliveryJobType, d); err != nil {
		return fmt.Errorf("enqueue %s: %w", sig.Symbol, err)
	}
	return nil
}

var _ queue.Job = (*DeliveryJob)(nil)

// DeliveryJob sends queued messages through the wrapped notifier.
type DeliveryJob struct {
	next domsvc.Notifier
	log  *logger.Logger
}

func NewDeliveryJob(next domsvc.Notifier, l *logger.Logger) *DeliveryJob {
	if l == nil {
		l = logger.NewNop()
	}
	return &DeliveryJob{next: next, log: l}
}

func (j *DeliveryJob) Name() string { return "signal-delivery" }

func (j *DeliveryJob) Type() string { return DeliveryJobType }

func (j *DeliveryJob) Handle(ctx context.Context, payload interface{}) error {
	d, err := queue.ParsePayload[Delivery](payload)
	if err != nil {
		return err
	}
	if err := d.Signal.Validate(); err != nil {
		// Not retryable.
		j.log.Error("dropping malformed delivery", logger.String("id", d.ID), logger.Error(err))
		return nil
	}
	if err := j.next.Notify(ctx, d.Signal, d.Text); err != nil {
		return err
	}
	j.log.Debug("delivered",
		logger.String("id", d.ID),
		logger.String("symbol", d.Signal.Symbol),
		logger.Duration("queued_for", time.Since(d.EnqueuedAt)))
	return nil
}
