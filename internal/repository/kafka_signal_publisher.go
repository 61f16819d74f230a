package repository

import (
	"context"
	"fmt"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
)

// MessageProducer is the subset of the kafka producer the publisher needs.
type MessageProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaPublisher forwards delivered signals and aggregated logs to Kafka.
type KafkaPublisher struct {
	producer MessageProducer
	topic    string
}

var _ repository.SignalPublisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher publishes signal events to topic, keyed by symbol.
func NewKafkaPublisher(producer MessageProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) PublishSignal(ctx context.Context, ev *models.SignalEvent) error {
	if ev == nil || ev.Signal == nil {
		return fmt.Errorf("publish signal: %w", models.ErrMalformedSignal)
	}
	return p.producer.Publish(ctx, p.topic, []byte(ev.Signal.Symbol), ev)
}

// PublishMessage lets the log collector ship aggregated entries.
func (p *KafkaPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
