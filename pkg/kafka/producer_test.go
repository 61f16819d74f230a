package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestProducerConfigValidation(t *testing.T) {
	if _, err := NewProducer(); err == nil {
		t.Fatalf("expected brokers error")
	}
	if _, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithCompression("brotli")); err == nil {
		t.Fatalf("expected compression error")
	}
	if _, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithRequiredAcks(2)); err == nil {
		t.Fatalf("expected acks error")
	}
	p, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithCompression("zstd"), WithHashByKey(true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = p.Close()
}

func TestBuildMessage(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &Producer{now: func() time.Time { return fixed }}

	ctx := WithTraceID(context.Background(), "req-7")
	msg, err := p.buildMessage(ctx, "crypto.signals", []byte("BTCUSDT"), map[string]int{"confidence": 80})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if msg.Topic != "crypto.signals" || string(msg.Key) != "BTCUSDT" || !msg.Time.Equal(fixed) {
		t.Fatalf("unexpected message %+v", msg)
	}
	var body map[string]int
	if err := json.Unmarshal(msg.Value, &body); err != nil || body["confidence"] != 80 {
		t.Fatalf("unexpected value %s (%v)", msg.Value, err)
	}
	if ExtractTraceID(msg) != "req-7" {
		t.Fatalf("trace id not propagated: %+v", msg.Headers)
	}

	raw, err := p.buildMessage(context.Background(), "t", nil, "plain")
	if err != nil || string(raw.Value) != "plain" || len(raw.Headers) != 0 {
		t.Fatalf("unexpected raw message %+v (%v)", raw, err)
	}
}

func TestEncodeRejectsUnmarshalable(t *testing.T) {
	if _, err := encode(make(chan int)); err == nil {
		t.Fatalf("expected marshal error")
	}
}
