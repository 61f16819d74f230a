package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"FinSignal/internal/domain/models"
)

type sinkStub struct {
	mu   sync.Mutex
	got  []*models.Ticker
	fail bool
}

func (s *sinkStub) Update(_ context.Context, t *models.Ticker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink down")
	}
	s.got = append(s.got, t)
	return nil
}

type pipeMetrics struct {
	mu     sync.Mutex
	errors map[string]int
	prices map[string]float64
}

func newPipeMetrics() *pipeMetrics {
	return &pipeMetrics{errors: map[string]int{}, prices: map[string]float64{}}
}

func (m *pipeMetrics) RecordSignal(string, string, int) {}
func (m *pipeMetrics) RecordNotification(string, bool) {}
func (m *pipeMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}
func (m *pipeMetrics) RecordLastPrice(sym string, p float64) {
	m.mu.Lock()
	m.prices[sym] = p
	m.mu.Unlock()
}
func (m *pipeMetrics) RecordLatency(string, float64) {}
func (m *pipeMetrics) RecordCycle(int, int) {}

func tick(sym string, price float64) *models.Ticker {
	return &models.Ticker{Symbol: sym, EventTime: time.Unix(1700000000, 0), Close: price}
}

func TestPipelineRejectsInvalid(t *testing.T) {
	m := newPipeMetrics()
	p := NewTickerPipeline(&sinkStub{}, m)
	bad := []*models.Ticker{
		nil,
		{Symbol: "", EventTime: time.Now(), Close: 1},
		{Symbol: "BTCUSDT", Close: 1},
		{Symbol: "BTCUSDT", EventTime: time.Now(), Close: 0},
		{Symbol: "BTCUSDT", EventTime: time.Now(), Close: 1, Volume: -1},
	}
	for i, tk := range bad {
		if err := p.Process(context.Background(), tk); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
	if m.errors["pipeline_validate"] != len(bad) {
		t.Fatalf("unexpected validate count %d", m.errors["pipeline_validate"])
	}
}

func TestPipelineThrottlesPerSymbol(t *testing.T) {
	now := time.Unix(0, 0)
	sink := &sinkStub{}
	m := newPipeMetrics()
	p := NewTickerPipeline(sink, m, WithMaxRPS(2), WithPipelineClock(func() time.Time { return now }))

	ctx := context.Background()
	_ = p.Process(ctx, tick("BTCUSDT", 1))
	_ = p.Process(ctx, tick("BTCUSDT", 2)) // within 500ms, dropped
	_ = p.Process(ctx, tick("ETHUSDT", 3))
	now = now.Add(600 * time.Millisecond)
	_ = p.Process(ctx, tick("BTCUSDT", 4))

	if len(sink.got) != 3 {
		t.Fatalf("expected 3 forwarded, got %d", len(sink.got))
	}
	if m.prices["BTCUSDT"] != 4 || m.prices["ETHUSDT"] != 3 {
		t.Fatalf("unexpected last prices %v", m.prices)
	}
}

func TestPipelineBuffersOnSinkFailure(t *testing.T) {
	sink := &sinkStub{fail: true}
	m := newPipeMetrics()
	p := NewTickerPipeline(sink, m, WithBufferSize(1))

	if err := p.Process(context.Background(), tick("BTCUSDT", 1)); err == nil {
		t.Fatalf("expected sink error")
	}
	_ = p.Process(context.Background(), tick("ETHUSDT", 1))
	if p.Buffered() != 1 {
		t.Fatalf("expected one buffered ticker, got %d", p.Buffered())
	}
	if m.errors["pipeline_buffer_full"] != 1 {
		t.Fatalf("expected buffer full, got %v", m.errors)
	}

	sink.mu.Lock()
	sink.fail = false
	sink.mu.Unlock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sink.mu.Lock()
		n := len(sink.got)
		sink.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("buffered ticker was not flushed")
}
