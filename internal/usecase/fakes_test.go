package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
)

type fakeMarket struct {
	mu         sync.Mutex
	price      float64
	priceErr   error
	candles    []models.Candle
	candlesErr error
	priceCalls int
}

func (m *fakeMarket) Candles(context.Context, string, domrepo.Timeframe, int) ([]models.Candle, error) {
	return m.candles, m.candlesErr
}

func (m *fakeMarket) Price(context.Context, string) (float64, error) {
	m.mu.Lock()
	m.priceCalls++
	m.mu.Unlock()
	return m.price, m.priceErr
}

type fakePatterns struct{ report models.PatternReport }

func (p fakePatterns) Analyze([]models.Candle) models.PatternReport { return p.report }

type fakeTrend struct {
	conf models.TrendConfirmation
	err  error
}

func (t fakeTrend) Confirm(context.Context, string) (models.TrendConfirmation, error) {
	return t.conf, t.err
}

type fakeDerivatives struct {
	report models.DerivativesReport
	err    error
}

func (d fakeDerivatives) Analyze(context.Context, string) (models.DerivativesReport, error) {
	return d.report, d.err
}

type fakeVolume struct {
	report models.VolumeReport
	err    error
}

func (v fakeVolume) Analyze(context.Context, string) (models.VolumeReport, error) {
	return v.report, v.err
}

type memCooldown struct {
	mu     sync.Mutex
	recs   map[string]*models.CooldownRecord
	locked map[string]bool
	putErr error
}

func newMemCooldown() *memCooldown {
	return &memCooldown{recs: map[string]*models.CooldownRecord{}, locked: map[string]bool{}}
}

func (s *memCooldown) Get(_ context.Context, symbol string) (*models.CooldownRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[symbol]
	if !ok {
		return nil, models.ErrNoRecord
	}
	cp := *r
	return &cp, nil
}

func (s *memCooldown) Put(_ context.Context, rec *models.CooldownRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	cp := *rec
	s.recs[rec.Symbol] = &cp
	return nil
}

func (s *memCooldown) List(context.Context) ([]*models.CooldownRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.CooldownRecord, 0, len(s.recs))
	for _, r := range s.recs {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *memCooldown) Lock(_ context.Context, symbol string, _ time.Duration) (func(), bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked[symbol] {
		return nil, false, nil
	}
	s.locked[symbol] = true
	return func() {
		s.mu.Lock()
		delete(s.locked, symbol)
		s.mu.Unlock()
	}, true, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	err   error
	sent  []string
	texts []string
}

func (n *fakeNotifier) Name() string { return "fake" }

func (n *fakeNotifier) Notify(_ context.Context, sig *models.ConsolidatedSignal, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sig.Symbol)
	n.texts = append(n.texts, text)
	return nil
}

type recMetrics struct {
	mu      sync.Mutex
	signals []string
	errors  map[string]int
	cycles  [][2]int
	prices  map[string]float64
}

func newRecMetrics() *recMetrics {
	return &recMetrics{errors: map[string]int{}, prices: map[string]float64{}}
}

func (m *recMetrics) RecordSignal(symbol, side string, _ int) {
	m.mu.Lock()
	m.signals = append(m.signals, symbol+":"+side)
	m.mu.Unlock()
}
func (m *recMetrics) RecordNotification(string, bool) {}
func (m *recMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}
func (m *recMetrics) RecordLastPrice(symbol string, p float64) {
	m.mu.Lock()
	m.prices[symbol] = p
	m.mu.Unlock()
}
func (m *recMetrics) RecordLatency(string, float64) {}
func (m *recMetrics) RecordCycle(instruments, signals int) {
	m.mu.Lock()
	m.cycles = append(m.cycles, [2]int{instruments, signals})
	m.mu.Unlock()
}

type recPublisher struct {
	mu     sync.Mutex
	events []*models.SignalEvent
	err    error
}

func (p *recPublisher) PublishSignal(_ context.Context, ev *models.SignalEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recPublisher) Close() error { return nil }

func longSignal(symbol string, confidence int) *models.ConsolidatedSignal {
	return &models.ConsolidatedSignal{
		Symbol:     symbol,
		Price:      100,
		Side:       models.Long,
		Confidence: confidence,
		Reasons:    []string{"🟢 pattern"},
		TakeProfit: 110,
		StopLoss:   95,
	}
}

func nCandles(n int) []models.Candle {
	out := make([]models.Candle, n)
	t0 := time.Unix(1700000000, 0).UTC()
	for i := range out {
		out[i] = models.Candle{OpenTime: t0.Add(time.Duration(i) * time.Hour), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10}
	}
	return out
}
