package middleware

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
)

// TickerSink consumes validated tickers.
type TickerSink interface {
	Update(ctx context.Context, t *models.Ticker) error
}

// TickerPipeline sits between the exchange stream and the live price
// cache. It validates, throttles per symbol and buffers when the sink
// rejects an update.
type TickerPipeline struct {
	sink     TickerSink
	metrics  domrepo.Metrics
	maxRPS   int
	bufSize  int
	bufCh    chan *models.Ticker
	stopCh   chan struct{}
	started  bool
	mu       sync.Mutex
	lastSeen map[string]time.Time
	now      func() time.Time
}

type PipelineOption func(*TickerPipeline)

// WithMaxRPS sets the max accepted tickers per second per symbol.
func WithMaxRPS(n int) PipelineOption {
	return func(p *TickerPipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the retry buffer size.
func WithBufferSize(n int) PipelineOption {
	return func(p *TickerPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithPipelineClock replaces time.Now.
func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *TickerPipeline) { p.now = now }
}

func NewTickerPipeline(sink TickerSink, metrics domrepo.Metrics, opts ...PipelineOption) *TickerPipeline {
	p := &TickerPipeline{
		sink:     sink,
		metrics:  metrics,
		maxRPS:   4,
		bufSize:  1000,
		stopCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.Ticker, p.bufSize)
	return p
}

// Start launches the retry loop for buffered tickers.
func (p *TickerPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	stop := p.stopCh
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case t := <-p.bufCh:
				if err := p.sink.Update(ctx, t); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					select {
					case p.bufCh <- t:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop ends the retry loop.
func (p *TickerPipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	close(p.stopCh)
	p.stopCh = make(chan struct{})
}

// Process validates and forwards t. Throttled tickers are dropped without
// error.
func (p *TickerPipeline) Process(ctx context.Context, t *models.Ticker) error {
	start := p.now()
	if err := validateTicker(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.allow(t.Symbol, start) {
		return nil
	}

	if err := p.sink.Update(ctx, t); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.bufCh <- t:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline sink: %w", err)
	}
	p.metrics.RecordLastPrice(t.Symbol, t.Close)
	return nil
}

// Buffered returns the number of tickers waiting for retry.
func (p *TickerPipeline) Buffered() int { return len(p.bufCh) }

func validateTicker(t *models.Ticker) error {
	if t == nil {
		return fmt.Errorf("ticker nil")
	}
	if t.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if t.EventTime.IsZero() {
		return fmt.Errorf("event time missing")
	}
	if !(t.Close > 0) || math.IsInf(t.Close, 0) {
		return fmt.Errorf("invalid close %v", t.Close)
	}
	if t.Volume < 0 || t.QuoteVolume < 0 {
		return fmt.Errorf("negative volume")
	}
	return nil
}

func (p *TickerPipeline) allow(symbol string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.lastSeen[symbol]
	if ok && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
