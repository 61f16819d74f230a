package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/internal/middleware"
	"FinSignal/pkg/logger"
)

var _ domrepo.MarketData = (*LivePrices)(nil)
var _ middleware.TickerSink = (*LivePrices)(nil)

type livePrice struct {
	price float64
	at    time.Time
}

// LivePrices serves streamed prices younger than maxAge and falls back to
// the wrapped source otherwise. Candles always come from the source.
type LivePrices struct {
	next   domrepo.MarketData
	maxAge time.Duration
	mu     sync.RWMutex
	prices map[string]livePrice
	now    func() time.Time
}

func NewLivePrices(next domrepo.MarketData, maxAge time.Duration) *LivePrices {
	if maxAge <= 0 {
		maxAge = 10 * time.Second
	}
	return &LivePrices{next: next, maxAge: maxAge, prices: make(map[string]livePrice), now: time.Now}
}

// Update stores the ticker close, ignoring out-of-order events.
func (l *LivePrices) Update(_ context.Context, t *models.Ticker) error {
	if t == nil || !(t.Close > 0) {
		return errors.New("invalid ticker")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.prices[t.Symbol]; ok && cur.at.After(t.EventTime) {
		return nil
	}
	l.prices[t.Symbol] = livePrice{price: t.Close, at: t.EventTime}
	return nil
}

func (l *LivePrices) Price(ctx context.Context, symbol string) (float64, error) {
	l.mu.RLock()
	lp, ok := l.prices[symbol]
	l.mu.RUnlock()
	if ok && l.now().Sub(lp.at) <= l.maxAge {
		return lp.price, nil
	}
	return l.next.Price(ctx, symbol)
}

func (l *LivePrices) Candles(ctx context.Context, symbol string, tf domrepo.Timeframe, limit int) ([]models.Candle, error) {
	return l.next.Candles(ctx, symbol, tf, limit)
}

// PriceCollector keeps LivePrices fed from the exchange ticker stream,
// reconnecting until ctx is done.
type PriceCollector struct {
	stream  domrepo.MarketStream
	pipe    *middleware.TickerPipeline
	metrics domrepo.Metrics
	log     *logger.Logger
	done    chan struct{}
	started atomic.Bool
	closing atomic.Bool
}

func NewPriceCollector(stream domrepo.MarketStream, pipe *middleware.TickerPipeline, m domrepo.Metrics, l *logger.Logger) *PriceCollector {
	if l == nil {
		l = logger.NewNop()
	}
	return &PriceCollector{stream: stream, pipe: pipe, metrics: orNop(m), log: l, done: make(chan struct{})}
}

// IsConnected reports the stream state.
func (c *PriceCollector) IsConnected() bool { return c.stream.IsConnected() }

// Start connects and consumes in the background.
func (c *PriceCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	c.pipe.Start(ctx)
	c.started.Store(true)
	go c.run(ctx)
	return nil
}

func (c *PriceCollector) run(ctx context.Context) {
	defer close(c.done)
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil || c.closing.Load() {
			return
		}
		c.metrics.RecordError("stream")
		c.log.Warn("ticker stream interrupted, reconnecting", logger.Error(err))
		for {
			rerr := c.stream.Reconnect(ctx)
			if rerr == nil {
				break
			}
			if ctx.Err() != nil || c.closing.Load() {
				return
			}
			c.log.Error("ticker stream reconnect failed", logger.Error(rerr))
		}
	}
}

func (c *PriceCollector) consume(ctx context.Context) error {
	tickers, errs := c.stream.Read(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if ok && err != nil {
				return err
			}
			errs = nil
		case t, ok := <-tickers:
			if !ok {
				return errors.New("ticker stream closed")
			}
			if err := c.pipe.Process(ctx, t); err != nil {
				c.log.Debug("ticker dropped", logger.Error(err))
			}
		}
	}
}

// Shutdown stops the pipeline and closes the stream.
func (c *PriceCollector) Shutdown(ctx context.Context) error {
	c.closing.Store(true)
	c.pipe.Stop()
	err := c.stream.Close()
	if !c.started.Load() {
		return err
	}
	select {
	case <-c.done:
	case <-ctx.Done():
	}
	return err
}
