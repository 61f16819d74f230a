package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/pkg/logger"
)

type (
	InstrumentLister interface {
		Instruments(ctx context.Context) ([]string, error)
	}
	SignalEvaluator interface {
		Evaluate(ctx context.Context, symbol string) (*models.ConsolidatedSignal, error)
	}
	SignalEmitter interface {
		Emit(ctx context.Context, sig *models.ConsolidatedSignal) error
	}
	StatsSource interface {
		Stats(ctx context.Context) (models.TrackerStats, error)
	}
)

type ScannerConfig struct {
	Interval      time.Duration
	RetryBackoff  time.Duration
	Workers       int
	EmitPause     time.Duration
	MinConfidence int
}

// CycleResult summarises one pass over the universe.
type CycleResult struct {
	ID          string
	Instruments int
	Evaluated   int
	Fired       int
	Emitted     int
	Skipped     int
	Failed      int
	Duration    time.Duration
}

// Scanner evaluates the universe on a fixed interval and emits the
// strongest signals first.
type Scanner struct {
	universe  InstrumentLister
	evaluator SignalEvaluator
	emitter   SignalEmitter
	stats     StatsSource
	cfg       ScannerConfig
	metrics   domrepo.Metrics
	log       *logger.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewScanner(
	universe InstrumentLister,
	evaluator SignalEvaluator,
	emitter SignalEmitter,
	stats StatsSource,
	cfg ScannerConfig,
	m domrepo.Metrics,
	l *logger.Logger,
) *Scanner {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 10 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.EmitPause < 0 {
		cfg.EmitPause = 0
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &Scanner{
		universe:  universe,
		evaluator: evaluator,
		emitter:   emitter,
		stats:     stats,
		cfg:       cfg,
		metrics:   orNop(m),
		log:       l,
		sleep:     sleepCtx,
	}
}

// Run scans until ctx is cancelled. A cycle that cannot enumerate the
// universe is retried after RetryBackoff.
func (s *Scanner) Run(ctx context.Context) error {
	if s.stats != nil {
		if st, err := s.stats.Stats(ctx); err == nil {
			s.log.Info("scanner starting",
				logger.Int("tracked", st.Total),
				logger.Int("longs", st.Longs),
				logger.Int("shorts", st.Shorts),
				logger.Duration("interval", s.cfg.Interval))
		} else {
			s.log.Warn("tracker stats unavailable", logger.Error(err))
		}
	}

	for {
		wait := s.cfg.Interval
		res, err := s.RunCycle(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			s.metrics.RecordError("scan_cycle")
			s.log.Error("scan cycle failed", logger.Error(err), logger.Duration("retry_in", s.cfg.RetryBackoff))
			wait = s.cfg.RetryBackoff
		default:
			s.log.Info("scan cycle done",
				logger.String("cycle", res.ID),
				logger.Int("instruments", res.Instruments),
				logger.Int("fired", res.Fired),
				logger.Int("emitted", res.Emitted),
				logger.Int("failed", res.Failed),
				logger.Duration("took", res.Duration))
		}
		if err := s.sleep(ctx, wait); err != nil {
			return nil
		}
	}
}

// RunCycle evaluates every instrument once and emits fired signals in
// descending confidence order.
func (s *Scanner) RunCycle(ctx context.Context) (*CycleResult, error) {
	start := time.Now()
	res := &CycleResult{ID: uuid.NewString()}

	symbols, err := s.universe.Instruments(ctx)
	if err != nil {
		return nil, err
	}
	res.Instruments = len(symbols)

	signals, failed := s.evaluateAll(ctx, symbols)
	res.Evaluated = len(symbols) - failed
	res.Failed = failed
	res.Fired = len(signals)

	sort.SliceStable(signals, func(i, j int) bool {
		if signals[i].Confidence != signals[j].Confidence {
			return signals[i].Confidence > signals[j].Confidence
		}
		return signals[i].Symbol < signals[j].Symbol
	})

	for _, sig := range signals {
		if ctx.Err() != nil {
			break
		}
		err := s.emitter.Emit(ctx, sig)
		switch {
		case err == nil:
			res.Emitted++
			if s.cfg.EmitPause > 0 {
				_ = s.sleep(ctx, s.cfg.EmitPause)
			}
		case errors.Is(err, models.ErrCooldown), errors.Is(err, models.ErrLocked):
			res.Skipped++
			s.log.Debug("emit skipped", logger.String("symbol", sig.Symbol), logger.Error(err))
		default:
			s.metrics.RecordError("emit")
			s.log.Error("emit failed", logger.String("symbol", sig.Symbol), logger.Error(err))
		}
	}

	res.Duration = time.Since(start)
	s.metrics.RecordCycle(res.Instruments, res.Emitted)
	return res, nil
}

func (s *Scanner) evaluateAll(ctx context.Context, symbols []string) ([]*models.ConsolidatedSignal, int) {
	jobs := make(chan string)
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		signals []*models.ConsolidatedSignal
		failed  int
	)

	workers := s.cfg.Workers
	if workers > len(symbols) {
		workers = len(symbols)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range jobs {
				sig, err := s.evaluateRecovered(ctx, sym)
				mu.Lock()
				switch {
				case err != nil:
					failed++
				case sig.Fired() && sig.Confidence >= s.cfg.MinConfidence:
					signals = append(signals, sig)
				}
				mu.Unlock()
				if err != nil {
					s.log.Warn("evaluation failed", logger.String("symbol", sym), logger.Error(err))
				}
			}
		}()
	}

feed:
	for _, sym := range symbols {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- sym:
		}
	}
	close(jobs)
	wg.Wait()
	return signals, failed
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// evaluateRecovered turns a panic inside one instrument's evaluation into a
// failure of that instrument.
func (s *Scanner) evaluateRecovered(ctx context.Context, symbol string) (sig *models.ConsolidatedSignal, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordError("evaluate_panic")
			sig, err = nil, fmt.Errorf("evaluate %s: panic: %v", symbol, r)
		}
	}()
	return s.evaluator.Evaluate(ctx, symbol)
}
