package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	domsvc "FinSignal/internal/domain/service"
	svcmetrics "FinSignal/internal/service/metrics"
	"FinSignal/internal/services/engine"
	"FinSignal/pkg/logger"
)

const minPatternCandles = 50

// EvaluatorConfig sets the pattern window and the per-call deadline.
type EvaluatorConfig struct {
	PatternTimeframe domrepo.Timeframe
	PatternCandles   int
	CallTimeout      time.Duration
}

func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{PatternTimeframe: domrepo.TF1h, PatternCandles: 100, CallTimeout: 15 * time.Second}
}

// Evaluator runs every lens for one instrument and consolidates them.
type Evaluator struct {
	market      domrepo.MarketData
	patterns    domsvc.PatternAnalyzer
	trend       domsvc.TrendAnalyzer
	derivatives domsvc.DerivativesAnalyzer
	volume      domsvc.VolumeAnalyzer
	engine      *engine.Engine
	cfg         EvaluatorConfig
	metrics     domrepo.Metrics
	log         *logger.Logger
	now         func() time.Time
}

func NewEvaluator(
	market domrepo.MarketData,
	patterns domsvc.PatternAnalyzer,
	trend domsvc.TrendAnalyzer,
	derivatives domsvc.DerivativesAnalyzer,
	volume domsvc.VolumeAnalyzer,
	eng *engine.Engine,
	cfg EvaluatorConfig,
	m domrepo.Metrics,
	l *logger.Logger,
) *Evaluator {
	def := DefaultEvaluatorConfig()
	if cfg.PatternTimeframe == "" {
		cfg.PatternTimeframe = def.PatternTimeframe
	}
	if cfg.PatternCandles <= 0 {
		cfg.PatternCandles = def.PatternCandles
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &Evaluator{
		market:      market,
		patterns:    patterns,
		trend:       trend,
		derivatives: derivatives,
		volume:      volume,
		engine:      eng,
		cfg:         cfg,
		metrics:     orNop(m),
		log:         l,
		now:         time.Now,
	}
}

// Evaluate returns the consolidated signal for symbol. Only a failed price
// fetch is an error; every other failure is recorded in Errors and the lens
// contributes no opinion.
func (e *Evaluator) Evaluate(ctx context.Context, symbol string) (*models.ConsolidatedSignal, error) {
	start := e.now()
	defer func() { e.metrics.RecordLatency("evaluate", e.now().Sub(start).Seconds()) }()

	price, err := e.price(ctx, symbol)
	if err != nil {
		e.metrics.RecordError("price")
		return nil, fmt.Errorf("%s: %w: %v", symbol, models.ErrPriceUnavailable, err)
	}

	type item struct {
		name string
		val  interface{}
		err  error
	}
	ch := make(chan item, 4)
	var wg sync.WaitGroup

	run := func(name string, fn func(context.Context) (interface{}, error)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
			defer cancel()
			t0 := time.Now()
			v, err := callRecovered(cctx, fn)
			svcmetrics.AnalyzerLatency.WithLabelValues(name).Observe(time.Since(t0).Seconds())
			if err != nil {
				svcmetrics.AnalyzerErrors.WithLabelValues(name).Inc()
			}
			ch <- item{name, v, err}
		}()
	}

	run("patterns", func(ctx context.Context) (interface{}, error) {
		candles, err := e.market.Candles(ctx, symbol, e.cfg.PatternTimeframe, e.cfg.PatternCandles)
		if err != nil {
			return nil, err
		}
		if len(candles) < minPatternCandles {
			return nil, fmt.Errorf("%d candles: %w", len(candles), models.ErrInsufficientData)
		}
		return e.patterns.Analyze(candles), nil
	})
	run("trend", func(ctx context.Context) (interface{}, error) {
		return e.trend.Confirm(ctx, symbol)
	})
	run("derivatives", func(ctx context.Context) (interface{}, error) {
		return e.derivatives.Analyze(ctx, symbol)
	})
	run("volume", func(ctx context.Context) (interface{}, error) {
		return e.volume.Analyze(ctx, symbol)
	})

	go func() { wg.Wait(); close(ch) }()

	in := engine.Inputs{Symbol: symbol, Price: price}
	errs := map[string]string{}
	for it := range ch {
		if it.err != nil {
			errs[it.name] = it.err.Error()
			e.log.Debug("analyzer degraded",
				logger.String("symbol", symbol),
				logger.String("analyzer", it.name),
				logger.Error(it.err))
			continue
		}
		switch it.name {
		case "patterns":
			v := it.val.(models.PatternReport)
			in.Patterns = &v
		case "trend":
			v := it.val.(models.TrendConfirmation)
			in.Trend = &v
		case "derivatives":
			v := it.val.(models.DerivativesReport)
			in.Derivatives = &v
		case "volume":
			v := it.val.(models.VolumeReport)
			in.Volume = &v
		}
	}

	sig := e.engine.Consolidate(in)
	sig.ID = uuid.NewString()
	sig.GeneratedAt = e.now().UTC()
	if len(errs) > 0 {
		sig.Errors = errs
	}
	return sig, nil
}

func (e *Evaluator) price(ctx context.Context, symbol string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	p, err := e.market.Price(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if !(p > 0) {
		return 0, errors.New("non-positive price")
	}
	e.metrics.RecordLastPrice(symbol, p)
	return p, nil
}

// callRecovered runs fn and reports a panic as an error of that source.
func callRecovered(ctx context.Context, fn func(context.Context) (interface{}, error)) (v interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, fmt.Errorf("analyzer panic: %v", r)
		}
	}()
	return fn(ctx)
}
