package api

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	domsvc "FinSignal/internal/domain/service"
	icache "FinSignal/internal/service/cache"
	"FinSignal/internal/service/metrics"
	"FinSignal/internal/service/ratelimit"
	"FinSignal/internal/services/message"
	"FinSignal/internal/usecase"
	xhttp "FinSignal/pkg/http"
	xlogger "FinSignal/pkg/logger"
)

const minPatternCandles = 50

// SignalsHandler serves on-demand analysis and tracker status over echo.
type SignalsHandler struct {
	logger      *xlogger.Logger
	evaluator   usecase.SignalEvaluator
	formatter   *message.Formatter
	market      domrepo.MarketData
	patterns    domsvc.PatternAnalyzer
	trend       domsvc.TrendAnalyzer
	volume      domsvc.VolumeAnalyzer
	derivatives domsvc.DerivativesAnalyzer
	tracker     *usecase.SignalTracker

	cache    icache.BytesCache
	cacheTTL time.Duration
	rl       *ratelimit.Limiter
	rlCap    float64
	rlRefill float64
	health   func() map[string]interface{}
}

type HandlerOption func(*SignalsHandler)

// WithResponseCache caches analysis responses for ttl.
func WithResponseCache(c icache.BytesCache, ttl time.Duration) HandlerOption {
	return func(h *SignalsHandler) {
		h.cache = c
		h.cacheTTL = ttl
	}
}

// WithRateLimit applies a per-client token bucket to /api routes.
func WithRateLimit(l *ratelimit.Limiter, capacity, refillPerSec float64) HandlerOption {
	return func(h *SignalsHandler) {
		h.rl = l
		h.rlCap = capacity
		h.rlRefill = refillPerSec
	}
}

// WithHealth adds component details to /healthz.
func WithHealth(fn func() map[string]interface{}) HandlerOption {
	return func(h *SignalsHandler) { h.health = fn }
}

func NewSignalsHandler(
	logger *xlogger.Logger,
	evaluator usecase.SignalEvaluator,
	formatter *message.Formatter,
	market domrepo.MarketData,
	patterns domsvc.PatternAnalyzer,
	trend domsvc.TrendAnalyzer,
	volume domsvc.VolumeAnalyzer,
	derivatives domsvc.DerivativesAnalyzer,
	tracker *usecase.SignalTracker,
	opts ...HandlerOption,
) *SignalsHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	h := &SignalsHandler{
		logger:      logger,
		evaluator:   evaluator,
		formatter:   formatter,
		market:      market,
		patterns:    patterns,
		trend:       trend,
		volume:      volume,
		derivatives: derivatives,
		tracker:     tracker,
		cacheTTL:    15 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var _ xhttp.Handler = (*SignalsHandler)(nil)

func (h *SignalsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api", h.rateLimit)
	g.GET("/evaluate", h.Evaluate)
	g.GET("/trend", h.Trend)
	g.GET("/patterns", h.Patterns)
	g.GET("/volume", h.Volume)
	g.GET("/derivatives", h.Derivatives)
	g.GET("/cooldown", h.Cooldown)
	g.GET("/stats", h.Stats)
}

func (h *SignalsHandler) Health(c echo.Context) error {
	body := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
	}
	if h.health != nil {
		for k, v := range h.health() {
			body[k] = v
		}
	}
	return xhttp.SuccessResponse(c, body)
}

func (h *SignalsHandler) Evaluate(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.cached(c, "evaluate", req.Symbol, func(ctx context.Context) (interface{}, error) {
		sig, err := h.evaluator.Evaluate(ctx, req.Symbol)
		if err != nil {
			return nil, err
		}
		res := &models.EvaluateResponse{Signal: sig}
		if sig.Fired() {
			res.Message = h.formatter.Format(sig)
		}
		return res, nil
	})
}

func (h *SignalsHandler) Trend(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.cached(c, "trend", req.Symbol, func(ctx context.Context) (interface{}, error) {
		return h.trend.Confirm(ctx, req.Symbol)
	})
}

func (h *SignalsHandler) Patterns(c echo.Context) error {
	req := &models.PatternsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	tf := domrepo.NormalizeTimeframe(req.TF)
	key := req.Symbol + ":" + string(tf) + ":" + strconv.Itoa(req.N)
	return h.cached(c, "patterns", key, func(ctx context.Context) (interface{}, error) {
		candles, err := h.market.Candles(ctx, req.Symbol, tf, req.N)
		if err != nil {
			return nil, err
		}
		if len(candles) < minPatternCandles {
			return nil, models.ErrInsufficientData
		}
		return &models.PatternsResponse{
			Symbol:    req.Symbol,
			Timeframe: string(tf),
			Candles:   len(candles),
			Report:    h.patterns.Analyze(candles),
		}, nil
	})
}

func (h *SignalsHandler) Volume(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.cached(c, "volume", req.Symbol, func(ctx context.Context) (interface{}, error) {
		return h.volume.Analyze(ctx, req.Symbol)
	})
}

func (h *SignalsHandler) Derivatives(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.cached(c, "derivatives", req.Symbol, func(ctx context.Context) (interface{}, error) {
		return h.derivatives.Analyze(ctx, req.Symbol)
	})
}

func (h *SignalsHandler) Cooldown(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()
	left, rec, err := h.tracker.Remaining(ctx, req.Symbol)
	if err != nil {
		h.logger.Error("cooldown lookup failed", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	can, err := h.tracker.CanEmit(ctx, req.Symbol)
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, &models.CooldownStatus{
		Symbol:           req.Symbol,
		CanEmit:          can,
		RemainingSeconds: int64(left / time.Second),
		CooldownSeconds:  int64(h.tracker.Cooldown() / time.Second),
		Last:             rec,
	})
}

func (h *SignalsHandler) Stats(c echo.Context) error {
	st, err := h.tracker.Stats(c.Request().Context())
	if err != nil {
		h.logger.Error("tracker stats failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, st)
}

// cached serves fn's result from the response cache when present.
func (h *SignalsHandler) cached(c echo.Context, endpoint, key string, fn func(context.Context) (interface{}, error)) error {
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	ctx := c.Request().Context()
	cacheKey := endpoint + ":" + key
	if h.cache != nil {
		if b, ok, err := h.cache.GetBytes(ctx, cacheKey); err != nil {
			h.logger.Warn("api cache_get_error", xlogger.String("key", cacheKey), xlogger.Error(err))
		} else if ok {
			h.logger.Debug("api cache_hit", xlogger.String("key", cacheKey))
			return xhttp.SuccessResponse(c, json.RawMessage(b))
		}
	}

	res, err := fn(ctx)
	if err != nil {
		h.logger.Warn("api "+endpoint+" error", xlogger.String("key", key), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	if h.cache != nil && h.cacheTTL > 0 {
		if b, err := json.Marshal(res); err == nil {
			if err := h.cache.SetBytes(ctx, cacheKey, b, h.cacheTTL); err != nil {
				h.logger.Warn("api cache_set_error", xlogger.String("key", cacheKey), xlogger.Error(err))
			}
		}
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SignalsHandler) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.rl == nil {
			return next(c)
		}
		if !h.rl.Allow("api:"+c.RealIP(), h.rlCap, h.rlRefill) {
			h.logger.Warn("api rate_limited", xlogger.String("remote", c.RealIP()))
			retry := 1.0
			if h.rlRefill > 0 {
				retry = 1 / h.rlRefill
			}
			return xhttp.AppErrorResponse(c, xhttp.RateLimitedError(retry))
		}
		return next(c)
	}
}

func toAppError(err error) error {
	switch {
	case errors.Is(err, models.ErrInsufficientData):
		return xhttp.InsufficientDataError("symbol", "not enough market data").WithError(err)
	case errors.Is(err, models.ErrPriceUnavailable), errors.Is(err, models.ErrUnavailable):
		return xhttp.UnavailableError("symbol", "market data unavailable").WithError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.TimeoutError("upstream timeout").WithError(err)
	default:
		return err
	}
}
