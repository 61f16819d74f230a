package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
	"FinSignal/internal/service/ratelimit"
	pkghttp "FinSignal/pkg/http"
	"FinSignal/pkg/logger"
)

// BinanceConfig configures the USDT-M futures REST adapter.
type BinanceConfig struct {
	BaseURL    string
	APIKey     string
	RateBurst  float64
	RateRefill float64
	MaxRetries int
	RetryDelay time.Duration
}

// BinanceMarket reads candles, prices, the instrument universe and futures
// positioning data from the public Binance futures API.
type BinanceMarket struct {
	cfg     BinanceConfig
	client  *pkghttp.Client
	limiter *ratelimit.Limiter
	metrics repository.Metrics
	log     *logger.Logger
}

var (
	_ repository.MarketData       = (*BinanceMarket)(nil)
	_ repository.InstrumentSource = (*BinanceMarket)(nil)
	_ repository.DerivativesData  = (*BinanceMarket)(nil)
)

func NewBinanceMarket(cfg BinanceConfig, client *pkghttp.Client, limiter *ratelimit.Limiter, m repository.Metrics, log *logger.Logger) *BinanceMarket {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://fapi.binance.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 20
	}
	if cfg.RateRefill <= 0 {
		cfg.RateRefill = 20
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if client == nil {
		client = pkghttp.NewClient()
	}
	if limiter == nil {
		limiter = ratelimit.New()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &BinanceMarket{cfg: cfg, client: client, limiter: limiter, metrics: m, log: log}
}

func (b *BinanceMarket) get(ctx context.Context, op, path string, query map[string][]string, dest interface{}) error {
	start := time.Now()
	defer func() {
		if b.metrics != nil {
			b.metrics.RecordLatency("binance_"+op, time.Since(start).Seconds())
		}
	}()

	opts := &pkghttp.RequestOptions{
		Method:      pkghttp.MethodGet,
		URL:         b.cfg.BaseURL + path,
		QueryParams: query,
	}
	if b.cfg.APIKey != "" {
		opts.Headers = map[string]string{"X-MBX-APIKEY": b.cfg.APIKey}
	}

	var err error
	for attempt := 0; attempt < b.cfg.MaxRetries; attempt++ {
		if err = b.limiter.Wait(ctx, "binance", b.cfg.RateBurst, b.cfg.RateRefill); err != nil {
			return err
		}
		err = b.client.SendAndParse(ctx, opts, dest)
		if err == nil {
			return nil
		}
		switch {
		case pkghttp.IsStatus(err, http.StatusForbidden, http.StatusUnauthorized):
			return fmt.Errorf("%s: %w", op, models.ErrUnavailable)
		case pkghttp.IsStatus(err, http.StatusTooManyRequests, 418):
			b.recordError("binance_rate_limited")
		case pkghttp.IsStatus(err, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout):
		default:
			var se *pkghttp.StatusError
			if errors.As(err, &se) {
				b.recordError("binance_" + op)
				return fmt.Errorf("%s: %w", op, err)
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := b.cfg.RetryDelay * time.Duration(1<<attempt)
		b.log.Debug("binance request retry",
			logger.String("op", op),
			logger.Int("attempt", attempt+1),
			logger.Duration("delay", delay),
			logger.Error(err))
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	b.recordError("binance_" + op)
	return fmt.Errorf("%s: %w", op, err)
}

func (b *BinanceMarket) recordError(kind string) {
	if b.metrics != nil {
		b.metrics.RecordError(kind)
	}
}

// Candles returns the latest closed and forming bars, oldest first.
func (b *BinanceMarket) Candles(ctx context.Context, symbol string, tf repository.Timeframe, limit int) ([]models.Candle, error) {
	var rows [][]interface{}
	q := map[string][]string{
		"symbol":   {symbol},
		"interval": {string(tf)},
		"limit":    {strconv.Itoa(limit)},
	}
	if err := b.get(ctx, "klines", "/fapi/v1/klines", q, &rows); err != nil {
		return nil, err
	}

	out := make([]models.Candle, 0, len(rows))
	for i, row := range rows {
		c, err := parseKline(symbol, row)
		if err != nil {
			return nil, fmt.Errorf("kline %d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func parseKline(symbol string, row []interface{}) (models.Candle, error) {
	if len(row) < 6 {
		return models.Candle{}, fmt.Errorf("short row: %d fields", len(row))
	}
	openMs, err := toFloat(row[0])
	if err != nil {
		return models.Candle{}, fmt.Errorf("open time: %w", err)
	}
	var vals [5]float64
	for i := range vals {
		if vals[i], err = toFloat(row[i+1]); err != nil {
			return models.Candle{}, fmt.Errorf("field %d: %w", i+1, err)
		}
	}
	return models.Candle{
		Symbol:   symbol,
		OpenTime: time.UnixMilli(int64(openMs)).UTC(),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, nil
}

func toFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case string:
		return strconv.ParseFloat(x, 64)
	case json.Number:
		return x.Float64()
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

// Price returns the last traded price.
func (b *BinanceMarket) Price(ctx context.Context, symbol string) (float64, error) {
	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := b.get(ctx, "price", "/fapi/v1/ticker/price", map[string][]string{"symbol": {symbol}}, &resp); err != nil {
		return 0, err
	}
	p, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", resp.Price, err)
	}
	if b.metrics != nil {
		b.metrics.RecordLastPrice(symbol, p)
	}
	return p, nil
}

// Instruments lists TRADING USDT perpetual contracts, sorted by symbol.
func (b *BinanceMarket) Instruments(ctx context.Context) ([]string, error) {
	var resp struct {
		Symbols []struct {
			Symbol       string `json:"symbol"`
			Status       string `json:"status"`
			QuoteAsset   string `json:"quoteAsset"`
			ContractType string `json:"contractType"`
		} `json:"symbols"`
	}
	if err := b.get(ctx, "exchange_info", "/fapi/v1/exchangeInfo", nil, &resp); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(resp.Symbols))
	for _, s := range resp.Symbols {
		if s.Status == "TRADING" && s.QuoteAsset == "USDT" && s.ContractType == "PERPETUAL" {
			out = append(out, s.Symbol)
		}
	}
	sort.Strings(out)
	return out, nil
}

// QuoteVolumes returns the 24h quote volume of every listed symbol.
func (b *BinanceMarket) QuoteVolumes(ctx context.Context) (map[string]float64, error) {
	var resp []struct {
		Symbol      string `json:"symbol"`
		QuoteVolume string `json:"quoteVolume"`
	}
	if err := b.get(ctx, "ticker_24hr", "/fapi/v1/ticker/24hr", nil, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(resp))
	for _, t := range resp {
		v, err := strconv.ParseFloat(t.QuoteVolume, 64)
		if err != nil {
			continue
		}
		out[t.Symbol] = v
	}
	return out, nil
}

// FundingRate returns the latest funding rate as a fraction.
func (b *BinanceMarket) FundingRate(ctx context.Context, symbol string) (float64, error) {
	var resp []struct {
		FundingRate string `json:"fundingRate"`
	}
	q := map[string][]string{"symbol": {symbol}, "limit": {"1"}}
	if err := b.get(ctx, "funding_rate", "/fapi/v1/fundingRate", q, &resp); err != nil {
		return 0, err
	}
	if len(resp) == 0 {
		return 0, fmt.Errorf("funding_rate: %w", models.ErrUnavailable)
	}
	return strconv.ParseFloat(resp[len(resp)-1].FundingRate, 64)
}

// OpenInterest returns the current open interest in contracts.
func (b *BinanceMarket) OpenInterest(ctx context.Context, symbol string) (float64, error) {
	var resp struct {
		OpenInterest string `json:"openInterest"`
	}
	if err := b.get(ctx, "open_interest", "/fapi/v1/openInterest", map[string][]string{"symbol": {symbol}}, &resp); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(resp.OpenInterest, 64)
}

// OpenInterestHistory returns aggregated open interest, oldest first.
func (b *BinanceMarket) OpenInterestHistory(ctx context.Context, symbol, period string, limit int) ([]float64, error) {
	var resp []struct {
		SumOpenInterest string `json:"sumOpenInterest"`
	}
	q := map[string][]string{"symbol": {symbol}, "period": {period}, "limit": {strconv.Itoa(limit)}}
	if err := b.get(ctx, "open_interest_hist", "/futures/data/openInterestHist", q, &resp); err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(resp))
	for _, r := range resp {
		v, err := strconv.ParseFloat(r.SumOpenInterest, 64)
		if err != nil {
			return nil, fmt.Errorf("parse open interest %q: %w", r.SumOpenInterest, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// TopLongShortAccountRatio returns the latest top-trader account ratio.
func (b *BinanceMarket) TopLongShortAccountRatio(ctx context.Context, symbol, period string) (float64, float64, float64, error) {
	var resp []struct {
		LongShortRatio string `json:"longShortRatio"`
		LongAccount    string `json:"longAccount"`
		ShortAccount   string `json:"shortAccount"`
	}
	q := map[string][]string{"symbol": {symbol}, "period": {period}, "limit": {"1"}}
	if err := b.get(ctx, "long_short_ratio", "/futures/data/topLongShortAccountRatio", q, &resp); err != nil {
		return 0, 0, 0, err
	}
	if len(resp) == 0 {
		return 0, 0, 0, fmt.Errorf("long_short_ratio: %w", models.ErrUnavailable)
	}
	last := resp[len(resp)-1]
	ratio, err := strconv.ParseFloat(last.LongShortRatio, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("parse ratio: %w", err)
	}
	long, _ := strconv.ParseFloat(last.LongAccount, 64)
	short, _ := strconv.ParseFloat(last.ShortAccount, 64)
	return ratio, long, short, nil
}
