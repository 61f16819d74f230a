package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	applogger "FinSignal/pkg/logger"
)

// CandleSchema creates the candle table. ReplacingMergeTree collapses rows
// re-inserted for the same (symbol, timeframe, open_time).
var CandleSchema = []string{
	`CREATE DATABASE IF NOT EXISTS finsignal`,
	`CREATE TABLE IF NOT EXISTS finsignal.candles (
        symbol     LowCardinality(String),
        timeframe  LowCardinality(String),
        open_time  DateTime64(3, 'UTC'),
        open       Float64,
        high       Float64,
        low        Float64,
        close      Float64,
        volume     Float64,
        ingested   DateTime DEFAULT now()
    ) ENGINE = ReplacingMergeTree(ingested)
    ORDER BY (symbol, timeframe, open_time)`,
}

// CHCandleStore persists candle windows in ClickHouse and serves them back
// as a MarketData candle source.
type CHCandleStore struct {
	db     *sql.DB
	table  string
	prices domrepo.MarketData
	l      *applogger.Logger
}

var _ domrepo.CandleStore = (*CHCandleStore)(nil)

// NewCHCandleStore wraps db. prices serves Price, which is not stored.
func NewCHCandleStore(db *sql.DB, table string, prices domrepo.MarketData, l *applogger.Logger) *CHCandleStore {
	if table == "" {
		table = "finsignal.candles"
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &CHCandleStore{db: db, table: table, prices: prices, l: l}
}

// Candles returns the newest limit bars, oldest first.
func (s *CHCandleStore) Candles(ctx context.Context, symbol string, tf domrepo.Timeframe, limit int) ([]models.Candle, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT open_time, open, high, low, close, volume
        FROM %s
        WHERE symbol = ? AND timeframe = ?
        ORDER BY open_time DESC
        LIMIT ?
    `, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, string(tf), limit)
	if err != nil {
		s.l.Error("clickhouse candles query error",
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Int("limit", limit),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get latest candles: %w", err)
	}
	defer rows.Close()

	tmp := make([]models.Candle, 0, limit)
	seen := make(map[int64]struct{}, limit)
	for rows.Next() {
		c := models.Candle{Symbol: symbol}
		if err := rows.Scan(&c.OpenTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		// unmerged replicas of the same bar
		key := c.OpenTime.UnixMilli()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		c.OpenTime = c.OpenTime.UTC()
		tmp = append(tmp, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	s.l.Debug("clickhouse candles ok",
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Int("rows", len(tmp)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return tmp, nil
}

// Price delegates to the live price source.
func (s *CHCandleStore) Price(ctx context.Context, symbol string) (float64, error) {
	if s.prices == nil {
		return 0, fmt.Errorf("clickhouse price: %w", models.ErrUnavailable)
	}
	return s.prices.Price(ctx, symbol)
}

// StoreCandles inserts a window in one batch.
func (s *CHCandleStore) StoreCandles(ctx context.Context, symbol string, tf domrepo.Timeframe, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (symbol, timeframe, open_time, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.table))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, symbol, string(tf), c.OpenTime.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert candle: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
