package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
)

const cooldownSchema = `
CREATE TABLE IF NOT EXISTS signal_cooldowns (
    symbol     VARCHAR(32) PRIMARY KEY,
    emitted_at TIMESTAMP NOT NULL,
    side       VARCHAR(8) NOT NULL,
    price      DOUBLE PRECISION NOT NULL
)`

// SQLCooldownStore persists cooldown records in sqlite or postgres. Locks
// are held in process, so one scanner owns a database at a time.
type SQLCooldownStore struct {
	db    *sqlx.DB
	mu    sync.Mutex
	locks map[string]*sqlLease
	now   func() time.Time
}

type sqlLease struct{ expires time.Time }

var _ repository.CooldownStore = (*SQLCooldownStore)(nil)

// OpenCooldownDB opens driver ("sqlite3" or "postgres") at dsn.
func OpenCooldownDB(driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// NewSQLCooldownStore creates the table when missing.
func NewSQLCooldownStore(ctx context.Context, db *sqlx.DB) (*SQLCooldownStore, error) {
	if _, err := db.ExecContext(ctx, cooldownSchema); err != nil {
		return nil, fmt.Errorf("init cooldown schema: %w", err)
	}
	return &SQLCooldownStore{db: db, locks: make(map[string]*sqlLease), now: time.Now}, nil
}

func (s *SQLCooldownStore) Get(ctx context.Context, symbol string) (*models.CooldownRecord, error) {
	var rec models.CooldownRecord
	q := s.db.Rebind(`SELECT symbol, emitted_at, side, price FROM signal_cooldowns WHERE symbol = ?`)
	if err := s.db.GetContext(ctx, &rec, q, symbol); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNoRecord
		}
		return nil, fmt.Errorf("get cooldown %s: %w", symbol, err)
	}
	rec.Timestamp = rec.Timestamp.UTC()
	return &rec, nil
}

func (s *SQLCooldownStore) Put(ctx context.Context, rec *models.CooldownRecord) error {
	if rec == nil || rec.Symbol == "" {
		return fmt.Errorf("put cooldown: empty record")
	}
	q := s.db.Rebind(`
        INSERT INTO signal_cooldowns (symbol, emitted_at, side, price)
        VALUES (?, ?, ?, ?)
        ON CONFLICT (symbol) DO UPDATE SET
            emitted_at = excluded.emitted_at,
            side = excluded.side,
            price = excluded.price`)
	if _, err := s.db.ExecContext(ctx, q, rec.Symbol, rec.Timestamp.UTC(), string(rec.Side), rec.Price); err != nil {
		return fmt.Errorf("put cooldown %s: %w", rec.Symbol, err)
	}
	return nil
}

func (s *SQLCooldownStore) List(ctx context.Context) ([]*models.CooldownRecord, error) {
	var recs []*models.CooldownRecord
	if err := s.db.SelectContext(ctx, &recs, `SELECT symbol, emitted_at, side, price FROM signal_cooldowns ORDER BY symbol`); err != nil {
		return nil, fmt.Errorf("list cooldowns: %w", err)
	}
	for _, r := range recs {
		r.Timestamp = r.Timestamp.UTC()
	}
	return recs, nil
}

func (s *SQLCooldownStore) Lock(_ context.Context, symbol string, ttl time.Duration) (func(), bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if cur, held := s.locks[symbol]; held && now.Before(cur.expires) {
		return nil, false, nil
	}
	lease := &sqlLease{expires: now.Add(ttl)}
	s.locks[symbol] = lease
	return func() {
		s.mu.Lock()
		// An expired lease may have been taken over; leave the new holder alone.
		if s.locks[symbol] == lease {
			delete(s.locks, symbol)
		}
		s.mu.Unlock()
	}, true, nil
}

func (s *SQLCooldownStore) Close() error {
	return s.db.Close()
}
