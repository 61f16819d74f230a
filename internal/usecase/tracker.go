package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
)

// SignalTracker enforces the per-instrument cooldown between emissions.
type SignalTracker struct {
	store    domrepo.CooldownStore
	cooldown time.Duration
	lockTTL  time.Duration
	now      func() time.Time
}

func NewSignalTracker(store domrepo.CooldownStore, cooldown, lockTTL time.Duration) *SignalTracker {
	if cooldown <= 0 {
		cooldown = 2 * time.Hour
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &SignalTracker{store: store, cooldown: cooldown, lockTTL: lockTTL, now: time.Now}
}

// WithClock replaces time.Now, for tests and replays.
func (t *SignalTracker) WithClock(now func() time.Time) *SignalTracker {
	t.now = now
	return t
}

func (t *SignalTracker) Cooldown() time.Duration { return t.cooldown }

// CanEmit reports whether symbol has no record or its last emission is
// strictly older than the cooldown.
func (t *SignalTracker) CanEmit(ctx context.Context, symbol string) (bool, error) {
	rec, err := t.store.Get(ctx, symbol)
	if errors.Is(err, models.ErrNoRecord) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return t.now().Sub(rec.Timestamp) > t.cooldown, nil
}

// Remaining returns how long symbol stays in cooldown, zero when free.
func (t *SignalTracker) Remaining(ctx context.Context, symbol string) (time.Duration, *models.CooldownRecord, error) {
	rec, err := t.store.Get(ctx, symbol)
	if errors.Is(err, models.ErrNoRecord) {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, err
	}
	left := rec.Timestamp.Add(t.cooldown).Sub(t.now())
	if left < 0 {
		left = 0
	}
	return left, rec, nil
}

// Record overwrites the instrument's record with the current time.
func (t *SignalTracker) Record(ctx context.Context, symbol string, side models.Side, price float64) error {
	return t.store.Put(ctx, &models.CooldownRecord{
		Symbol:    symbol,
		Timestamp: t.now().UTC(),
		Side:      side,
		Price:     price,
	})
}

// Stats counts stored records by side.
func (t *SignalTracker) Stats(ctx context.Context) (models.TrackerStats, error) {
	recs, err := t.store.List(ctx)
	if err != nil {
		return models.TrackerStats{}, err
	}
	st := models.TrackerStats{Total: len(recs)}
	for _, r := range recs {
		switch r.Side {
		case models.Long:
			st.Longs++
		case models.Short:
			st.Shorts++
		}
	}
	return st, nil
}

// TryEmit runs check, deliver and record under the instrument lock. The
// record is written only when deliver succeeds.
func (t *SignalTracker) TryEmit(ctx context.Context, sig *models.ConsolidatedSignal, deliver func(context.Context) error) error {
	unlock, ok, err := t.store.Lock(ctx, sig.Symbol, t.lockTTL)
	if err != nil {
		return fmt.Errorf("lock %s: %w", sig.Symbol, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", sig.Symbol, models.ErrLocked)
	}
	defer unlock()

	can, err := t.CanEmit(ctx, sig.Symbol)
	if err != nil {
		return fmt.Errorf("cooldown check %s: %w", sig.Symbol, err)
	}
	if !can {
		return fmt.Errorf("%s: %w", sig.Symbol, models.ErrCooldown)
	}
	if err := deliver(ctx); err != nil {
		return err
	}
	if err := t.Record(ctx, sig.Symbol, sig.Side, sig.Price); err != nil {
		return fmt.Errorf("record %s: %w", sig.Symbol, err)
	}
	return nil
}
