package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
	"FinSignal/pkg/cache"
)

const (
	cooldownKeyPrefix = "cooldown"
	lockKeyPrefix     = "lock"
)

// CacheCooldownStore keeps cooldown records in a cache.Service: redis for
// shared deployments, the in-process cache otherwise. Records never expire.
type CacheCooldownStore struct {
	c cache.Service
}

var _ repository.CooldownStore = (*CacheCooldownStore)(nil)

func NewCacheCooldownStore(c cache.Service) *CacheCooldownStore {
	return &CacheCooldownStore{c: c}
}

// NewMemoryCooldownStore keeps records in process on a cache that never
// evicts, so a record survives however many instruments are tracked.
// The returned cache must be closed by the caller.
func NewMemoryCooldownStore() (*CacheCooldownStore, *cache.MemoryCache) {
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0), cache.WithMemoryUnbounded())
	return NewCacheCooldownStore(mc), mc
}

func (s *CacheCooldownStore) Get(ctx context.Context, symbol string) (*models.CooldownRecord, error) {
	var rec models.CooldownRecord
	if err := s.c.Get(ctx, cache.GenerateKey(cooldownKeyPrefix, symbol), &rec); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, models.ErrNoRecord
		}
		return nil, fmt.Errorf("get cooldown %s: %w", symbol, err)
	}
	if rec.Symbol == "" {
		rec.Symbol = symbol
	}
	return &rec, nil
}

func (s *CacheCooldownStore) Put(ctx context.Context, rec *models.CooldownRecord) error {
	if rec == nil || rec.Symbol == "" {
		return fmt.Errorf("put cooldown: empty record")
	}
	if err := s.c.Set(ctx, cache.GenerateKey(cooldownKeyPrefix, rec.Symbol), rec, 0); err != nil {
		return fmt.Errorf("put cooldown %s: %w", rec.Symbol, err)
	}
	return nil
}

func (s *CacheCooldownStore) List(ctx context.Context) ([]*models.CooldownRecord, error) {
	keys, err := s.c.Keys(ctx, cache.BuildPattern(cooldownKeyPrefix))
	if err != nil {
		return nil, fmt.Errorf("list cooldown keys: %w", err)
	}
	typed, err := cache.MGetTyped[models.CooldownRecord](ctx, s.c, keys...)
	if err != nil {
		return nil, fmt.Errorf("list cooldowns: %w", err)
	}
	out := make([]*models.CooldownRecord, 0, len(typed))
	for _, rec := range typed {
		rec := rec
		out = append(out, &rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *CacheCooldownStore) Lock(ctx context.Context, symbol string, ttl time.Duration) (func(), bool, error) {
	key := cache.GenerateKey(lockKeyPrefix, symbol)
	ok, err := s.c.TryLock(ctx, key, ttl)
	if err != nil {
		return nil, false, fmt.Errorf("lock %s: %w", symbol, err)
	}
	if !ok {
		return nil, false, nil
	}
	return func() {
		// the caller's context may already be done
		_ = s.c.Unlock(context.Background(), key)
	}, true, nil
}
