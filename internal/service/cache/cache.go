package cache

import (
	"context"
	"time"
)

// BytesCache stores raw bytes with TTL. It backs API response caching.
type BytesCache interface {
	GetBytes(ctx context.Context, key string) (b []byte, ok bool, err error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
