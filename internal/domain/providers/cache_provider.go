package providers

import (
	"context"
	"time"
)

// CacheProvider is a byte cache for read-mostly views
type CacheProvider interface {
	// Get returns ok=false on a miss
	Get(ctx context.Context, key string) ([]byte, bool, error)

	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error
}
