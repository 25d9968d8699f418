package cache

import (
	"context"
	"time"
)

// Store is the byte-level storage used by ResultCache.
// Implemented by the in-process memory store (default) and Redis.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Add stores value only if key is absent and reports whether it did.
	// ttl <= 0 means the entry never expires.
	Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}
