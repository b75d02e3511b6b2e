// Package cache provides the in-process memo used on the decisioning hot path.
package cache

import (
	"time"

	"github.com/maypok86/otter"
)

// MemoryCache is a bounded in-memory cache backed by otter's contention-free
// S3-FIFO implementation.
type MemoryCache[K comparable, V any] struct {
	store otter.Cache[K, V]
}

// NewMemoryCache initializes the cache with a hard item cap.
// A ttl <= 0 keeps entries until they are evicted by capacity.
func NewMemoryCache[K comparable, V any](capacity int, ttl time.Duration) (*MemoryCache[K, V], error) {
	builder := otter.MustBuilder[K, V](capacity).CollectStats()

	var (
		store otter.Cache[K, V]
		err   error
	)
	if ttl > 0 {
		store, err = builder.WithTTL(ttl).Build()
	} else {
		store, err = builder.Build()
	}
	if err != nil {
		return nil, err
	}

	return &MemoryCache[K, V]{store: store}, nil
}

// Get retrieves a value and reports whether it was found.
func (c *MemoryCache[K, V]) Get(key K) (V, bool) {
	return c.store.Get(key)
}

// Set adds or updates a value. It reports false when the write was rejected
// (for example under heavy write contention).
func (c *MemoryCache[K, V]) Set(key K, value V) bool {
	return c.store.Set(key, value)
}

// Del removes a value.
func (c *MemoryCache[K, V]) Del(key K) {
	c.store.Delete(key)
}

// Size returns the current number of entries.
func (c *MemoryCache[K, V]) Size() int {
	return c.store.Size()
}

// Close shuts down the cache and its background cleanup goroutines.
func (c *MemoryCache[K, V]) Close() {
	c.store.Close()
}
