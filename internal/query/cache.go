// Package query holds keyed caches for backend reads. Each cache decides
// per entry whether it is stale instead of relying on shared fetch flags.
package query

import (
	"context"
	"sync"
	"time"
)

// Loader fetches the value for a key
type Loader[K comparable, V any] func(ctx context.Context, key K) (V, error)

// StaleFunc reports whether a cached value must be re-fetched
type StaleFunc[V any] func(value V, fetchedAt time.Time) bool

type entry[V any] struct {
	value     V
	fetchedAt time.Time
}

// Cache memoises a Loader per key
type Cache[K comparable, V any] struct {
	load  Loader[K, V]
	stale StaleFunc[V]
	now   func() time.Time

	mu      sync.Mutex
	entries map[K]entry[V]
}

// Option configures a Cache
type Option[K comparable, V any] func(*Cache[K, V])

// WithStale sets a custom stale predicate.
func WithStale[K comparable, V any](fn StaleFunc[V]) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.stale = fn
	}
}

// WithClock replaces time.Now.
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.now = now
	}
}

// New creates a cache. Without a stale option every entry is always stale.
func New[K comparable, V any](load Loader[K, V], opts ...Option[K, V]) *Cache[K, V] {
	c := &Cache[K, V]{
		load:    load,
		now:     time.Now,
		entries: make(map[K]entry[V]),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.stale == nil {
		c.stale = func(V, time.Time) bool { return true }
	}
	return c
}

// Get returns the cached value for key, loading it when missing or stale.
// A failed load leaves any previous entry untouched.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()

	if ok && !c.stale(e.value, e.fetchedAt) {
		return e.value, nil
	}
	return c.Fetch(ctx, key)
}

// Fetch always loads and stores the fresh value.
func (c *Cache[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	v, err := c.load(ctx, key)
	if err != nil {
		var zero V
		return zero, err
	}

	c.mu.Lock()
	c.entries[key] = entry[V]{value: v, fetchedAt: c.now()}
	c.mu.Unlock()
	return v, nil
}

// Invalidate drops the entry for key.
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
