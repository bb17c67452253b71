package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type entry[V any] struct {
	value   V
	expires time.Time
}

// InMemoryCache is a thread-safe, process-local cache. Entries expire after the
// configured TTL; a zero TTL keeps them forever.
type InMemoryCache[K comparable, V any] struct {
	mu    sync.RWMutex
	data  map[K]entry[V]
	ttl   time.Duration
	clock clockwork.Clock
}

// NewInMemoryCache creates a cache. clock may be nil for the real clock.
func NewInMemoryCache[K comparable, V any](ttl time.Duration, clock clockwork.Clock) *InMemoryCache[K, V] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &InMemoryCache[K, V]{
		data:  make(map[K]entry[V]),
		ttl:   ttl,
		clock: clock,
	}
}

func (c *InMemoryCache[K, V]) FetchFromCache(_ context.Context, key K) (V, error) {
	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()

	if !ok || (!e.expires.IsZero() && !c.clock.Now().Before(e.expires)) {
		var zero V
		return zero, fmt.Errorf("key '%v': %w", key, ErrCacheMiss)
	}
	return e.value, nil
}

func (c *InMemoryCache[K, V]) WriteToCache(_ context.Context, key K, value V) error {
	e := entry[V]{value: value}
	if c.ttl > 0 {
		e.expires = c.clock.Now().Add(c.ttl)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = e
	return nil
}

func (c *InMemoryCache[K, V]) Close() error { return nil }
