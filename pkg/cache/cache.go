package cache

import (
	"context"
	"errors"
)

// ErrCacheMiss is returned by FetchFromCache when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Cache is a generic interface for a caching layer.
type Cache[K comparable, V any] interface {
	// FetchFromCache retrieves an item. A missing item gives ErrCacheMiss.
	FetchFromCache(ctx context.Context, key K) (V, error)
	// WriteToCache adds or replaces an item.
	WriteToCache(ctx context.Context, key K, value V) error
	// Close releases any underlying connection.
	Close() error
}
