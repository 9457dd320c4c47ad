package cache

import (
	"context"
	"time"
)

// NoOpCache is used when caching is disabled or Redis is unavailable. Every
// lookup is a miss.
type NoOpCache struct{}

func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

func (c *NoOpCache) Get(ctx context.Context, key string) (*Entry, error) {
	return nil, nil
}

func (c *NoOpCache) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	return nil
}

func (c *NoOpCache) Flush(ctx context.Context) error {
	return nil
}

func (c *NoOpCache) Close() error {
	return nil
}
