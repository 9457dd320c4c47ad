package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// MemoryCache keeps replies in process. Entries may be evicted before their
// TTL when the cost budget is exhausted.
type MemoryCache struct {
	cache *ristretto.Cache[string, Entry]
}

// NewMemoryCache creates an in-process cache holding at most maxEntries replies.
func NewMemoryCache(maxEntries int64) (*MemoryCache, error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, Entry]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	return &MemoryCache{cache: c}, nil
}

func (c *MemoryCache) Get(_ context.Context, key string) (*Entry, error) {
	entry, ok := c.cache.Get(key)
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// Set stores the entry and waits for the write buffer to drain so the entry
// is visible to the next Get.
func (c *MemoryCache) Set(_ context.Context, key string, entry *Entry, ttl time.Duration) error {
	if entry == nil {
		return nil
	}
	c.cache.SetWithTTL(key, *entry, 1, ttl)
	c.cache.Wait()
	return nil
}

func (c *MemoryCache) Flush(context.Context) error {
	c.cache.Clear()
	return nil
}

func (c *MemoryCache) Close() error {
	c.cache.Close()
	return nil
}
