package debrid

import (
	"context"
	"sync"
	"time"
)

var _ Cache = (*InMemoryCache)(nil)

// InMemoryCache is a simple implementation of the Cache interface.
// It doesn't persist or share its data, so production deployments use the
// Redis-backed cache from the db package instead.
type InMemoryCache struct {
	cache map[string]inMemoryCacheEntry
	lock  *sync.RWMutex
}

type inMemoryCacheEntry struct {
	value   string
	expires time.Time
}

// NewInMemoryCache creates a new InMemoryCache.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		cache: map[string]inMemoryCacheEntry{},
		lock:  &sync.RWMutex{},
	}
}

func (c *InMemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.cache[key] = inMemoryCacheEntry{
		value:   value,
		expires: time.Now().Add(ttl),
	}
	return nil
}

func (c *InMemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	entry, found := c.cache[key]
	if !found || time.Now().After(entry.expires) {
		return "", false, nil
	}
	return entry.value, true, nil
}
