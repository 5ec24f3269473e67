package cinemeta

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

var _ Cache = (*InMemoryCache)(nil)

// InMemoryCache caches Cinemeta lookups in memory. Media names and years
// barely change, so a long expiration is fine.
type InMemoryCache struct {
	cache *gocache.Cache
}

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		cache: gocache.New(30*24*time.Hour, 24*time.Hour),
	}
}

func (c *InMemoryCache) Set(key string, info MediaInfo) error {
	c.cache.Set(key, info, gocache.DefaultExpiration)
	return nil
}

func (c *InMemoryCache) Get(key string) (MediaInfo, bool, error) {
	entry, found := c.cache.Get(key)
	if !found {
		return MediaInfo{}, false, nil
	}
	info, ok := entry.(MediaInfo)
	if !ok {
		return MediaInfo{}, false, nil
	}
	return info, true, nil
}
