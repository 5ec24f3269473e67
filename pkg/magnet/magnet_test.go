package magnet

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInfoHash(t *testing.T) {
	hash, ok := InfoHash("magnet:?xt=urn:btih:dd8255ecdc7ca55fb0bbf81323d87062db1f6d1c&dn=Big+Buck+Bunny")
	require.True(t, ok)
	require.Equal(t, "DD8255ECDC7CA55FB0BBF81323D87062DB1F6D1C", hash)

	_, ok = InfoHash("https://example.com/download/123")
	require.False(t, ok)
}

func TestLink(t *testing.T) {
	link := Link("DD8255ECDC7CA55FB0BBF81323D87062DB1F6D1C", "Big Buck Bunny")
	require.Equal(t, "magnet:?xt=urn:btih:dd8255ecdc7ca55fb0bbf81323d87062db1f6d1c&dn=Big+Buck+Bunny", link)

	hash, ok := InfoHash(link)
	require.True(t, ok)
	require.Equal(t, "DD8255ECDC7CA55FB0BBF81323D87062DB1F6D1C", hash)
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]string{}}
}

func (c *mapCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *mapCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, found := c.entries[key]
	return value, found, nil
}

func TestResolve(t *testing.T) {
	magnetLink := "magnet:?xt=urn:btih:dd8255ecdc7ca55fb0bbf81323d87062db1f6d1c"
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Location", magnetLink)
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	resolver := NewResolver(DefaultResolverOpts, newMapCache(), zap.NewNop())
	ctx := context.Background()

	resolved, err := resolver.Resolve(ctx, "guid-1", srv.URL+"/download/1")
	require.NoError(t, err)
	require.Equal(t, magnetLink, resolved)

	// Second resolution comes from the cache
	resolved, err = resolver.Resolve(ctx, "guid-1", srv.URL+"/download/1")
	require.NoError(t, err)
	require.Equal(t, magnetLink, resolved)
	require.Equal(t, 1, requests)
}

func TestResolvePassesThroughMagnetLinks(t *testing.T) {
	resolver := NewResolver(DefaultResolverOpts, newMapCache(), zap.NewNop())
	link := "magnet:?xt=urn:btih:abc"
	resolved, err := resolver.Resolve(context.Background(), "guid-2", link)
	require.NoError(t, err)
	require.Equal(t, link, resolved)
}

func TestResolveCachesFailures(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resolver := NewResolver(DefaultResolverOpts, newMapCache(), zap.NewNop())
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, "guid-3", srv.URL+"/download/3")
	require.ErrorIs(t, err, ErrNoMagnet)
	_, err = resolver.Resolve(ctx, "guid-3", srv.URL+"/download/3")
	require.ErrorIs(t, err, ErrNoMagnet)
	require.Equal(t, 1, requests)
}
