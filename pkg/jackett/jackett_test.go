package jackett

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/annatar-tv/annatar/pkg/cinemeta"
)

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

func TestSearch(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		require.Equal(t, "/api/v2.0/indexers/all/results", r.URL.Path)
		query := r.URL.Query()
		require.Equal(t, "test-key", query.Get("apikey"))
		require.Equal(t, "tvsearch", query.Get("t"))
		require.Equal(t, "tt0108778", query.Get("imdbid"))
		require.Equal(t, "5000", query.Get("Category"))
		require.Equal(t, []string{"eztv", "therarbg"}, query["Tracker[]"])
		fmt.Fprint(w, `{"Results":[{"Title":"Friends S05E10 1080p","Guid":"guid-1","Size":1000,"InfoHash":"abc","Tracker":"EZTV"}]}`)
	}))
	defer srv.Close()

	client := NewClient(NewClientOpts(srv.URL, "test-key", time.Second, time.Hour), newMapCache(), zap.NewNop())
	query := Query{
		Type:     "tvsearch",
		IMDBid:   "tt0108778",
		Category: 5000,
		Indexers: []string{"eztv", "therarbg"},
	}

	results, err := client.Search(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "Friends S05E10 1080p", results[0].Title)
	require.Equal(t, int64(1000), results[0].Size)

	// Same query again is served from the cache
	results, err = client.Search(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, 1, requests)
}

func TestMagnetLink(t *testing.T) {
	require.Equal(t, "magnet:?xt=urn:btih:abc", SearchResult{MagnetURI: "magnet:?xt=urn:btih:abc", Link: "https://example.com/dl"}.MagnetLink())
	require.Equal(t, "https://example.com/dl", SearchResult{Link: "https://example.com/dl"}.MagnetLink())
}

func TestPrioritization(t *testing.T) {
	media := cinemeta.MediaInfo{ID: "tt0108778", Type: "series", Name: "Friends", Year: 2004}
	results := []SearchResult{
		{Title: "Unrelated Show S05", Size: 5000},
		{Title: "Friends S05E10 1080p", Size: 1000},
		{Title: "Friends S05E10 1080p", Size: 3000, Imdb: 108778},
		{Title: "Friends 1080p", Size: 9000},
	}
	sort.SliceStable(results, func(i, j int) bool {
		return morePromising(media, "tt0108778", 5, results[i], results[j])
	})

	// Full match (name + season marker + imdb) first, then the same without
	// the confirmed IMDb ID, then name-only with size as tie-breaker, then
	// the leftovers.
	require.Equal(t, int64(3000), results[0].Size)
	require.Equal(t, int64(1000), results[1].Size)
	require.Equal(t, "Friends 1080p", results[2].Title)
	require.Equal(t, "Unrelated Show S05", results[3].Title)
}
