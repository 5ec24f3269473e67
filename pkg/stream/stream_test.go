package stream

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/annatar-tv/annatar/pkg/cinemeta"
	"github.com/annatar-tv/annatar/pkg/db"
	"github.com/annatar-tv/annatar/pkg/debrid"
	"github.com/annatar-tv/annatar/pkg/jackett"
	"github.com/annatar-tv/annatar/pkg/odm"
	"github.com/annatar-tv/annatar/pkg/pubsub"
	"github.com/annatar-tv/annatar/pkg/torrent"
)

const (
	hashA = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	hashB = "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
	hashC = "CCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC"
)

// fakeDebrid serves a fixed set of links, keyed by info hash.
type fakeDebrid struct {
	links map[string]debrid.StreamLink
}

func (f *fakeDebrid) ID() string        { return "fake" }
func (f *fakeDebrid) ShortName() string { return "FK" }
func (f *fakeDebrid) Name() string      { return "Fake" }
func (f *fakeDebrid) SharedCache() bool { return true }

func (f *fakeDebrid) StreamLinks(ctx context.Context, _ debrid.Auth, infoHashes []string, _, _ int, stop <-chan struct{}) <-chan debrid.StreamLink {
	links := make(chan debrid.StreamLink)
	go func() {
		defer close(links)
		for _, infoHash := range infoHashes {
			link, found := f.links[infoHash]
			if !found {
				continue
			}
			select {
			case links <- link:
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return links
}

func (f *fakeDebrid) Resolve(_ context.Context, _ debrid.Auth, _, _ string) (string, error) {
	return "", debrid.ErrNoResolver
}

func newTestResolver(t *testing.T, searchTimeout time.Duration) (*Resolver, *odm.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client, err := db.NewClient(context.Background(), mr.Addr(), "", "annatar", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	store := odm.NewStore(client, zap.NewNop())
	bus := pubsub.NewBus(client, zap.NewNop())
	// The media lookup fails fast, so no search requests are published in tests
	cinemetaClient := cinemeta.NewClient(cinemeta.NewClientOpts("http://localhost:1", time.Second), cinemeta.NewInMemoryCache(), zap.NewNop())
	searcher := jackett.NewSearcher(cinemetaClient, client, bus, time.Hour, zap.NewNop())
	resolver := NewResolver(ResolverOptions{SearchTimeout: searchTimeout}, store, client, searcher, zap.NewNop())
	return resolver, store
}

func TestStreamsOrdering(t *testing.T) {
	ctx := context.Background()
	resolver, store := newTestResolver(t, 0)

	titles := map[string]string{
		hashA: "Fight.Club.1999.720p.x264.mkv",
		hashB: "Fight.Club.1999.4K.HDR.10bit.5.1.x265.mkv",
		hashC: "Fight.Club.1999.1080p.mkv",
	}
	provider := &fakeDebrid{links: map[string]debrid.StreamLink{}}
	for infoHash, title := range titles {
		meta := torrent.ParseTitle(title)
		score := meta.Score("Fight Club", 1999, 0, 0)
		_, err := store.AddTorrent(ctx, "tt0137523", infoHash, score)
		require.NoError(t, err)
		provider.links[infoHash] = debrid.StreamLink{
			URL:  "https://example.com/" + infoHash,
			Name: title,
			Size: 1024 * 1024 * 1024,
		}
	}

	results, err := resolver.Streams(ctx, provider, debrid.Auth{APIKey: "key"}, "tt0137523", torrent.CategoryMovie, 0, 0, nil, 5)
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Contains(t, results[0].Title, "4K")
	require.Contains(t, results[1].Title, "1080p")
	require.Contains(t, results[2].Title, "720p")

	require.Equal(t, "[FK+] Annatar FK 4K 5.1", results[0].Name)
	require.Contains(t, results[0].Title, "📺4K")
	require.Contains(t, results[0].Title, "🔊5.1")
	require.Contains(t, results[0].Title, "💾1.0 GiB")
}

func TestStreamsPerResolutionCap(t *testing.T) {
	ctx := context.Background()
	resolver, store := newTestResolver(t, 0)

	titles := map[string]string{
		hashA: "Fight.Club.1999.1080p.FIRST.mkv",
		hashB: "Fight.Club.1999.1080p.SECOND.mkv",
		hashC: "Fight.Club.1999.720p.mkv",
	}
	provider := &fakeDebrid{links: map[string]debrid.StreamLink{}}
	for infoHash, title := range titles {
		meta := torrent.ParseTitle(title)
		score := meta.Score("Fight Club", 1999, 0, 0)
		_, err := store.AddTorrent(ctx, "tt0137523", infoHash, score)
		require.NoError(t, err)
		provider.links[infoHash] = debrid.StreamLink{URL: "https://example.com/" + infoHash, Name: title, Size: 1024}
	}

	// With 3 max results each resolution gets a single slot
	results, err := resolver.Streams(ctx, provider, debrid.Auth{APIKey: "key"}, "tt0137523", torrent.CategoryMovie, 0, 0, nil, 3)
	require.NoError(t, err)
	require.Len(t, results, 2)

	var resolutions []string
	for _, result := range results {
		resolutions = append(resolutions, torrent.ParseTitle(result.Title).Resolution)
	}
	require.Equal(t, []string{"1080p", "720p"}, resolutions)
}

func TestStreamsNoTorrents(t *testing.T) {
	ctx := context.Background()
	resolver, _ := newTestResolver(t, 0)

	provider := &fakeDebrid{links: map[string]debrid.StreamLink{}}
	results, err := resolver.Streams(ctx, provider, debrid.Auth{APIKey: "key"}, "tt0137523", torrent.CategoryMovie, 0, 0, nil, 5)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestHashes(t *testing.T) {
	ctx := context.Background()
	resolver, store := newTestResolver(t, 0)

	_, err := store.AddTorrent(ctx, "tt0137523", hashA, 3)
	require.NoError(t, err)
	err = store.SetTorrentMeta(ctx, odm.Torrent{InfoHash: hashA, Title: "Fight.Club.1999.1080p.mkv", Size: 1024})
	require.NoError(t, err)

	hashes, err := resolver.Hashes(ctx, "tt0137523", torrent.CategoryMovie, 0, 0, 10)
	require.NoError(t, err)
	require.Len(t, hashes, 1)
	require.Equal(t, hashA, hashes[0].InfoHash)
	require.Equal(t, "Fight.Club.1999.1080p.mkv", hashes[0].Title)
}

func TestAwaitTorrentsFillTarget(t *testing.T) {
	ctx := context.Background()
	resolver, store := newTestResolver(t, 2*time.Second)
	oldInterval := pollInterval
	pollInterval = 10 * time.Millisecond
	t.Cleanup(func() { pollInterval = oldInterval })

	// A single early result must not cut the wait short, the poll goes on
	// until the fill target is reached
	go func() {
		time.Sleep(30 * time.Millisecond)
		store.AddTorrent(ctx, "tt0137523", hashA, 3)
		time.Sleep(60 * time.Millisecond)
		store.AddTorrent(ctx, "tt0137523", hashB, 2)
	}()

	hashes, err := resolver.awaitTorrents(ctx, "tt0137523", 10, 2, nil, torrent.CategoryMovie, 0, 0)
	require.NoError(t, err)
	require.Len(t, hashes, 2)
}

func TestAwaitTorrentsTimeout(t *testing.T) {
	ctx := context.Background()
	resolver, store := newTestResolver(t, 300*time.Millisecond)
	oldInterval := pollInterval
	pollInterval = 10 * time.Millisecond
	t.Cleanup(func() { pollInterval = oldInterval })

	_, err := store.AddTorrent(ctx, "tt0137523", hashA, 3)
	require.NoError(t, err)

	// The fill target is never reached, so the window closes and returns
	// what's there
	hashes, err := resolver.awaitTorrents(ctx, "tt0137523", 10, 5, nil, torrent.CategoryMovie, 0, 0)
	require.NoError(t, err)
	require.Equal(t, []string{hashA}, hashes)
}

func TestArrangeRows(t *testing.T) {
	require.Equal(t, "", arrangeRows(nil, 3))
	require.Equal(t, "a\nb", arrangeRows([]string{"a", "b"}, 3))
	require.Equal(t, "a b\nc d e", arrangeRows([]string{"a", "b", "c", "d", "e"}, 3))
	require.Equal(t, "a b c\nd e f", arrangeRows([]string{"a", "b", "c", "d", "e", "f"}, 2))
}
