package realdebrid

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/annatar-tv/annatar/pkg/debrid"
)

const testHash = "DD8255ECDC7CA55FB0BBF81323D87062DB1F6D1C"

func newTestClient(t *testing.T, baseURL string) (*Client, *debrid.InMemoryCache) {
	t.Helper()
	cache := debrid.NewInMemoryCache()
	client, err := NewClient(NewClientOpts(baseURL, time.Second, nil), cache, zap.NewNop())
	require.NoError(t, err)
	return client, cache
}

func availabilityHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		fmt.Fprintf(w, `{"%v": {"rd": [
			{"1": {"filename": "sample.mkv", "filesize": 1048576},
			 "2": {"filename": "Fight.Club.1999.1080p.mkv", "filesize": 8589934592}}
		]}}`, strings.ToLower(testHash))
	}
}

func TestStreamLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/1.0/torrents/instantAvailability/"+strings.ToLower(testHash), r.URL.Path)
		availabilityHandler(t)(w, r)
	}))
	defer srv.Close()
	client, _ := newTestClient(t, srv.URL)

	auth := debrid.Auth{APIKey: "test-key"}
	stop := make(chan struct{})
	defer close(stop)

	var links []debrid.StreamLink
	for link := range client.StreamLinks(context.Background(), auth, []string{testHash}, 0, 0, stop) {
		links = append(links, link)
	}
	require.Len(t, links, 1)
	require.Equal(t, "/rd/test-key/"+testHash+"/2", links[0].URL)
	require.Equal(t, "Fight.Club.1999.1080p.mkv", links[0].Name)
	require.Equal(t, int64(8589934592), links[0].Size)
}

func TestResolve(t *testing.T) {
	var selectedFiles string
	unrestricted := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/rest/1.0/torrents/instantAvailability/"):
			availabilityHandler(t)(w, r)
		case r.URL.Path == "/rest/1.0/torrents/addMagnet":
			require.NoError(t, r.ParseForm())
			require.Contains(t, r.PostForm.Get("magnet"), strings.ToLower(testHash))
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"id": "torrent-1"}`)
		case r.URL.Path == "/rest/1.0/torrents/selectFiles/torrent-1":
			require.NoError(t, r.ParseForm())
			selectedFiles = r.PostForm.Get("files")
			w.WriteHeader(http.StatusNoContent)
		case r.URL.Path == "/rest/1.0/torrents/info/torrent-1":
			fmt.Fprint(w, `{
				"id": "torrent-1",
				"status": "downloaded",
				"files": [
					{"id": 1, "path": "/sample.mkv", "bytes": 1048576, "selected": 1},
					{"id": 2, "path": "/Fight.Club.1999.1080p.mkv", "bytes": 8589934592, "selected": 1}
				],
				"links": ["https://real-debrid.com/d/ONE", "https://real-debrid.com/d/TWO"]
			}`)
		case r.URL.Path == "/rest/1.0/unrestrict/link":
			require.NoError(t, r.ParseForm())
			require.Equal(t, "https://real-debrid.com/d/TWO", r.PostForm.Get("link"))
			unrestricted = true
			fmt.Fprint(w, `{"download": "https://dl.real-debrid.com/video.mkv"}`)
		default:
			t.Errorf("unexpected request to %v", r.URL.Path)
		}
	}))
	defer srv.Close()
	client, _ := newTestClient(t, srv.URL)

	auth := debrid.Auth{APIKey: "test-key"}
	stop := make(chan struct{})
	// The probe caches the instant file set that Resolve needs
	for range client.StreamLinks(context.Background(), auth, []string{testHash}, 0, 0, stop) {
	}
	close(stop)

	streamURL, err := client.Resolve(context.Background(), auth, testHash, "2")
	require.NoError(t, err)
	require.Equal(t, "https://dl.real-debrid.com/video.mkv", streamURL)
	require.Equal(t, "1,2", selectedFiles)
	require.True(t, unrestricted)

	// The second resolve is served from the cache
	unrestricted = false
	streamURL, err = client.Resolve(context.Background(), auth, testHash, "2")
	require.NoError(t, err)
	require.Equal(t, "https://dl.real-debrid.com/video.mkv", streamURL)
	require.False(t, unrestricted)
}

func TestResolveWithoutFileSet(t *testing.T) {
	client, _ := newTestClient(t, "http://localhost:1")
	_, err := client.Resolve(context.Background(), debrid.Auth{APIKey: "test-key"}, testHash, "2")
	require.Error(t, err)
}
