package cinemeta

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReleaseYear(t *testing.T) {
	require.Equal(t, 1994, releaseYear("1994"))
	// Cinemeta uses an en-dash in ranges
	require.Equal(t, 2004, releaseYear("1994–2004"))
	require.Equal(t, 2004, releaseYear("1994-2004"))
	// Still running
	require.Equal(t, 0, releaseYear("1994–"))
	require.Equal(t, 0, releaseYear(""))
}

func TestGetMediaInfo(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		require.Equal(t, "/meta/series/tt0108778.json", r.URL.Path)
		fmt.Fprint(w, `{"meta":{"id":"tt0108778","type":"series","name":"Friends","releaseInfo":"1994–2004"}}`)
	}))
	defer srv.Close()

	client := NewClient(NewClientOpts(srv.URL, DefaultClientOpts.Timeout), NewInMemoryCache(), zap.NewNop())
	ctx := context.Background()

	info, err := client.GetMediaInfo(ctx, "series", "tt0108778")
	require.NoError(t, err)
	require.Equal(t, MediaInfo{ID: "tt0108778", Type: "series", Name: "Friends", Year: 2004}, info)

	// Second lookup is served from the cache
	info, err = client.GetMediaInfo(ctx, "series", "tt0108778")
	require.NoError(t, err)
	require.Equal(t, "Friends", info.Name)
	require.Equal(t, 1, requests)
}

func TestGetMediaInfoNoMeta(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	client := NewClient(NewClientOpts(srv.URL, DefaultClientOpts.Timeout), NewInMemoryCache(), zap.NewNop())
	_, err := client.GetMediaInfo(context.Background(), "movie", "tt9999999")
	require.Error(t, err)
}
