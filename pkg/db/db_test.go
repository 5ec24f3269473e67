package db

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client, err := NewClient(context.Background(), mr.Addr(), "", "annatar", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestTryLock(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	acquired, err := client.TryLock(ctx, "search:tt0108778", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	// Second take must fail while the lock lives
	acquired, err = client.TryLock(ctx, "search:tt0108778", time.Minute)
	require.NoError(t, err)
	require.False(t, acquired)

	// After an explicit unlock it's free again
	client.Unlock(ctx, "search:tt0108778")
	acquired, err = client.TryLock(ctx, "search:tt0108778", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)
}

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	_, found, err := client.Get(ctx, "magnet:resolve:abc")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, client.Set(ctx, "magnet:resolve:abc", "magnet:?xt=urn:btih:123", time.Hour))

	value, found, err := client.Get(ctx, "magnet:resolve:abc")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "magnet:?xt=urn:btih:123", value)
}
