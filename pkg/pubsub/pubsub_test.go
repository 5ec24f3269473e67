package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/annatar-tv/annatar/pkg/db"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client, err := db.NewClient(context.Background(), mr.Addr(), "", "annatar", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return NewBus(client, zap.NewNop())
}

func TestPublishConsume(t *testing.T) {
	bus := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan SearchRequest, 1)
	consumerRunning := make(chan struct{})
	go func() {
		close(consumerRunning)
		bus.Consume(ctx, TopicSearchRequest, 2, func(_ context.Context, body []byte) {
			var req SearchRequest
			if err := json.Unmarshal(body, &req); err != nil {
				return
			}
			received <- req
		})
	}()
	<-consumerRunning
	// Give the subscription a moment to be established
	time.Sleep(100 * time.Millisecond)

	sent := SearchRequest{IMDB: "tt0108778", Category: "series", Season: 5, Episode: 10}
	bus.Publish(ctx, TopicSearchRequest, sent)

	select {
	case got := <-received:
		require.Equal(t, sent, got)
	case <-time.After(3 * time.Second):
		t.Fatal("consumer didn't receive the published event")
	}
}

func TestConsumeStopsOnCancel(t *testing.T) {
	bus := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		bus.Consume(ctx, TopicTorrentAdded, 1, func(context.Context, []byte) {})
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("consumer didn't stop on context cancel")
	}
}
