// Package pubsub is a thin typed layer over Redis pub/sub. Events are
// best-effort wake-up signals - the ODM store is the system of record and
// consumers must be able to miss an event without losing data.
package pubsub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/annatar-tv/annatar/pkg/db"
)

type Bus struct {
	db     *db.Client
	logger *zap.Logger
}

func NewBus(dbClient *db.Client, logger *zap.Logger) *Bus {
	return &Bus{
		db:     dbClient,
		logger: logger,
	}
}

// Publish marshals the payload and publishes it to the topic. It's
// best-effort: errors are logged, never returned, so a dead subscriber can't
// fail a write path.
func (b *Bus) Publish(ctx context.Context, topic Topic, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("Couldn't marshal event", zap.Error(err), zap.String("topic", string(topic)))
		return
	}
	if err = b.db.Redis.Publish(ctx, b.db.Key(string(topic)), body).Err(); err != nil {
		b.logger.Error("Couldn't publish event", zap.Error(err), zap.String("topic", string(topic)))
	}
}

// Consume subscribes to the topic and feeds messages to a pool of worker
// goroutines. It blocks until ctx is canceled and resubscribes when the
// subscription dies unexpectedly.
func (b *Bus) Consume(ctx context.Context, topic Topic, workers int, handle func(context.Context, []byte)) {
	if workers < 1 {
		workers = 1
	}
	channel := b.db.Key(string(topic))
	for {
		sub := b.db.Redis.Subscribe(ctx, channel)
		msgs := sub.Channel()

		queue := make(chan []byte)
		var wg sync.WaitGroup
		wg.Add(workers)
		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()
				for body := range queue {
					handle(ctx, body)
				}
			}()
		}

		subscriptionAlive := true
		for subscriptionAlive {
			select {
			case <-ctx.Done():
				close(queue)
				wg.Wait()
				sub.Close()
				return
			case msg, ok := <-msgs:
				if !ok {
					subscriptionAlive = false
					break
				}
				queue <- []byte(msg.Payload)
			}
		}

		close(queue)
		wg.Wait()
		sub.Close()
		b.logger.Error("Subscription closed unexpectedly, resubscribing", zap.String("topic", string(topic)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}
