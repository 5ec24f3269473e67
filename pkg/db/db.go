// Package db wraps the Redis connection. All addon state lives in Redis:
// scored torrent sets, metadata hashes, locks, counters, cache entries and
// the pub/sub topics.
package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

type Client struct {
	Redis  *redis.Client
	ns     string
	logger *zap.Logger
}

// NewClient connects to Redis and pings it once so that a misconfigured
// address fails at startup instead of on the first request.
// creds is either a password, or "username:password" for Redis 6 ACLs.
func NewClient(ctx context.Context, addr, creds, namespace string, logger *zap.Logger) (*Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("Redis address must not be empty")
	}
	var username, password string
	if creds != "" {
		credParts := strings.SplitN(creds, ":", 2)
		if len(credParts) == 2 {
			username = credParts[0]
			password = credParts[1]
		} else {
			password = credParts[0]
		}
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
	})
	rdb.AddHook(newMetricsHook())
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Couldn't ping Redis: %v", err)
	}
	return &Client{
		Redis:  rdb,
		ns:     namespace,
		logger: logger,
	}, nil
}

// Key builds a namespaced Redis key.
func (c *Client) Key(parts ...string) string {
	return c.ns + ":" + strings.Join(parts, ":")
}

// TryLock takes a TTL lock via SET NX. It reports whether the lock was
// acquired. Locks double as negative cache markers, so the happy path never
// releases them - they just expire.
func (c *Client) TryLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	key := c.Key("lock", name)
	acquired, err := c.Redis.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("Couldn't acquire lock %v: %v", key, err)
	}
	return acquired, nil
}

// Unlock releases a lock early. Only meant for failure paths, where keeping
// the lock for its full TTL would suppress retries.
func (c *Client) Unlock(ctx context.Context, name string) {
	key := c.Key("lock", name)
	if err := c.Redis.Del(ctx, key).Err(); err != nil {
		c.logger.Error("Couldn't release lock", zap.Error(err), zap.String("lock", key))
	}
}

// PFAdd adds values to a namespaced HyperLogLog.
func (c *Client) PFAdd(ctx context.Context, name string, values ...string) error {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	if err := c.Redis.PFAdd(ctx, c.Key(name), args...).Err(); err != nil {
		return fmt.Errorf("Couldn't add to HyperLogLog %v: %v", name, err)
	}
	return nil
}

// PFCount returns the approximate cardinality of a namespaced HyperLogLog.
func (c *Client) PFCount(ctx context.Context, name string) (int64, error) {
	count, err := c.Redis.PFCount(ctx, c.Key(name)).Result()
	if err != nil {
		return 0, fmt.Errorf("Couldn't count HyperLogLog %v: %v", name, err)
	}
	return count, nil
}

// Set writes a string cache entry with a TTL.
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.Redis.Set(ctx, c.Key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("Couldn't set cache entry %v: %v", key, err)
	}
	return nil
}

// Get reads a string cache entry. The second return value is false when the
// entry doesn't exist.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.Redis.Get(ctx, c.Key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	} else if err != nil {
		return "", false, fmt.Errorf("Couldn't get cache entry %v: %v", key, err)
	}
	return value, true, nil
}

// Close closes the underlying Redis connection.
func (c *Client) Close() error {
	return c.Redis.Close()
}
