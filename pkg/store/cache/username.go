// Package cache provides the username-to-Telegram-id lookup cache.
//
// The cache is two-level: a small in-process expirable LRU in front of
// Redis. Both levels share the same TTL. All failures degrade to a cache
// miss; callers re-resolve through the Telegram Bot API.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultTTL bounds how long a username->id mapping is trusted.
	DefaultTTL = time.Hour
	// defaultL1Size bounds the in-process level.
	defaultL1Size = 1024
)

func usernameKey(username string) string {
	return fmt.Sprintf("tg:username:%s:user_id", username)
}

// MetricsRecorder counts cache hits and misses per tier ("memory" or
// "redis").
type MetricsRecorder interface {
	RecordCacheHit(tier string)
	RecordCacheMiss(tier string)
}

// UsernameCache caches username -> telegramUserID lookups.
type UsernameCache struct {
	client  *redis.Client
	l1      *expirable.LRU[string, int64]
	ttl     time.Duration
	metrics MetricsRecorder
}

// New connects to Redis and returns a cache. A zero ttl falls back to
// DefaultTTL. The connection is verified with a ping so misconfiguration
// surfaces at startup rather than as silent misses.
func New(redisURL string, ttl time.Duration) (*UsernameCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewWithClient(client, ttl), nil
}

// NewWithClient wraps an existing Redis client. A zero ttl falls back to
// DefaultTTL.
func NewWithClient(client *redis.Client, ttl time.Duration) *UsernameCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &UsernameCache{
		client: client,
		l1:     expirable.NewLRU[string, int64](defaultL1Size, nil, ttl),
		ttl:    ttl,
	}
}

// WithMetrics attaches a hit/miss recorder and returns the cache.
func (c *UsernameCache) WithMetrics(m MetricsRecorder) *UsernameCache {
	c.metrics = m
	return c
}

func (c *UsernameCache) recordHit(tier string) {
	if c.metrics != nil {
		c.metrics.RecordCacheHit(tier)
	}
}

func (c *UsernameCache) recordMiss(tier string) {
	if c.metrics != nil {
		c.metrics.RecordCacheMiss(tier)
	}
}

// Get returns the cached telegram id for username. Any Redis failure is
// reported as a miss.
func (c *UsernameCache) Get(ctx context.Context, username string) (int64, bool) {
	if id, ok := c.l1.Get(username); ok {
		c.recordHit("memory")
		return id, true
	}
	c.recordMiss("memory")

	data, err := c.client.Get(ctx, usernameKey(username)).Result()
	if err != nil {
		c.recordMiss("redis")
		return 0, false
	}
	id, err := strconv.ParseInt(data, 10, 64)
	if err != nil {
		// Corrupt entry, drop it.
		c.client.Del(ctx, usernameKey(username))
		c.recordMiss("redis")
		return 0, false
	}

	c.recordHit("redis")
	c.l1.Add(username, id)
	return id, true
}

// Set stores the mapping in both levels. It reports whether the Redis
// write succeeded; the L1 entry is added regardless.
func (c *UsernameCache) Set(ctx context.Context, username string, telegramUserID int64) bool {
	c.l1.Add(username, telegramUserID)

	err := c.client.Set(ctx, usernameKey(username),
		strconv.FormatInt(telegramUserID, 10), c.ttl).Err()
	return err == nil
}

// Invalidate drops the mapping from both levels.
func (c *UsernameCache) Invalidate(ctx context.Context, username string) bool {
	c.l1.Remove(username)
	return c.client.Del(ctx, usernameKey(username)).Err() == nil
}

// Ping checks Redis connectivity.
func (c *UsernameCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *UsernameCache) Close() error {
	return c.client.Close()
}
