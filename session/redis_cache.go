package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const minCacheTTL = time.Second

// RedisCache stores JSON-encoded sessions under "<prefix>:<id>".
type RedisCache struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisCache returns a cache on rdb. An empty prefix selects "gs".
func NewRedisCache(rdb redis.UniversalClient, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "gs"
	}
	return &RedisCache{redis: rdb, prefix: prefix}
}

func (c *RedisCache) key(id string) string {
	return c.prefix + ":" + id
}

// Get returns the cached session or (nil, nil) on a miss.
func (c *RedisCache) Get(ctx context.Context, id string) (*Session, error) {
	data, err := c.redis.Get(ctx, c.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		// Corrupt entries are dropped and treated as a miss.
		_ = c.redis.Del(ctx, c.key(id)).Err()
		return nil, nil
	}
	return &s, nil
}

// Set writes s with ttl.
func (c *RedisCache) Set(ctx context.Context, s *Session, ttl time.Duration) error {
	if ttl < minCacheTTL {
		ttl = minCacheTTL
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := c.redis.Set(ctx, c.key(s.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Delete removes one entry. Deleting a missing entry is not an error.
func (c *RedisCache) Delete(ctx context.Context, id string) error {
	if err := c.redis.Del(ctx, c.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.redis.Close()
}
