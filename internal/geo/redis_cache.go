package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vovakirdan/roomchat-server/internal/store"
)

// RedisCache keeps resolved locations in Redis with a TTL, so lookups are
// shared across restarts and instances.
type RedisCache struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache wraps an existing client.
func NewRedisCache(rdb redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: "roomchat:geo:", ttl: ttl}
}

// Get returns the cached location for ip, if any.
func (c *RedisCache) Get(ctx context.Context, ip string) (store.Location, bool, error) {
	raw, err := c.rdb.Get(ctx, c.prefix+ip).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return store.Location{}, false, nil
		}
		return store.Location{}, false, fmt.Errorf("redis get: %w", err)
	}

	var loc store.Location
	if err := json.Unmarshal(raw, &loc); err != nil {
		return store.Location{}, false, fmt.Errorf("decode cached location: %w", err)
	}
	return loc, true, nil
}

// Set stores loc for ip.
func (c *RedisCache) Set(ctx context.Context, ip string, loc store.Location) error {
	raw, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("encode location: %w", err)
	}
	if err := c.rdb.Set(ctx, c.prefix+ip, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
