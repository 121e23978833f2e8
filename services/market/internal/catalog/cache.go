package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const feedCacheKey = "secondhand:catalog:feed"

// Cache is an optional Redis read-through cache for the browse feed.
// Every failure is treated as a miss; the feed never fails because the
// cache is down.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache connects a feed cache with the given TTL.
func NewCache(addr, password string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		ttl: ttl,
	}
}

// Get returns the cached feed when present and decodable.
func (c *Cache) Get(ctx context.Context) ([]Summary, bool) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	data, err := c.client.Get(ctx, feedCacheKey).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Debug("feed cache get failed", "err", err)
		return nil, false
	}
	var items []Summary
	if err := json.Unmarshal(data, &items); err != nil {
		slog.Debug("feed cache decode failed", "err", err)
		return nil, false
	}
	return items, true
}

// Set stores the feed with TTL.
func (c *Cache) Set(ctx context.Context, items []Summary) {
	data, err := json.Marshal(items)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.client.Set(ctx, feedCacheKey, data, c.ttl).Err(); err != nil {
		slog.Debug("feed cache set failed", "err", err)
	}
}

// Invalidate drops the cached feed after a listing write.
func (c *Cache) Invalidate(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.client.Del(ctx, feedCacheKey).Err(); err != nil && err != redis.Nil {
		slog.Debug("feed cache invalidate failed", "err", err)
	}
}
