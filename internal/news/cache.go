package news

import (
	"context"
	"encoding/json"
	"time"

	"github.com/newsly/newsly/internal/domain"
	"github.com/newsly/newsly/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Cache stores fetched headlines per topic.
type Cache interface {
	Get(ctx context.Context, key string) ([]domain.Headline, bool)
	Set(ctx context.Context, key string, items []domain.Headline, ttl time.Duration)
}

// RedisCache is a Cache backed by Redis string keys holding JSON.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns cached items. Misses and Redis errors both report false.
func (c *RedisCache) Get(ctx context.Context, key string) ([]domain.Headline, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("news: cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	var items []domain.Headline
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	return items, true
}

// Set stores items for ttl. Failures are logged and ignored.
func (c *RedisCache) Set(ctx context.Context, key string, items []domain.Headline, ttl time.Duration) {
	raw, err := json.Marshal(items)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		logger.Warn("news: cache write failed", "key", key, "error", err)
	}
}
