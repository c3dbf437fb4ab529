package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
)

const keyPrefix = "leads:processed:"

type redisCommands interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisCache shares the seen set between worker replicas and survives restarts.
type RedisCache struct {
	client redisCommands
	ttl    time.Duration
}

func NewRedisCache(client redisCommands, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// OpenRedis parses url, connects and verifies the server answers PING.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, domain.WrapError(domain.ErrServiceUnavailable, "ping redis", err)
	}
	return client, nil
}

func (c *RedisCache) Seen(ctx context.Context, messageID string) (bool, error) {
	n, err := c.client.Exists(ctx, keyPrefix+messageID).Result()
	if err != nil {
		return false, domain.WrapError(domain.ErrServiceUnavailable, "redis exists", err)
	}
	return n > 0, nil
}

func (c *RedisCache) MarkSeen(ctx context.Context, messageID string) error {
	// SET NX keeps the first expiry; a repeated mark is a no-op.
	if err := c.client.SetNX(ctx, keyPrefix+messageID, 1, c.ttl).Err(); err != nil {
		return domain.WrapError(domain.ErrServiceUnavailable, "redis setnx", err)
	}
	return nil
}
