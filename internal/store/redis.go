package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onchainos/steward/config"
)

// RedisCache backs the research cache with Redis and provides the advisory
// lock the watch scheduler uses so only one replica fires a due watch.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache dials Redis and verifies the connection.
func NewRedisCache(ctx context.Context, cfg config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Close() error { return c.client.Close() }

// Get implements research.Cache. Any Redis error reads as a miss.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	value, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) || err != nil {
		return "", false
	}
	return value, true
}

// Set implements research.Cache. Writes are best effort.
func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.client.Set(ctx, key, value, ttl)
}

// TryLock takes an advisory lock that expires after ttl. It returns false when
// another holder has the lock or Redis is unreachable.
func (c *RedisCache) TryLock(ctx context.Context, name string, ttl time.Duration) bool {
	ok, err := c.client.SetNX(ctx, "lock:"+name, "1", ttl).Result()
	if err != nil {
		return false
	}
	return ok
}

// Unlock releases a lock taken with TryLock.
func (c *RedisCache) Unlock(ctx context.Context, name string) {
	c.client.Del(ctx, "lock:"+name)
}
