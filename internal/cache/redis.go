package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"erpquery/internal/logger"
)

// RedisCache stores entries in redis under a common key prefix.
// Redis errors degrade to cache misses.
type RedisCache struct {
	client *redis.Client
	prefix string
	log    *zap.Logger
}

// RedisOptions configures NewRedisCache.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisCache connects to redis and pings it once.
func NewRedisCache(ctx context.Context, opts RedisOptions, log *zap.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisCacheFromClient(client, opts.Prefix, log), nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, prefix string, log *zap.Logger) *RedisCache {
	log = logger.OrNop(log)
	return &RedisCache{client: client, prefix: prefix, log: log}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("redis get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		c.log.Warn("redis set failed", zap.String("key", key), zap.Error(err))
	}
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
