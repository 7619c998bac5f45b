package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOption configures RedisCache.
type RedisOption func(*redisConfig)

type redisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

func WithAddr(addr string) RedisOption {
	return func(c *redisConfig) { c.Addr = addr }
}

func WithPassword(password string) RedisOption {
	return func(c *redisConfig) { c.Password = password }
}

func WithDB(db int) RedisOption {
	return func(c *redisConfig) { c.DB = db }
}

func WithKeyPrefix(prefix string) RedisOption {
	return func(c *redisConfig) { c.KeyPrefix = prefix }
}

// RedisCache implements Service on go-redis. Values are JSON-encoded.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects to Redis and verifies connectivity with a ping.
func NewRedisCache(opts ...RedisOption) (*RedisCache, error) {
	cfg := &redisConfig{Addr: "localhost:6379", KeyPrefix: "tradefuse:"}
	for _, opt := range opts {
		opt(cfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisCache{client: client, prefix: cfg.KeyPrefix}, nil
}

// Client exposes the underlying go-redis client (queue, locks).
func (c *RedisCache) Client() *redis.Client { return c.client }

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	return c.client.Set(ctx, c.prefix+key, b, expiration).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	b, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("redis get: %w", err)
	}
	return json.Unmarshal(b, dest)
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	wrapped := make([]string, len(keys))
	for i, k := range keys {
		wrapped[i] = c.prefix + k
	}
	return c.client.Del(ctx, wrapped...).Err()
}

func (c *RedisCache) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("marshal value: %w", err)
	}
	return c.client.SetNX(ctx, c.prefix+key, b, expiration).Result()
}

func (c *RedisCache) Close() error { return c.client.Close() }
