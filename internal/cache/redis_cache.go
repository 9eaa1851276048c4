package cache

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "labelkit:symbol:"

type RedisSymbolCache struct {
	client *redis.Client
}

func NewRedisSymbolCache(addr string, password string, db int) *RedisSymbolCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisSymbolCache{client: client}
}

func (c *RedisSymbolCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSymbolCache) Close() error {
	return c.client.Close()
}

func (c *RedisSymbolCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisSymbolCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if len(value) == 0 {
		return nil
	}
	return c.client.Set(ctx, keyPrefix+key, value, ttl).Err()
}
