package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrNotInitialized is returned by every operation of a Cache without a client.
var ErrNotInitialized = errors.New("Redis client is not initialized")

// Cache is the string key/value store behind the directory, user, reset code
// and available slot caches. A missing key reads as an empty string.
type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) (*Cache, error) {
	if client == nil {
		return nil, ErrNotInitialized
	}
	return &Cache{client: client}, nil
}

func (c *Cache) ready() error {
	if c == nil || c.client == nil {
		return ErrNotInitialized
	}
	return nil
}

func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

func (c *Cache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.client.Set(ctx, key, value, expiration).Err()
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.DeleteBatch(ctx, key)
}

// DeleteBatch removes keys in one round trip.
func (c *Cache) DeleteBatch(ctx context.Context, keys ...string) error {
	if err := c.ready(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Incr increments the counter at key and refreshes its expiration.
func (c *Cache) Incr(ctx context.Context, key string, expiration time.Duration) (int64, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	var incr *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		if expiration > 0 {
			pipe.Expire(ctx, key, expiration)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
