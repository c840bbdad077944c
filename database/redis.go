package database

import (
	"MediSlot/config"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrLockNotOwned is returned when releasing a lock that expired or was taken over.
var ErrLockNotOwned = errors.New("lock release failed: not the lock owner")

type RedisConfig struct {
	URL          string
	PoolSize     int
	DialTimeout  time.Duration
	MinIdleConns int
	ReadTimeout  time.Duration
	MaxRetries   int
}

// RedisConfigFrom extracts the Redis settings from the application config.
func RedisConfigFrom(cfg *config.AppConfig) RedisConfig {
	return RedisConfig{
		URL:          cfg.RedisAddress,
		PoolSize:     cfg.RedisPoolSize,
		DialTimeout:  cfg.RedisDialTimeout,
		MinIdleConns: cfg.RedisMinIdleConns,
		ReadTimeout:  cfg.RedisReadTimeout,
		MaxRetries:   cfg.RedisMaxRetries,
	}
}

// NewRedisClient creates a Redis client with the provided configuration
func NewRedisClient(ctx context.Context, config RedisConfig) (*redis.Client, error) {
	opt, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opt.PoolSize = config.PoolSize
	opt.MinIdleConns = config.MinIdleConns
	opt.DialTimeout = config.DialTimeout
	opt.ReadTimeout = config.ReadTimeout
	opt.MaxRetries = config.MaxRetries

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis server: %w", err)
	}

	log.Info().
		Int("pool_size", config.PoolSize).
		Int("min_idle_conns", config.MinIdleConns).
		Dur("dial_timeout", config.DialTimeout).
		Dur("read_timeout", config.ReadTimeout).
		Int("max_retries", config.MaxRetries).
		Msg("Redis client initialized")
	return client, nil
}

const releaseLockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// RedisLocker hands out short-lived distributed locks so that background jobs
// run on one replica at a time.
type RedisLocker struct {
	client  *redis.Client
	release *redis.Script
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, release: redis.NewScript(releaseLockScript)}
}

// TryLock acquires key for ttl. When the lock is held elsewhere it returns
// ok=false and a nil error. The returned unlock func is safe to call once.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if l.client == nil {
		return nil, false, errors.New("Redis client is not initialized")
	}

	value := uuid.New().String()
	ok, err := l.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	unlock := func() {
		// The job context may already be canceled on shutdown.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.Release(releaseCtx, key, value); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to release lock")
		}
	}
	return unlock, true, nil
}

// Release deletes key only when it still holds value.
func (l *RedisLocker) Release(ctx context.Context, key, value string) error {
	result, err := l.release.Run(ctx, l.client, []string{key}, value).Result()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if n, ok := result.(int64); !ok || n == 0 {
		return ErrLockNotOwned
	}
	return nil
}
