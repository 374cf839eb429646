package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/deepworx/go-commerceauth/pkg/shutdown"
)

// RedisConfig holds configuration for the Redis backend.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	// Required.
	Addr string `koanf:"addr"`

	// Username for Redis ACL authentication.
	Username string `koanf:"username"`

	// Password for Redis authentication. Supports file:// references.
	Password string `koanf:"password"`

	// DB selects the Redis logical database.
	DB int `koanf:"db"`

	// KeyPrefix is prepended to every stored key.
	// Defaults to "commerceauth:token:" if empty.
	KeyPrefix string `koanf:"key_prefix"`
}

// DefaultRedisConfig returns a RedisConfig with sensible defaults.
// Addr must be set by the caller.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{KeyPrefix: "commerceauth:token:"}
}

// NewRedisClient connects to Redis and verifies connectivity.
// It registers a shutdown handler to close the client.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("create redis client: %w", ErrAddrRequired)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	shutdown.Register(func(_ context.Context) error {
		return client.Close()
	})

	return client, nil
}

// Redis is a Cache shared between processes through Redis.
// Entries are stored as "1" or "0" under the prefixed SHA-256 digest of the key.
type Redis struct {
	client redis.Cmdable
	prefix string
	group  singleflight.Group
}

// NewRedis creates a Redis cache on an existing client.
// An empty prefix selects the default one.
func NewRedis(client redis.Cmdable, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisConfig().KeyPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

// GetOrAdd implements Cache.
func (r *Redis) GetOrAdd(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc) (bool, error) {
	storeKey := r.prefix + HashKey(key)

	valid, found, err := r.get(ctx, storeKey)
	if err != nil {
		return false, err
	}
	RecordLookup(ctx, "redis", found)
	if found {
		return valid, nil
	}

	v, err, _ := r.group.Do(storeKey, func() (any, error) {
		valid, err := compute(ctx)
		if err != nil {
			return false, err
		}

		value := "0"
		if valid {
			value = "1"
		}
		if ttl < 0 {
			ttl = 0
		}
		if err := r.client.Set(ctx, storeKey, value, ttl).Err(); err != nil {
			return false, fmt.Errorf("store validation: %w", err)
		}
		return valid, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Remove implements Cache.
func (r *Redis) Remove(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+HashKey(key)).Err(); err != nil {
		return fmt.Errorf("remove validation: %w", err)
	}
	return nil
}

func (r *Redis) get(ctx context.Context, storeKey string) (valid, found bool, err error) {
	value, err := r.client.Get(ctx, storeKey).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("load validation: %w", err)
	}
	return value == "1", true, nil
}

var _ Cache = (*Redis)(nil)
