// Package cache keeps resolved mappings in Redis so redirects skip the
// database on repeat visits.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/atinyakov/shortlinks/internal/storage"
)

const (
	keyPrefix     = "mapping:"
	versionPrefix = "mapping-version:"
)

var (
	// ErrCacheMiss is returned by Get when the code is not cached.
	ErrCacheMiss = errors.New("cache miss")

	// ErrStaleFill is returned by SetIfVersion when the code was invalidated
	// after the caller read its version.
	ErrStaleFill = errors.New("cache fill is stale")
)

// Cache stores mappings by code. Every Invalidate bumps the version of the
// codes it touches, so a fill that started before it cannot land after it.
type Cache interface {
	Get(ctx context.Context, code string) (*storage.Mapping, error)
	Version(ctx context.Context, code string) (int64, error)
	SetIfVersion(ctx context.Context, m *storage.Mapping, version int64) error
	Invalidate(ctx context.Context, codes ...string) error
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Cache = (*RedisCache)(nil)
	_ Cache = Noop{}
)

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache connects to addr and fails when Redis does not answer a ping.
func NewRedisCache(ctx context.Context, addr, password string, ttl time.Duration, logger *zap.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", addr, err)
	}

	return NewRedisCacheFromClient(client, ttl, logger), nil
}

func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, code string) (*storage.Mapping, error) {
	data, err := c.client.Get(ctx, keyPrefix+code).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}

	var m storage.Mapping
	if err := json.Unmarshal(data, &m); err != nil {
		c.logger.Warn("dropping unreadable cache entry", zap.String("code", code), zap.Error(err))
		_ = c.client.Del(ctx, keyPrefix+code).Err()
		return nil, ErrCacheMiss
	}
	return &m, nil
}

func (c *RedisCache) Version(ctx context.Context, code string) (int64, error) {
	return c.version(ctx, c.client, code)
}

// getter is satisfied by both the client and a watched transaction.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (c *RedisCache) version(ctx context.Context, r getter, code string) (int64, error) {
	v, err := r.Get(ctx, versionPrefix+code).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache version: %w", err)
	}
	return v, nil
}

// SetIfVersion stores m only while the version key of its code still holds
// version. The version key is watched, so a concurrent Invalidate aborts the write.
func (c *RedisCache) SetIfVersion(ctx context.Context, m *storage.Mapping, version int64) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := c.version(ctx, tx, m.Code)
		if err != nil {
			return err
		}
		if current != version {
			return ErrStaleFill
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, keyPrefix+m.Code, data, c.ttl)
			return nil
		})
		return err
	}, versionPrefix+m.Code)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStaleFill), errors.Is(err, redis.TxFailedErr):
		return ErrStaleFill
	default:
		return fmt.Errorf("cache set: %w", err)
	}
}

// Invalidate drops the cached entries and bumps their versions in one transaction.
// A version key expires two TTLs after the last invalidation of its code.
func (c *RedisCache) Invalidate(ctx context.Context, codes ...string) error {
	if len(codes) == 0 {
		return nil
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, code := range codes {
			pipe.Del(ctx, keyPrefix+code)
			pipe.Incr(ctx, versionPrefix+code)
			pipe.Expire(ctx, versionPrefix+code, 2*c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Noop is used when no Redis address is configured. Every Get misses.
type Noop struct{}

func (Noop) Get(context.Context, string) (*storage.Mapping, error)       { return nil, ErrCacheMiss }
func (Noop) Version(context.Context, string) (int64, error)              { return 0, nil }
func (Noop) SetIfVersion(context.Context, *storage.Mapping, int64) error { return nil }
func (Noop) Invalidate(context.Context, ...string) error                 { return nil }
func (Noop) Ping(context.Context) error                                  { return nil }
func (Noop) Close() error                                                { return nil }
