// Package redis holds the Redis-backed pieces shared by worker replicas and
// API instances: a JSON cache, the per-course matchmaking lock, a
// read-through user cache and the pub/sub transport used by the event bus.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds connection settings. Zero timeouts fall back to go-redis
// defaults.
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c Config) options() *redis.Options {
	return &redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		MaxRetries:   c.MaxRetries,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}

var (
	ErrCacheMiss          = errors.New("cache: key not found")
	ErrCacheConnection    = errors.New("cache: connection failed")
	ErrCacheSerialization = errors.New("cache: serialization failed")
	// ErrInvalidArgument covers empty keys, nil values and negative TTLs.
	ErrInvalidArgument = errors.New("cache: invalid argument")
)

// ══════════════════════════════════════════════════════════════════════════════
// KEYSPACE
// ══════════════════════════════════════════════════════════════════════════════

const keyspace = "groupmatch"

const (
	// TTLUserCache is how long a directory entry is served from cache.
	TTLUserCache = 10 * time.Minute
	// TTLCourseLock bounds a crashed worker's hold on a course.
	TTLCourseLock = 2 * time.Minute
)

func key(parts ...string) string {
	return keyspace + ":" + strings.Join(parts, ":")
}

// UserKey is the cache key of a directory entry.
func UserKey(userID string) string { return key("user", userID) }

// CourseLockKey is the lock key of a course batch.
func CourseLockKey(courseID string) string { return key("lock", "course", courseID) }

// ══════════════════════════════════════════════════════════════════════════════
// CACHE
// ══════════════════════════════════════════════════════════════════════════════

// Cache stores JSON documents in Redis and exposes the pub/sub primitives
// the event bus needs.
type Cache struct {
	client redis.UniversalClient
}

// NewCache dials Redis and pings it within DialTimeout (5s when unset).
func NewCache(ctx context.Context, cfg Config) (*Cache, error) {
	client := redis.NewClient(cfg.options())

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrCacheConnection, cfg.Addr, err)
	}
	return &Cache{client: client}, nil
}

// NewCacheFromClient wraps an existing client, e.g. one pointed at miniredis.
func NewCacheFromClient(client redis.UniversalClient) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Close() error                   { return c.client.Close() }
func (c *Cache) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }

// Set stores value as JSON. A zero ttl keeps the key until deleted.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty key", ErrInvalidArgument)
	case value == nil:
		return fmt.Errorf("%w: nil value for %s", ErrInvalidArgument, key)
	case ttl < 0:
		return fmt.Errorf("%w: negative ttl for %s", ErrInvalidArgument, key)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCacheSerialization, key, err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Get decodes the stored JSON into dest, or returns ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidArgument)
	}
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return ErrCacheMiss
	case err != nil:
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCacheSerialization, key, err)
	}
	return nil
}

// Delete removes keys; missing keys are ignored.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Publish sends a raw payload on channel.
func (c *Cache) Publish(ctx context.Context, channel string, payload []byte) error {
	if channel == "" {
		return fmt.Errorf("%w: empty channel", ErrInvalidArgument)
	}
	return c.client.Publish(ctx, channel, payload).Err()
}

// Subscribe opens a subscription; the caller closes the returned PubSub.
func (c *Cache) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.client.Subscribe(ctx, channels...)
}
