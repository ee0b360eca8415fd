// Package sharedcache abstracts the cross-replica counter store the gateway
// depends on for rate limiting, monthly usage counters, latency EWMAs, and
// control-plane session storage.
//
// A real deployment backs this with Redis (see NewRedis); tests and single
// process deployments can use NewMemory, which implements the exact same
// atomic-increment and TTL semantics against an in-process map.
package sharedcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get when a key does not exist (or has expired).
var ErrNotFound = errors.New("sharedcache: not found")

// Client is the shared-cache contract the rest of the gateway depends on.
// All operations are safe to call concurrently and must remain correct
// across horizontal replicas when backed by Redis.
type Client interface {
	// Incr atomically increments key and returns the post-increment value.
	// If this increment created the key (post-increment value == 1), ttl is
	// applied so the counter expires naturally.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Get returns the string stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value at key with the given ttl (0 = no expiry).
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// TTL returns the remaining time-to-live for key, or 0 if it has none.
	TTL(ctx context.Context, key string) (time.Duration, error)
	// Delete removes key.
	Delete(ctx context.Context, key string) error
	// Ping verifies connectivity (used by the readiness health check).
	Ping(ctx context.Context) error
}

// ---------------------------------------------------------------- Redis ----

// redisClient adapts *redis.Client to the Client interface.
type redisClient struct {
	rdb *redis.Client
}

// NewRedis creates a Client from a Redis connection URL (REDIS_URL).
func NewRedis(ctx context.Context, redisURL string) (Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return &redisClient{rdb: rdb}, nil
}

func (c *redisClient) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := c.rdb.Pipeline()
	incr := pipe.Incr(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	n := incr.Val()
	if n == 1 && ttl > 0 {
		// Only the increment that created the key sets the TTL — later
		// increments within the window must not refresh it.
		c.rdb.Expire(ctx, key, ttl)
	}
	return n, nil
}

func (c *redisClient) Get(ctx context.Context, key string) (string, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return v, nil
}

func (c *redisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (c *redisClient) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := c.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("ttl %s: %w", key, err)
	}
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

func (c *redisClient) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (c *redisClient) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// --------------------------------------------------------------- Memory ----

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory is an in-process Client, used in tests and single-instance
// deployments that run without Redis. It implements the same
// increment-then-set-TTL-once semantics as the Redis client.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemory creates an in-process shared-cache client.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

func (m *Memory) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	e, ok := m.entries[key]
	if !ok || e.expired(now) {
		e = memoryEntry{value: "0"}
	}
	var n int64
	_, _ = fmt.Sscanf(e.value, "%d", &n)
	n++
	e.value = fmt.Sprintf("%d", n)
	if n == 1 && ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	m.entries[key] = e
	return n, nil
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.expired(time.Now()) {
		return "", ErrNotFound
	}
	return e.value, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *Memory) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.expired(time.Now()) {
		return 0, nil
	}
	if e.expiresAt.IsZero() {
		return 0, nil
	}
	d := time.Until(e.expiresAt)
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) Ping(_ context.Context) error { return nil }
