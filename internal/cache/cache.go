// Package cache stores JSON-encoded values with a TTL, either in process
// memory or in Redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"

	"voice-trading-assistant-go/internal/config"
)

// Cache is a TTL key-value store. Get reports false for missing or expired keys.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Close() error
}

// New returns a Redis cache when cfg.RedisAddr is set, otherwise an in-memory one.
func New(cfg config.Cache) (Cache, error) {
	if cfg.RedisAddr == "" {
		return NewMemory(), nil
	}
	return NewRedis(cfg)
}

// Memory is a process-local cache. Expired entries are never returned and are
// purged on the next write.
type Memory struct {
	items *ttlcache.Cache[string, []byte]
}

var _ Cache = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		items: ttlcache.New[string, []byte](ttlcache.WithDisableTouchOnHit[string, []byte]()),
	}
}

func (m *Memory) Get(_ context.Context, key string, dest any) (bool, error) {
	item := m.items.Get(key)
	if item == nil {
		return false, nil
	}
	if err := json.Unmarshal(item.Value(), dest); err != nil {
		return false, fmt.Errorf("failed to decode cached value for %s: %w", key, err)
	}
	return true, nil
}

// Set stores value; a non-positive ttl never expires.
func (m *Memory) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	m.items.DeleteExpired()
	m.items.Set(key, data, ttl)
	return nil
}

func (m *Memory) Len() int { return m.items.Len() }

func (m *Memory) Close() error {
	m.items.DeleteAll()
	return nil
}

// Redis is a cache backed by a Redis server.
type Redis struct {
	client *redis.Client
}

var _ Cache = (*Redis)(nil)

// NewRedis connects to Redis and verifies the connection.
func NewRedis(cfg config.Cache) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Redis{client: client}, nil
}

func (r *Redis) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to decode cached value for %s: %w", key, err)
	}
	return true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
