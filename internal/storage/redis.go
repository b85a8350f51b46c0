package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/accrual-runner/internal/config"
	"github.com/accrual-runner/internal/jsonx"
	"github.com/accrual-runner/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisCache wraps the Redis client
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis connection
func NewRedisCache(cfg *config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Client returns the underlying Redis client
func (r *RedisCache) Client() *redis.Client {
	return r.client
}

// Ping checks if Redis is reachable
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// RedisSessionBackend stores sessions as JSON strings under session:<id>
type RedisSessionBackend struct {
	cache *RedisCache
	ttl   time.Duration
}

// NewRedisSessionBackend creates a Redis session backend. A zero ttl keeps
// records forever.
func NewRedisSessionBackend(cache *RedisCache, ttl time.Duration) *RedisSessionBackend {
	return &RedisSessionBackend{cache: cache, ttl: ttl}
}

// Name implements SessionBackend
func (b *RedisSessionBackend) Name() string { return "redis" }

func sessionKey(identifier string) string {
	return fmt.Sprintf("session:%s", identifier)
}

// Read implements SessionBackend
func (b *RedisSessionBackend) Read(ctx context.Context, identifier string) (*models.SessionRecord, error) {
	if err := validateIdentifier(identifier); err != nil {
		return nil, err
	}

	data, err := b.cache.client.Get(ctx, sessionKey(identifier)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var record models.SessionRecord
	if err := jsonx.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &record, nil
}

// Write implements SessionBackend
func (b *RedisSessionBackend) Write(ctx context.Context, identifier string, record *models.SessionRecord) error {
	if err := validateIdentifier(identifier); err != nil {
		return err
	}

	data, err := jsonx.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := b.cache.client.Set(ctx, sessionKey(identifier), data, b.ttl).Err(); err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}
