package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mikey/subscription-tracker/internal/core"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "subtracker:classification:"

// RedisCache is a Redis implementation of core.ScoreCache. Expiry is
// delegated to Redis key TTLs.
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
}

type redisEntry struct {
	Scores    core.LabelScores `json:"scores"`
	Model     string           `json:"model"`
	CachedAt  int64            `json:"cached_at"`
	ExpiresAt int64            `json:"expires_at"`
}

// NewRedisCache creates a new Redis cache and verifies the connection
func NewRedisCache(ctx context.Context, addr, password string, db int, logger *zap.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return &RedisCache{client: client, logger: logger}, nil
}

// Get retrieves an unexpired entry
func (c *RedisCache) Get(ctx context.Context, key string) (*core.ScoreCacheEntry, error) {
	data, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query cache: %w", err)
	}

	var stored redisEntry
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	expiresAt := time.UnixMilli(stored.ExpiresAt).UTC()
	if !time.Now().Before(expiresAt) {
		return nil, core.ErrNotFound
	}

	return &core.ScoreCacheEntry{
		Key:       key,
		Scores:    stored.Scores,
		Model:     stored.Model,
		CachedAt:  time.UnixMilli(stored.CachedAt).UTC(),
		ExpiresAt: expiresAt,
	}, nil
}

// Set stores an entry with a TTL derived from its expiry
func (c *RedisCache) Set(ctx context.Context, entry *core.ScoreCacheEntry) error {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(redisEntry{
		Scores:    entry.Scores,
		Model:     entry.Model,
		CachedAt:  entry.CachedAt.UnixMilli(),
		ExpiresAt: entry.ExpiresAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	if err := c.client.Set(ctx, redisKeyPrefix+entry.Key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to insert cache entry: %w", err)
	}
	return nil
}

// Delete removes an entry
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Cleanup is a no-op, Redis expires keys itself
func (c *RedisCache) Cleanup(ctx context.Context) error {
	return nil
}

// Stop closes the Redis client
func (c *RedisCache) Stop() {
	if err := c.client.Close(); err != nil {
		c.logger.Error("Failed to close Redis client", zap.Error(err))
	}
}
