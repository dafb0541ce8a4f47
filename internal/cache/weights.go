// Package cache provides the Redis-backed snapshot of the active weight
// vector shared between triage server instances.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/referral-triage-server/internal/domain"
)

const activeWeightsKey = "triage:weights:active"

// WeightCache wraps a Redis client for active weight vector snapshots.
type WeightCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// cachedWeights wraps the vector with cache metadata.
type cachedWeights struct {
	Vector   *domain.WeightVector `json:"vector"`
	CachedAt time.Time            `json:"cached_at"`
}

// NewWeightCache creates a cache client from the Redis configuration.
func NewWeightCache(config domain.CacheConfig) (*WeightCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.PoolSize
	opts.PoolTimeout = config.PoolTimeout
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := config.DefaultTTL
	if ttl == 0 {
		ttl = time.Hour
	}

	return &WeightCache{
		redis:      client,
		defaultTTL: ttl,
	}, nil
}

// GetActive returns the cached active vector, or domain.ErrNoActiveWeights
// on a cache miss.
func (c *WeightCache) GetActive(ctx context.Context) (*domain.WeightVector, error) {
	val, err := c.redis.Get(ctx, activeWeightsKey).Result()
	if err == redis.Nil {
		return nil, domain.ErrNoActiveWeights
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached weights: %w", err)
	}

	var cached cachedWeights
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// Drop the corrupted entry and report a miss.
		c.redis.Del(ctx, activeWeightsKey)
		return nil, domain.ErrNoActiveWeights
	}
	if cached.Vector == nil {
		return nil, domain.ErrNoActiveWeights
	}
	return cached.Vector, nil
}

// SetActive stores the vector as the active snapshot.
func (c *WeightCache) SetActive(ctx context.Context, v *domain.WeightVector) error {
	payload, err := json.Marshal(cachedWeights{
		Vector:   v,
		CachedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode weights: %w", err)
	}

	if err := c.redis.Set(ctx, activeWeightsKey, payload, c.defaultTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache weights: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *WeightCache) Close() error {
	return c.redis.Close()
}
