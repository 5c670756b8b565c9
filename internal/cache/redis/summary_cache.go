// Package redis provides a Redis-backed cost summary cache.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/davidbz/roomgen/internal/domain"
	"github.com/davidbz/roomgen/internal/metrics"
	"github.com/davidbz/roomgen/internal/observability"
)

const backend = "redis"

// SummaryCache stores JSON-encoded cost summaries with a TTL per key.
type SummaryCache struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewClient creates a client from cfg and verifies it with PING.
func NewClient(ctx context.Context, cfg *Config) (*redis.Client, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return client, nil
}

// NewSummaryCache creates a summary cache over client.
func NewSummaryCache(client redis.UniversalClient, keyPrefix string) (*SummaryCache, error) {
	if client == nil {
		return nil, errors.New("client cannot be nil")
	}

	return &SummaryCache{
		client:    client,
		keyPrefix: keyPrefix,
	}, nil
}

// Get returns the cached summary or domain.ErrCacheMiss.
func (c *SummaryCache) Get(ctx context.Context, userID string) (*domain.CostSummary, error) {
	metrics.IncStoreOp(backend, "get")

	raw, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		metrics.IncError("redis_cache", "get_error")
		return nil, fmt.Errorf("failed to read summary: %w", err)
	}

	var summary domain.CostSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		// A corrupt entry is treated as a miss so the summary is rebuilt.
		observability.FromContext(ctx).Warn("discarding undecodable cost summary",
			observability.String("user_id", userID),
			observability.Error(err),
		)
		return nil, domain.ErrCacheMiss
	}

	return &summary, nil
}

// Set stores a summary with the given TTL.
func (c *SummaryCache) Set(ctx context.Context, userID string, summary *domain.CostSummary, ttl time.Duration) error {
	if summary == nil {
		return errors.New("summary cannot be nil")
	}
	metrics.IncStoreOp(backend, "set")

	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}

	if err := c.client.Set(ctx, c.key(userID), raw, ttl).Err(); err != nil {
		metrics.IncError("redis_cache", "set_error")
		return fmt.Errorf("failed to write summary: %w", err)
	}

	return nil
}

// Delete invalidates a user's summary.
func (c *SummaryCache) Delete(ctx context.Context, userID string) error {
	metrics.IncStoreOp(backend, "delete")

	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		metrics.IncError("redis_cache", "delete_error")
		return fmt.Errorf("failed to delete summary: %w", err)
	}

	return nil
}

func (c *SummaryCache) key(userID string) string {
	return c.keyPrefix + userID
}

var _ domain.SummaryCache = (*SummaryCache)(nil)
