// Package memory provides an in-process cost summary cache.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/davidbz/roomgen/internal/domain"
)

type item struct {
	summary   domain.CostSummary
	expiresAt time.Time
}

// SummaryCache is a TTL map guarded by a mutex. Expired items are dropped lazily.
type SummaryCache struct {
	mu    sync.Mutex
	items map[string]item
	now   func() time.Time
}

// NewSummaryCache creates an empty cache.
func NewSummaryCache() *SummaryCache {
	return &SummaryCache{
		items: make(map[string]item),
		now:   time.Now,
	}
}

// NewSummaryCacheWithClock creates an empty cache that reads time from now.
func NewSummaryCacheWithClock(now func() time.Time) *SummaryCache {
	c := NewSummaryCache()
	c.now = now
	return c
}

// Get returns a copy of the cached summary or domain.ErrCacheMiss.
func (c *SummaryCache) Get(_ context.Context, userID string) (*domain.CostSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[userID]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	if !it.expiresAt.IsZero() && !c.now().Before(it.expiresAt) {
		delete(c.items, userID)
		return nil, domain.ErrCacheMiss
	}

	summary := it.summary
	return &summary, nil
}

// Set stores a copy of summary. A non-positive ttl never expires.
func (c *SummaryCache) Set(_ context.Context, userID string, summary *domain.CostSummary, ttl time.Duration) error {
	if summary == nil {
		return errors.New("summary cannot be nil")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	it := item{summary: *summary}
	if ttl > 0 {
		it.expiresAt = c.now().Add(ttl)
	}
	c.items[userID] = it
	return nil
}

// Delete invalidates a user's summary.
func (c *SummaryCache) Delete(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, userID)
	return nil
}

var _ domain.SummaryCache = (*SummaryCache)(nil)
