package domain_test

import (
	"context"
	"sync"
	"time"

	"github.com/davidbz/roomgen/internal/domain"
)

type fakeLedger struct {
	mu        sync.Mutex
	entries   []domain.CostEntry
	appendErr error
	listCalls int
}

func (l *fakeLedger) Append(_ context.Context, entry domain.CostEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.appendErr != nil {
		return l.appendErr
	}
	l.entries = append(l.entries, entry)
	return nil
}

func (l *fakeLedger) ListByUser(_ context.Context, userID string) ([]domain.CostEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listCalls++
	var out []domain.CostEntry
	for _, e := range l.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *fakeLedger) DeleteByUser(_ context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.entries[:0]
	for _, e := range l.entries {
		if e.UserID != userID {
			kept = append(kept, e)
		}
	}
	l.entries = kept
	return nil
}

func (l *fakeLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *fakeLedger) listCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.listCalls
}

type fakeCache struct {
	mu    sync.Mutex
	items map[string]domain.CostSummary
}

func newFakeCache() *fakeCache {
	return &fakeCache{items: make(map[string]domain.CostSummary)}
}

func (c *fakeCache) Get(_ context.Context, userID string) (*domain.CostSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.items[userID]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return &s, nil
}

func (c *fakeCache) Set(_ context.Context, userID string, summary *domain.CostSummary, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[userID] = *summary
	return nil
}

func (c *fakeCache) Delete(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, userID)
	return nil
}

type recordedEvent struct {
	eventType string
	data      map[string]interface{}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *fakePublisher) Publish(_ context.Context, eventType string, data map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{eventType: eventType, data: data})
}

func (p *fakePublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.eventType == eventType {
			n++
		}
	}
	return n
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
