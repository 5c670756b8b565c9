// Package memory provides an in-process cost ledger.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/davidbz/roomgen/internal/domain"
	"github.com/davidbz/roomgen/internal/metrics"
)

const backend = "memory"

// Ledger keeps cost entries in memory. Entries are lost on restart.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string][]domain.CostEntry
}

// NewLedger creates an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{
		entries: make(map[string][]domain.CostEntry),
	}
}

// Append records one completed generation.
func (l *Ledger) Append(_ context.Context, entry domain.CostEntry) error {
	if entry.UserID == "" {
		return errors.New("user id cannot be empty")
	}
	metrics.IncStoreOp(backend, "append")

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[entry.UserID] = append(l.entries[entry.UserID], entry)
	return nil
}

// ListByUser returns a copy of the user's entries ordered by creation time.
func (l *Ledger) ListByUser(_ context.Context, userID string) ([]domain.CostEntry, error) {
	metrics.IncStoreOp(backend, "list")

	l.mu.RLock()
	out := make([]domain.CostEntry, len(l.entries[userID]))
	copy(out, l.entries[userID])
	l.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteByUser removes every entry for a user.
func (l *Ledger) DeleteByUser(_ context.Context, userID string) error {
	metrics.IncStoreOp(backend, "delete")

	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.entries, userID)
	return nil
}

var _ domain.CostLedger = (*Ledger)(nil)
