package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/roomgen/internal/domain"
	"github.com/davidbz/roomgen/internal/store/memory"
)

func entry(id, user string, cost float64, at time.Time) domain.CostEntry {
	return domain.CostEntry{
		ID:        id,
		UserID:    user,
		DesignID:  "design-1",
		Provider:  "openai",
		Model:     "dall-e-3",
		Images:    1,
		Cost:      cost,
		CreatedAt: at,
	}
}

func TestLedger_AppendAndList(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	base := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	require.NoError(t, ledger.Append(ctx, entry("b", "user-1", 0.08, base.Add(time.Minute))))
	require.NoError(t, ledger.Append(ctx, entry("a", "user-1", 0.04, base)))
	require.NoError(t, ledger.Append(ctx, entry("c", "user-2", 0.12, base)))

	entries, err := ledger.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "a", entries[0].ID)
	require.Equal(t, "b", entries[1].ID)

	t.Run("returned slice is a copy", func(t *testing.T) {
		entries[0].Cost = 99
		again, err := ledger.ListByUser(ctx, "user-1")
		require.NoError(t, err)
		require.InDelta(t, 0.04, again[0].Cost, 1e-9)
	})

	t.Run("unknown user is empty", func(t *testing.T) {
		none, err := ledger.ListByUser(ctx, "nobody")
		require.NoError(t, err)
		require.Empty(t, none)
	})
}

func TestLedger_AppendRequiresUser(t *testing.T) {
	ledger := memory.NewLedger()

	err := ledger.Append(context.Background(), entry("a", "", 1, time.Now()))

	require.Error(t, err)
	require.Contains(t, err.Error(), "user id cannot be empty")
}

func TestLedger_DeleteByUser(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	now := time.Now().UTC()

	require.NoError(t, ledger.Append(ctx, entry("a", "user-1", 1, now)))
	require.NoError(t, ledger.Append(ctx, entry("b", "user-2", 1, now)))

	require.NoError(t, ledger.DeleteByUser(ctx, "user-1"))

	entries, err := ledger.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Empty(t, entries)

	entries, err = ledger.ListByUser(ctx, "user-2")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestLedger_ConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = ledger.Append(ctx, entry(string(rune('a'+i%26)), "user-1", 0.01, time.Now()))
		}(i)
	}
	wg.Wait()

	entries, err := ledger.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 50)
}
