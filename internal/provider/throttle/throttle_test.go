package throttle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/davidbz/roomgen/internal/domain"
	"github.com/davidbz/roomgen/internal/provider/throttle"
)

func TestNew(t *testing.T) {
	t.Run("non-positive rpm disables limiting", func(t *testing.T) {
		limiter := throttle.New(0)
		require.Equal(t, rate.Inf, limiter.Limit())
		for range 100 {
			require.True(t, limiter.Allow())
		}
	})

	t.Run("rpm sets the refill rate", func(t *testing.T) {
		limiter := throttle.New(60)
		require.InDelta(t, 1.0, float64(limiter.Limit()), 1e-9)
		require.Equal(t, 6, limiter.Burst())
	})

	t.Run("small budgets still allow one request", func(t *testing.T) {
		limiter := throttle.New(5)
		require.Equal(t, 1, limiter.Burst())
		require.True(t, limiter.Allow())
		require.False(t, limiter.Allow())
	})
}

func TestWait(t *testing.T) {
	t.Run("exhausted budget before the deadline is a rate limit", func(t *testing.T) {
		limiter := throttle.New(1)
		require.True(t, limiter.Allow())

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := throttle.Wait(ctx, limiter, "replicate")

		var providerErr *domain.ProviderError
		require.ErrorAs(t, err, &providerErr)
		require.Equal(t, "replicate", providerErr.Provider)
		require.Equal(t, "rate_limit_exceeded", providerErr.Code)
	})

	t.Run("cancelled context is returned as is", func(t *testing.T) {
		limiter := throttle.New(1)
		require.True(t, limiter.Allow())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := throttle.Wait(ctx, limiter, "openai")
		require.ErrorIs(t, err, context.Canceled)
	})
}
