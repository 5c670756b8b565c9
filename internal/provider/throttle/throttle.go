// Package throttle enforces per-provider requestsPerMinute budgets.
package throttle

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/davidbz/roomgen/internal/domain"
)

// New returns a limiter admitting rpm requests per minute. A non-positive rpm
// disables limiting.
func New(rpm int) *rate.Limiter {
	if rpm <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := max(1, rpm/10)
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), burst)
}

// Wait blocks until limiter admits one request for provider. When the wait
// cannot finish before ctx ends, the failure is reported as a rate limit.
func Wait(ctx context.Context, limiter *rate.Limiter, provider string) error {
	if err := limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &domain.ProviderError{
			Provider: provider,
			Code:     "rate_limit_exceeded",
			Message:  "local request budget exhausted",
			Err:      err,
		}
	}
	return nil
}
