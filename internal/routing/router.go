package routing

import (
	"context"
	"errors"
	"fmt"

	"github.com/davidbz/roomgen/internal/domain"
	"github.com/davidbz/roomgen/internal/observability"
)

// Config names the default and fallback providers.
type Config struct {
	DefaultProvider  string `env:"DEFAULT_PROVIDER"  envDefault:"openai"`
	FallbackProvider string `env:"FALLBACK_PROVIDER" envDefault:"replicate"`
}

// SimpleRouter resolves providers through the registry.
type SimpleRouter struct {
	registry domain.ProviderRegistry
	cfg      Config
}

// NewRouter creates a new router.
func NewRouter(registry domain.ProviderRegistry, cfg *Config) *SimpleRouter {
	r := &SimpleRouter{registry: registry}
	if cfg != nil {
		r.cfg = *cfg
	}
	return r
}

// Plan picks the primary provider (explicit name, then model, then the default)
// and the configured fallback. It never contacts a backend.
func (r *SimpleRouter) Plan(ctx context.Context, req *domain.RouteRequest) (*domain.RoutePlan, error) {
	if req == nil {
		return nil, errors.New("route request cannot be nil")
	}

	primary, err := r.primary(ctx, req)
	if err != nil {
		return nil, unavailable(err)
	}

	plan := &domain.RoutePlan{Primary: primary}

	if r.cfg.FallbackProvider != "" && r.cfg.FallbackProvider != primary.Name() {
		fallback, fbErr := r.registry.Get(ctx, r.cfg.FallbackProvider)
		if fbErr == nil {
			plan.Fallback = fallback
		} else {
			observability.FromContext(ctx).Warn("configured fallback provider is not registered",
				observability.String("fallback", r.cfg.FallbackProvider))
		}
	}

	return plan, nil
}

func (r *SimpleRouter) primary(ctx context.Context, req *domain.RouteRequest) (domain.Provider, error) {
	if req.Provider != "" {
		return r.registry.Get(ctx, req.Provider)
	}

	if req.Model != "" {
		provider, err := r.registry.GetByModel(ctx, req.Model)
		if err != nil {
			return nil, fmt.Errorf("provider routing failed: %w", err)
		}
		return provider, nil
	}

	if r.cfg.DefaultProvider != "" {
		provider, err := r.registry.Get(ctx, r.cfg.DefaultProvider)
		if err == nil {
			return provider, nil
		}
		observability.FromContext(ctx).Warn("default provider is not registered",
			observability.String("default", r.cfg.DefaultProvider))
	}

	if r.cfg.FallbackProvider != "" {
		return r.registry.Get(ctx, r.cfg.FallbackProvider)
	}

	return nil, fmt.Errorf("%w: no default or fallback provider configured", domain.ErrProviderNotFound)
}

// Select checks the primary and returns the dispatch chain: the primary then the
// fallback, or the fallback alone when the primary is down.
func (r *SimpleRouter) Select(ctx context.Context, plan *domain.RoutePlan) ([]domain.Provider, error) {
	if plan == nil || plan.Primary == nil {
		return nil, errors.New("route plan has no primary provider")
	}

	logger := observability.FromContext(ctx)

	if plan.Primary.IsAvailable(ctx) {
		return plan.Candidates(), nil
	}

	logger.Warn("primary provider unavailable",
		observability.String("provider", plan.Primary.Name()))

	if plan.Fallback != nil && plan.Fallback.IsAvailable(ctx) {
		logger.Info("routing to fallback provider",
			observability.String("provider", plan.Fallback.Name()))
		return []domain.Provider{plan.Fallback}, nil
	}

	return nil, unavailable(fmt.Errorf("%w: no available provider", domain.ErrProviderNotFound))
}

// unavailable is the non-retryable failure for requests no provider can serve.
func unavailable(cause error) *domain.GenerationError {
	genErr := domain.NewGenerationError(domain.CodeProviderUnavailable, "", cause)
	genErr.Retryable = false
	return genErr
}

var _ domain.Router = (*SimpleRouter)(nil)
