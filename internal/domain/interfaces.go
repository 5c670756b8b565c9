package domain

import (
	"context"
	"time"
)

// Provider is the capability contract every image backend implements.
type Provider interface {
	// Name returns the provider identifier used for registration and selection.
	Name() string

	// Kind returns the backend variant.
	Kind() ProviderKind

	// Generate contacts the backend and returns exactly opts.NumOutputs images.
	Generate(ctx context.Context, prompt string, opts GenerationOptions) (*GenerationResult, error)

	// EstimateCost returns the expected USD cost of opts without a network call.
	EstimateCost(opts GenerationOptions) float64

	// IsAvailable is a cheap liveness check. It never panics and reports false on failure.
	IsAvailable(ctx context.Context) bool

	// Defaults returns the provider's baseline options.
	Defaults() GenerationOptions

	// Tune normalizes tuned options to what this backend supports.
	Tune(opts GenerationOptions, tpl PromptTemplate) GenerationOptions

	// SupportedModels lists the models this provider can serve.
	SupportedModels() []string
}

// ProviderRegistry manages available providers.
type ProviderRegistry interface {
	// Register adds a provider to the registry.
	Register(ctx context.Context, provider Provider) error

	// Get retrieves a provider by name.
	Get(ctx context.Context, providerName string) (Provider, error)

	// GetByModel retrieves a provider that serves the given model.
	GetByModel(ctx context.Context, model string) (Provider, error)

	// List returns all available providers.
	List(ctx context.Context) ([]string, error)
}

// Router resolves which providers serve a request.
type Router interface {
	// Plan resolves the primary and fallback providers without contacting them.
	Plan(ctx context.Context, req *RouteRequest) (*RoutePlan, error)

	// Select checks availability and returns the ordered dispatch chain.
	Select(ctx context.Context, plan *RoutePlan) ([]Provider, error)
}

// RouteRequest contains criteria for provider selection.
type RouteRequest struct {
	Provider string
	Model    string
}

// RoutePlan is the provider choice before availability checks for a request.
type RoutePlan struct {
	Primary  Provider
	Fallback Provider
}

// Candidates returns the planned providers, primary first.
func (p *RoutePlan) Candidates() []Provider {
	candidates := []Provider{p.Primary}
	if p.Fallback != nil {
		candidates = append(candidates, p.Fallback)
	}
	return candidates
}

// CostGuard holds per-user budget between admission and the final record.
type CostGuard interface {
	// Reserve admits estimate against the user's limits or returns CostLimitExceeded.
	Reserve(ctx context.Context, userID string, estimate float64) (*Reservation, error)

	// Release drops a reservation without recording spend.
	Release(ctx context.Context, reservation *Reservation)

	// Commit records the realized cost and drops the reservation.
	Commit(ctx context.Context, reservation *Reservation, entry CostEntry) error
}

// CostLedger durably stores completed generation costs.
type CostLedger interface {
	// Append records one completed generation.
	Append(ctx context.Context, entry CostEntry) error

	// ListByUser returns all recorded entries for a user.
	ListByUser(ctx context.Context, userID string) ([]CostEntry, error)

	// DeleteByUser removes every entry for a user.
	DeleteByUser(ctx context.Context, userID string) error
}

// SummaryCache keeps short-lived per-user cost summaries.
type SummaryCache interface {
	// Get returns the cached summary or ErrCacheMiss.
	Get(ctx context.Context, userID string) (*CostSummary, error)

	// Set stores a summary with the given TTL.
	Set(ctx context.Context, userID string, summary *CostSummary, ttl time.Duration) error

	// Delete invalidates a user's summary.
	Delete(ctx context.Context, userID string) error
}

// ImageStore persists provider images under stable public URLs.
type ImageStore interface {
	// Persist fetches sourceURL and stores it under
	// designs/{designID}/{kind}_{index}_{timestamp}, returning the public URL.
	Persist(ctx context.Context, sourceURL, designID string, kind ImageKind, index int) (string, error)
}

// EventPublisher publishes events for observability.
type EventPublisher interface {
	// Publish publishes an event with the given type and data.
	Publish(ctx context.Context, eventType string, data map[string]interface{})
}

// Event types published by the orchestrator.
const (
	EventAdmissionRejected = "generation.admission_rejected"
	EventAttemptFailed     = "generation.attempt_failed"
	EventFallback          = "generation.fallback"
	EventSucceeded         = "generation.succeeded"
	EventFailed            = "generation.failed"
	EventCostOvershoot     = "generation.cost_overshoot"
)
