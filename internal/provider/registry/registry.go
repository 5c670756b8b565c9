package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/davidbz/roomgen/internal/domain"
)

// Registry maps backend names and model references to image providers.
// Every model is owned by exactly one provider so model-based routing is unambiguous.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]domain.Provider
	byModel map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]domain.Provider),
		byModel: make(map[string]string),
	}
}

// Register adds a provider and claims its supported models.
func (r *Registry) Register(_ context.Context, provider domain.Provider) error {
	if provider == nil {
		return errors.New("provider cannot be nil")
	}

	name := provider.Name()
	if name == "" {
		return errors.New("provider name cannot be empty")
	}
	models := provider.SupportedModels()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byName[name]; taken {
		return fmt.Errorf("provider %s already registered", name)
	}
	for _, model := range models {
		if owner, claimed := r.byModel[model]; claimed {
			return fmt.Errorf("model %s already served by provider %s", model, owner)
		}
	}

	r.byName[name] = provider
	for _, model := range models {
		r.byModel[model] = name
	}

	return nil
}

// Get returns the provider registered under providerName.
func (r *Registry) Get(_ context.Context, providerName string) (domain.Provider, error) {
	if providerName == "" {
		return nil, errors.New("provider name cannot be empty")
	}

	r.mu.RLock()
	provider, ok := r.byName[providerName]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderNotFound, providerName)
	}
	return provider, nil
}

// List returns the registered provider names in sorted order.
func (r *Registry) List(_ context.Context) ([]string, error) {
	r.mu.RLock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	r.mu.RUnlock()

	slices.Sort(names)
	return names, nil
}

// GetByModel returns the provider that owns model. Version-pinned references
// ("owner/name:version") resolve through their base name.
func (r *Registry) GetByModel(_ context.Context, model string) (domain.Provider, error) {
	if model == "" {
		return nil, errors.New("model cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	owner, ok := r.byModel[model]
	if !ok {
		if base, _, pinned := strings.Cut(model, ":"); pinned {
			owner, ok = r.byModel[base]
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w: no provider serves model %s", domain.ErrProviderNotFound, model)
	}

	return r.byName[owner], nil
}

// ByKind returns the registered providers of one backend variant, sorted by name.
func (r *Registry) ByKind(_ context.Context, kind domain.ProviderKind) []domain.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var providers []domain.Provider
	for _, provider := range r.byName {
		if provider.Kind() == kind {
			providers = append(providers, provider)
		}
	}
	slices.SortFunc(providers, func(a, b domain.Provider) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return providers
}
