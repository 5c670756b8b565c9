package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// InMemoryPricingRegistry holds per-model price tables.
type InMemoryPricingRegistry struct {
	mu     sync.RWMutex
	tables map[string]PricingConfig
}

// NewInMemoryPricingRegistry creates an empty registry.
func NewInMemoryPricingRegistry() *InMemoryPricingRegistry {
	return &InMemoryPricingRegistry{tables: make(map[string]PricingConfig)}
}

// GetPricing returns the table for model. A version-pinned reference
// ("owner/name:version") falls back to the table of its base name.
func (r *InMemoryPricingRegistry) GetPricing(model string) (PricingConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if table, ok := r.tables[model]; ok {
		return table, nil
	}
	if base, _, pinned := strings.Cut(model, ":"); pinned {
		if table, ok := r.tables[base]; ok {
			return table, nil
		}
	}

	return PricingConfig{}, fmt.Errorf("%w for model %s", ErrPricingNotFound, model)
}

// RegisterPricing adds or replaces the table for model.
func (r *InMemoryPricingRegistry) RegisterPricing(model string, config PricingConfig) error {
	if model == "" {
		return errors.New("model cannot be empty")
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid pricing for model %s: %w", model, err)
	}

	r.mu.Lock()
	r.tables[model] = config
	r.mu.Unlock()

	return nil
}

// Models lists the priced models in sorted order.
func (r *InMemoryPricingRegistry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := make([]string, 0, len(r.tables))
	for model := range r.tables {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}
