package echo

import (
	"fmt"

	"github.com/davidbz/roomgen/internal/domain"
)

// RegisterPricing registers echo model pricing with the registry.
// Echo images have zero cost as they are for testing purposes only.
func RegisterPricing(registry domain.PricingRegistry) error {
	if err := registry.RegisterPricing(modelName, domain.PricingConfig{}); err != nil {
		return fmt.Errorf("failed to register echo pricing: %w", err)
	}
	return nil
}
