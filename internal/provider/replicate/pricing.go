package replicate

import (
	"fmt"

	"github.com/davidbz/roomgen/internal/domain"
)

const (
	// SDXL pricing per 1024x1024 image at 30 steps
	sdxlPerImage       = 0.0055
	sdxlBaseSteps      = 30
	sdxlPerExtraStep   = 0.0001
	sdxlLargeSurcharge = 0.002

	// Flux Schnell is billed per output image
	fluxSchnellPerImage = 0.003

	// sdxlPerSecond is the hardware rate used when a prediction reports predict_time
	sdxlPerSecond = 0.000725
)

// RegisterPricing registers Replicate model pricing with the registry.
func RegisterPricing(registry domain.PricingRegistry) error {
	models := map[string]domain.PricingConfig{
		ModelSDXL: {
			StandardPerImage:    sdxlPerImage,
			LargeImageSurcharge: sdxlLargeSurcharge,
			BaseSteps:           sdxlBaseSteps,
			PerExtraStep:        sdxlPerExtraStep,
		},
		ModelFluxSchnell: {
			StandardPerImage: fluxSchnellPerImage,
		},
	}

	for model, config := range models {
		if err := registry.RegisterPricing(model, config); err != nil {
			return fmt.Errorf("failed to register pricing for model %s: %w", model, err)
		}
	}

	return nil
}

// perSecondRate returns the hardware rate for models billed by run time.
func perSecondRate(model string) (float64, bool) {
	if baseModel(model) == ModelSDXL {
		return sdxlPerSecond, true
	}
	return 0, false
}
