package openai

import (
	"fmt"

	"github.com/openai/openai-go"

	"github.com/davidbz/roomgen/internal/domain"
)

const (
	// DALL-E 3 pricing per image at 1024x1024
	dallE3StandardPerImage = 0.04
	dallE3HDPerImage       = 0.08
	// DALL-E 3 surcharge per image for 1792x1024 and 1024x1792
	dallE3WideSurcharge = 0.04

	// DALL-E 2 pricing per 1024x1024 image
	dallE2PerImage = 0.02
)

// RegisterPricing registers OpenAI image model pricing with the registry.
func RegisterPricing(registry domain.PricingRegistry) error {
	models := map[string]domain.PricingConfig{
		openai.ImageModelDallE3: {
			StandardPerImage:    dallE3StandardPerImage,
			HDPerImage:          dallE3HDPerImage,
			LargeImageSurcharge: dallE3WideSurcharge,
		},
		openai.ImageModelDallE2: {
			StandardPerImage: dallE2PerImage,
		},
	}

	for model, config := range models {
		if err := registry.RegisterPricing(model, config); err != nil {
			return fmt.Errorf("failed to register pricing for model %s: %w", model, err)
		}
	}

	return nil
}
