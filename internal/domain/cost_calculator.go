package domain

import (
	"errors"
	"math"
)

const (
	largeImagePixels = 1024 * 1024
	costPrecision    = 1e6
)

// StandardCostCalculator implements table-driven per-image cost calculation.
type StandardCostCalculator struct {
	pricingRegistry PricingRegistry
}

// NewStandardCostCalculator creates a new cost calculator.
func NewStandardCostCalculator(registry PricingRegistry) *StandardCostCalculator {
	return &StandardCostCalculator{
		pricingRegistry: registry,
	}
}

// Calculate computes the total cost for the requested outputs. It is a pure
// function of the registered pricing and opts.
func (c *StandardCostCalculator) Calculate(model string, opts GenerationOptions) (float64, error) {
	if model == "" {
		return 0, errors.New("model cannot be empty")
	}

	pricing, err := c.pricingRegistry.GetPricing(model)
	if err != nil {
		return 0, err
	}

	perImage := pricing.StandardPerImage
	if opts.Quality == QualityHD && pricing.HDPerImage > 0 {
		perImage = pricing.HDPerImage
	}

	if opts.Pixels() > largeImagePixels {
		perImage += pricing.LargeImageSurcharge
	}

	if pricing.BaseSteps > 0 && opts.InferenceSteps > pricing.BaseSteps {
		perImage += float64(opts.InferenceSteps-pricing.BaseSteps) * pricing.PerExtraStep
	}

	outputs := opts.NumOutputs
	if outputs < 1 {
		outputs = 1
	}

	return RoundCost(perImage * float64(outputs)), nil
}

// RoundCost trims floating point noise from USD amounts.
func RoundCost(amount float64) float64 {
	return math.Round(amount*costPrecision) / costPrecision
}
