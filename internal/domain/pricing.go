package domain

import "errors"

// PricingConfig contains per-image pricing for one model.
type PricingConfig struct {
	StandardPerImage    float64 `yaml:"standard_per_image"`    // USD per standard-quality image up to 1024x1024
	HDPerImage          float64 `yaml:"hd_per_image"`          // USD per hd image up to 1024x1024; zero means same as standard
	LargeImageSurcharge float64 `yaml:"large_image_surcharge"` // USD added per image above 1024x1024 pixels
	BaseSteps           int     `yaml:"base_steps"`            // inference steps included in the per-image price
	PerExtraStep        float64 `yaml:"per_extra_step"`        // USD per image per step above BaseSteps
}

// Validate rejects negative prices and step counts.
func (p PricingConfig) Validate() error {
	if p.StandardPerImage < 0 || p.HDPerImage < 0 || p.LargeImageSurcharge < 0 || p.PerExtraStep < 0 {
		return errors.New("prices cannot be negative")
	}
	if p.BaseSteps < 0 {
		return errors.New("base steps cannot be negative")
	}
	return nil
}

// CostCalculator estimates the cost of a set of generation options.
type CostCalculator interface {
	// Calculate returns the total USD cost for generating opts with model.
	Calculate(model string, opts GenerationOptions) (float64, error)
}

// PricingRegistry maintains pricing information for models.
type PricingRegistry interface {
	// GetPricing returns pricing config for a model.
	GetPricing(model string) (PricingConfig, error)

	// RegisterPricing adds or replaces pricing for a model.
	RegisterPricing(model string, config PricingConfig) error
}
