package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/davidbz/roomgen/internal/domain"
)

// PricingFile is the YAML layout of PRICING_FILE.
//
//	models:
//	  dall-e-3:
//	    standard_per_image: 0.04
//	    hd_per_image: 0.08
type PricingFile struct {
	Models map[string]domain.PricingConfig `yaml:"models"`
}

// LoadPricingFile reads per-model price overrides from path.
func LoadPricingFile(path string) (*PricingFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pricing file: %w", err)
	}

	var file PricingFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse pricing file: %w", err)
	}

	return &file, nil
}

// ApplyPricingOverrides registers every model in the pricing file. An empty
// path is a no-op. It returns the overridden model names in order.
func ApplyPricingOverrides(cfg *PricingConfig, registry domain.PricingRegistry) ([]string, error) {
	if cfg == nil || cfg.File == "" {
		return nil, nil
	}

	file, err := LoadPricingFile(cfg.File)
	if err != nil {
		return nil, err
	}

	models := make([]string, 0, len(file.Models))
	for model := range file.Models {
		models = append(models, model)
	}
	sort.Strings(models)

	for _, model := range models {
		if err := registry.RegisterPricing(model, file.Models[model]); err != nil {
			return nil, fmt.Errorf("failed to override pricing for %s: %w", model, err)
		}
	}

	return models, nil
}
