package replicate

import (
	"math"
	"strings"
)

// Supported Replicate models.
const (
	ModelSDXL        = "stability-ai/sdxl"
	ModelFluxSchnell = "black-forest-labs/flux-schnell"
)

const (
	maxPerPrediction = 4

	dimensionStep = 64
	maxDimension  = 1536
	minDimension  = 512

	fluxMaxSteps = 4

	defaultNegativePrompt = "blurry, distorted, low quality, deformed furniture, watermark, text, people"
)

// SupportedModels returns the list of models supported by the Replicate provider.
func SupportedModels() []string {
	return []string{
		ModelSDXL,
		ModelFluxSchnell,
	}
}

// baseModel strips a version pin from "owner/name:version".
func baseModel(model string) string {
	base, _, _ := strings.Cut(model, ":")
	return base
}

func isFlux(model string) bool {
	return strings.HasPrefix(baseModel(model), "black-forest-labs/flux")
}

// snapDimensions keeps the aspect ratio, caps the long side and rounds both
// sides to the 64px grid diffusion models require.
func snapDimensions(width, height int) (int, int) {
	if width <= 0 || height <= 0 {
		return 1024, 1024
	}

	scale := 1.0
	if longest := max(width, height); longest > maxDimension {
		scale = float64(maxDimension) / float64(longest)
	}

	snap := func(v int) int {
		s := int(math.Round(float64(v)*scale/dimensionStep)) * dimensionStep
		return min(max(s, minDimension), maxDimension)
	}

	return snap(width), snap(height)
}

//nolint:gochecknoglobals // static lookup table
var aspectRatios = []struct {
	label string
	ratio float64
}{
	{"1:1", 1},
	{"16:9", 16.0 / 9},
	{"9:16", 9.0 / 16},
	{"3:2", 3.0 / 2},
	{"2:3", 2.0 / 3},
	{"4:3", 4.0 / 3},
	{"3:4", 3.0 / 4},
	{"21:9", 21.0 / 9},
	{"9:21", 9.0 / 21},
}

// aspectRatio returns the closest aspect ratio label flux models accept.
func aspectRatio(width, height int) string {
	if width <= 0 || height <= 0 {
		return "1:1"
	}
	target := float64(width) / float64(height)
	best := aspectRatios[0]
	for _, candidate := range aspectRatios[1:] {
		if math.Abs(candidate.ratio-target) < math.Abs(best.ratio-target) {
			best = candidate
		}
	}
	return best.label
}
