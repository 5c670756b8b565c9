package openai

import (
	"github.com/openai/openai-go"
)

const (
	dallE3MaxPerCall = 1
	dallE2MaxPerCall = 10

	squareSide = 1024
	longSide   = 1792
)

// SupportedModels returns the list of image models supported by the OpenAI provider.
func SupportedModels() []string {
	return []string{
		openai.ImageModelDallE3,
		openai.ImageModelDallE2,
	}
}

// buildModelSet creates a map for O(1) lookup.
func buildModelSet(models []string) map[string]bool {
	set := make(map[string]bool, len(models))
	for _, model := range models {
		set[model] = true
	}
	return set
}

// maxPerCall returns how many images one API call may return for model.
func maxPerCall(model string) int {
	if model == openai.ImageModelDallE2 {
		return dallE2MaxPerCall
	}
	return dallE3MaxPerCall
}

// snapSize maps arbitrary dimensions onto the closest size the model accepts.
func snapSize(model string, width, height int) (int, int) {
	if model == openai.ImageModelDallE2 {
		return squareSide, squareSide
	}
	switch {
	case width > height:
		return longSide, squareSide
	case height > width:
		return squareSide, longSide
	default:
		return squareSide, squareSide
	}
}

func sizeParam(width, height int) openai.ImageGenerateParamsSize {
	switch {
	case width == longSide && height == squareSide:
		return openai.ImageGenerateParamsSize1792x1024
	case width == squareSide && height == longSide:
		return openai.ImageGenerateParamsSize1024x1792
	default:
		return openai.ImageGenerateParamsSize1024x1024
	}
}
