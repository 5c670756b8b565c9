// Package replicate provides an image adapter for diffusion models hosted on
// Replicate. It implements the domain.Provider interface, batching outputs up to
// the per-prediction limit and padding until the requested count is reached.
package replicate

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/replicate/replicate-go"
	"golang.org/x/time/rate"

	"github.com/davidbz/roomgen/internal/domain"
	"github.com/davidbz/roomgen/internal/observability"
	"github.com/davidbz/roomgen/internal/provider/throttle"
)

const (
	providerName = "replicate"

	availabilityTimeout = 5 * time.Second

	defaultGuidance = 7.5
	defaultSteps    = 30

	// conservativePerImage prices unknown models above every known tier.
	conservativePerImage = 0.02
)

// Provider implements the domain.Provider interface for Replicate.
type Provider struct {
	client     *Client
	name       string
	model      string
	calculator domain.CostCalculator
	limiter    *rate.Limiter
}

// NewProvider creates a new Replicate provider.
func NewProvider(config Config, calculator domain.CostCalculator) (*Provider, error) {
	if config.APIToken == "" {
		return nil, errors.New("Replicate API token is required")
	}

	if calculator == nil {
		return nil, errors.New("cost calculator is required")
	}

	model := config.Model
	if model == "" {
		model = ModelSDXL
	}
	if !slices.Contains(SupportedModels(), baseModel(model)) {
		return nil, fmt.Errorf("unsupported Replicate model %s", model)
	}

	client, err := NewClient(config)
	if err != nil {
		return nil, err
	}

	return &Provider{
		client:     client,
		name:       providerName,
		model:      model,
		calculator: calculator,
		limiter:    throttle.New(config.RequestsPerMinute),
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Kind returns the backend variant.
func (p *Provider) Kind() domain.ProviderKind {
	return domain.ProviderKindReplicate
}

// SupportedModels lists the models this provider serves.
func (p *Provider) SupportedModels() []string {
	return SupportedModels()
}

// Defaults returns baseline diffusion parameters for the configured model.
func (p *Provider) Defaults() domain.GenerationOptions {
	return domain.GenerationOptions{
		Model:          p.model,
		Width:          1024,
		Height:         1024,
		NumOutputs:     1,
		GuidanceScale:  defaultGuidance,
		InferenceSteps: defaultSteps,
		Quality:        domain.QualityStandard,
	}
}

// Tune fits options to the model: 64px grid dimensions for SDXL with a negative
// prompt, few steps and no guidance for flux.
func (p *Provider) Tune(opts domain.GenerationOptions, _ domain.PromptTemplate) domain.GenerationOptions {
	if !slices.Contains(SupportedModels(), baseModel(opts.Model)) {
		opts.Model = p.model
	}

	opts.Width, opts.Height = snapDimensions(opts.Width, opts.Height)

	if isFlux(opts.Model) {
		opts.InferenceSteps = min(max(opts.InferenceSteps, 1), fluxMaxSteps)
		opts.GuidanceScale = 0
		opts.NegativePrompt = ""
		return opts
	}

	if opts.InferenceSteps <= 0 {
		opts.InferenceSteps = defaultSteps
	}
	if opts.GuidanceScale <= 0 {
		opts.GuidanceScale = defaultGuidance
	}
	if opts.NegativePrompt == "" {
		opts.NegativePrompt = defaultNegativePrompt
	}

	return opts
}

// EstimateCost prices opts from the registered model pricing.
func (p *Provider) EstimateCost(opts domain.GenerationOptions) float64 {
	model := opts.Model
	if model == "" {
		model = p.model
	}

	cost, err := p.calculator.Calculate(baseModel(model), opts)
	if err != nil {
		return domain.RoundCost(conservativePerImage * float64(max(opts.NumOutputs, 1)))
	}
	return cost
}

// IsAvailable checks that the configured model can be read. It never returns an error.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, availabilityTimeout)
	defer cancel()

	if err := p.client.GetModel(ctx, p.model); err != nil {
		observability.FromContext(ctx).Debug("Replicate model lookup failed",
			observability.String("model", p.model),
			observability.Error(err),
		)
		return false
	}
	return true
}

// Generate runs predictions of up to four outputs until opts.NumOutputs images
// are collected. Cost is taken from reported run time when the model is billed
// by the second and from the price table otherwise.
func (p *Provider) Generate(
	ctx context.Context,
	prompt string,
	opts domain.GenerationOptions,
) (*domain.GenerationResult, error) {
	if prompt == "" {
		return nil, errors.New("prompt cannot be empty")
	}

	if opts.Model == "" {
		opts.Model = p.model
	}
	want := max(opts.NumOutputs, 1)
	opts.NumOutputs = want

	logger := observability.FromContext(ctx)
	logger.Debug("calling Replicate predictions API",
		observability.String("model", opts.Model),
		observability.Int("images", want),
	)

	images := make([]string, 0, want)
	cost := 0.0

	for batchIndex := 0; len(images) < want; batchIndex++ {
		batchPrompt, batch := opts.PromptRun(len(images), min(maxPerPrediction, want-len(images)), prompt)

		if err := throttle.Wait(ctx, p.limiter, p.name); err != nil {
			return nil, err
		}

		prediction, err := p.predict(ctx, p.modelRef(opts.Model), p.toInput(batchPrompt, opts, batch, batchIndex))
		if err != nil {
			logger.Error("Replicate prediction failed", observability.Error(err))
			return nil, err
		}

		got := outputImages(prediction)
		if len(got) == 0 {
			return nil, fmt.Errorf("%w: prediction %s returned no images", domain.ErrIncompleteOutput, prediction.ID)
		}
		if len(got) > batch {
			got = got[:batch]
		}

		images = append(images, got...)
		cost += p.batchCost(opts, len(got), predictTime(prediction))
	}

	logger.Debug("Replicate predictions succeeded",
		observability.Int("images", len(images)),
		observability.Float64("cost", cost),
	)

	return &domain.GenerationResult{
		Images:     images,
		Cost:       domain.RoundCost(cost),
		ModelUsed:  opts.Model,
		Provider:   p.name,
		Parameters: opts,
		Metadata:   &domain.GenerationMetadata{Seed: opts.Seed},
	}, nil
}

// predict creates a prediction and waits for it to finish.
func (p *Provider) predict(ctx context.Context, model string, input predictionInput) (*replicate.Prediction, error) {
	prediction, err := p.client.CreatePrediction(ctx, model, input)
	if err != nil {
		return nil, wrapError(err)
	}

	if err := p.client.Wait(ctx, prediction); err != nil {
		return nil, wrapError(err)
	}

	switch prediction.Status {
	case replicate.Succeeded:
		return prediction, nil
	case replicate.Canceled:
		return nil, &domain.ProviderError{
			Provider: p.name,
			Message:  fmt.Sprintf("prediction %s was canceled", prediction.ID),
		}
	default:
		return nil, &domain.ProviderError{
			Provider: p.name,
			Message:  "prediction failed: " + errorMessage(prediction),
		}
	}
}

// modelRef keeps the configured version pin when model is the configured model.
func (p *Provider) modelRef(model string) string {
	if baseModel(model) == baseModel(p.model) {
		return p.model
	}
	return model
}

func (p *Provider) batchCost(opts domain.GenerationOptions, images int, seconds float64) float64 {
	if perSecond, ok := perSecondRate(opts.Model); ok && seconds > 0 {
		return seconds * perSecond
	}
	batchOpts := opts
	batchOpts.NumOutputs = images
	return p.EstimateCost(batchOpts)
}

// toInput converts domain options to a prediction input.
func (p *Provider) toInput(prompt string, opts domain.GenerationOptions, n, batchIndex int) predictionInput {
	input := predictionInput{
		Prompt:            prompt,
		NumOutputs:        n,
		NumInferenceSteps: opts.InferenceSteps,
	}

	if opts.Seed != 0 {
		input.Seed = opts.Seed + int64(batchIndex)
	}

	if isFlux(opts.Model) {
		input.AspectRatio = aspectRatio(opts.Width, opts.Height)
		return input
	}

	input.Width = opts.Width
	input.Height = opts.Height
	input.GuidanceScale = opts.GuidanceScale
	input.NegativePrompt = opts.NegativePrompt

	return input
}

var _ domain.Provider = (*Provider)(nil)
