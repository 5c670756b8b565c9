// Package openai provides an image adapter for the OpenAI Images API using the
// official SDK. It implements the domain.Provider interface and normalizes the
// one-image-per-call limit of dall-e-3 so callers always get every variation.
package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"

	"github.com/davidbz/roomgen/internal/domain"
	"github.com/davidbz/roomgen/internal/observability"
	"github.com/davidbz/roomgen/internal/provider/throttle"
)

const (
	providerName = "openai"

	availabilityTimeout = 5 * time.Second

	// conservativePerImage prices unknown models at the most expensive dall-e-3 tier.
	conservativePerImage = dallE3HDPerImage + dallE3WideSurcharge
)

// Provider implements the domain.Provider interface for OpenAI image models.
type Provider struct {
	client     openai.Client
	name       string
	model      string
	style      string
	models     map[string]bool
	calculator domain.CostCalculator
	limiter    *rate.Limiter
}

// NewProvider creates a new OpenAI image provider.
func NewProvider(config Config, calculator domain.CostCalculator) (*Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	if calculator == nil {
		return nil, errors.New("cost calculator is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(config.Timeout)*time.Second))
	}

	model := config.Model
	if model == "" {
		model = openai.ImageModelDallE3
	}

	models := buildModelSet(SupportedModels())
	if !models[model] {
		return nil, fmt.Errorf("unsupported OpenAI image model %s", model)
	}

	return &Provider{
		client:     openai.NewClient(opts...),
		name:       providerName,
		model:      model,
		style:      config.Style,
		models:     models,
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
	return domain.ProviderKindOpenAI
}

// SupportedModels lists the image models this provider serves.
func (p *Provider) SupportedModels() []string {
	return SupportedModels()
}

// Defaults returns a square standard-quality image from the configured model.
func (p *Provider) Defaults() domain.GenerationOptions {
	return domain.GenerationOptions{
		Model:      p.model,
		Width:      squareSide,
		Height:     squareSide,
		NumOutputs: 1,
		Quality:    domain.QualityStandard,
	}
}

// Tune snaps dimensions to sizes the model accepts and drops parameters the
// Images API does not take.
func (p *Provider) Tune(opts domain.GenerationOptions, _ domain.PromptTemplate) domain.GenerationOptions {
	if !p.models[opts.Model] {
		opts.Model = p.model
	}

	opts.Width, opts.Height = snapSize(opts.Model, opts.Width, opts.Height)

	if opts.Model == openai.ImageModelDallE2 || opts.Quality == "" {
		opts.Quality = domain.QualityStandard
	}

	opts.GuidanceScale = 0
	opts.InferenceSteps = 0
	opts.Seed = 0
	opts.NegativePrompt = ""

	return opts
}

// EstimateCost prices opts from the registered model pricing.
func (p *Provider) EstimateCost(opts domain.GenerationOptions) float64 {
	model := opts.Model
	if model == "" {
		model = p.model
	}

	cost, err := p.calculator.Calculate(model, opts)
	if err != nil {
		return domain.RoundCost(conservativePerImage * float64(max(opts.NumOutputs, 1)))
	}
	return cost
}

// IsAvailable looks up the configured model. It never returns an error.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, availabilityTimeout)
	defer cancel()

	if _, err := p.client.Models.Get(ctx, p.model); err != nil {
		observability.FromContext(ctx).Debug("OpenAI model lookup failed",
			observability.String("model", p.model),
			observability.Error(err),
		)
		return false
	}
	return true
}

// Generate requests opts.NumOutputs images, issuing as many calls as the model's
// per-call limit requires.
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
	logger.Debug("calling OpenAI Images API",
		observability.String("model", opts.Model),
		observability.Int("images", want),
	)

	images := make([]string, 0, want)
	revised := make([]string, 0, want)

	for len(images) < want {
		batchPrompt, batch := opts.PromptRun(len(images), min(maxPerCall(opts.Model), want-len(images)), prompt)

		if err := throttle.Wait(ctx, p.limiter, p.name); err != nil {
			return nil, err
		}

		resp, err := p.client.Images.Generate(ctx, p.toSDKParams(batchPrompt, opts, batch))
		if err != nil {
			logger.Error("OpenAI API call failed", observability.Error(err))
			return nil, p.wrapError(err)
		}

		got := 0
		for _, img := range resp.Data {
			location := imageLocation(img)
			if location == "" {
				continue
			}
			images = append(images, location)
			if img.RevisedPrompt != "" {
				revised = append(revised, img.RevisedPrompt)
			}
			got++
		}

		if got == 0 {
			return nil, fmt.Errorf("%w: OpenAI returned no images", domain.ErrIncompleteOutput)
		}
	}

	cost, err := p.calculator.Calculate(opts.Model, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to price OpenAI generation: %w", err)
	}

	logger.Debug("OpenAI API call succeeded",
		observability.Int("images", len(images)),
		observability.Float64("cost", cost),
	)

	return &domain.GenerationResult{
		Images:     images[:want],
		Cost:       cost,
		ModelUsed:  opts.Model,
		Provider:   p.name,
		Parameters: opts,
		Metadata: &domain.GenerationMetadata{
			RevisedPrompts: revised,
		},
	}, nil
}

// toSDKParams converts domain options to SDK ImageGenerateParams.
func (p *Provider) toSDKParams(prompt string, opts domain.GenerationOptions, n int) openai.ImageGenerateParams {
	params := openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          opts.Model,
		N:              openai.Int(int64(n)),
		Size:           sizeParam(opts.Width, opts.Height),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
	}

	if opts.Model == openai.ImageModelDallE3 {
		params.Quality = openai.ImageGenerateParamsQualityStandard
		if opts.Quality == domain.QualityHD {
			params.Quality = openai.ImageGenerateParamsQualityHD
		}
		if p.style != "" {
			params.Style = openai.ImageGenerateParamsStyle(p.style)
		}
	}

	return params
}

// wrapError converts SDK API errors into the shared provider error shape.
func (p *Provider) wrapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &domain.ProviderError{
			Provider:   p.name,
			StatusCode: apiErr.StatusCode,
			Code:       apiErr.Code,
			Message:    apiErr.Message,
		}
	}
	return fmt.Errorf("OpenAI API call failed: %w", err)
}

func imageLocation(img openai.Image) string {
	if img.URL != "" {
		return img.URL
	}
	if img.B64JSON != "" {
		return "data:image/png;base64," + img.B64JSON
	}
	return ""
}

var _ domain.Provider = (*Provider)(nil)
