// Package echo provides a local image provider for development and tests.
// It implements the domain.Provider interface without making external API calls,
// returning small deterministic PNG placeholders derived from the prompt.
package echo

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"time"

	"github.com/davidbz/roomgen/internal/domain"
	"github.com/davidbz/roomgen/internal/observability"
)

const (
	providerName = "echo"
	modelName    = "echo-v1"

	// placeholderScale shrinks requested dimensions to keep placeholders tiny.
	placeholderScale = 64
)

// Provider implements the domain.Provider interface for local testing.
type Provider struct {
	name       string
	latency    time.Duration
	calculator domain.CostCalculator
}

// NewProvider creates a new echo provider.
// No credentials are required as this provider operates entirely in-memory.
func NewProvider(config Config, calculator domain.CostCalculator) *Provider {
	return &Provider{
		name:       providerName,
		latency:    config.Latency,
		calculator: calculator,
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Kind returns the backend variant.
func (p *Provider) Kind() domain.ProviderKind {
	return domain.ProviderKindEcho
}

// SupportedModels returns a list of all models this provider supports.
func (p *Provider) SupportedModels() []string {
	return []string{modelName}
}

// Defaults returns square placeholder options.
func (p *Provider) Defaults() domain.GenerationOptions {
	return domain.GenerationOptions{
		Model:      modelName,
		Width:      1024,
		Height:     1024,
		NumOutputs: 1,
		Quality:    domain.QualityStandard,
	}
}

// Tune pins the echo model and keeps everything else as requested.
func (p *Provider) Tune(opts domain.GenerationOptions, _ domain.PromptTemplate) domain.GenerationOptions {
	opts.Model = modelName
	return opts
}

// EstimateCost returns the registered echo price, which is zero.
func (p *Provider) EstimateCost(opts domain.GenerationOptions) float64 {
	if p.calculator == nil {
		return 0
	}
	cost, err := p.calculator.Calculate(modelName, opts)
	if err != nil {
		return 0
	}
	return cost
}

// IsAvailable always reports true.
func (p *Provider) IsAvailable(_ context.Context) bool {
	return true
}

// Generate returns opts.NumOutputs placeholder images as data URIs.
func (p *Provider) Generate(
	ctx context.Context,
	prompt string,
	opts domain.GenerationOptions,
) (*domain.GenerationResult, error) {
	if prompt == "" {
		return nil, errors.New("prompt cannot be empty")
	}

	if p.latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.latency):
		}
	}

	want := max(opts.NumOutputs, 1)
	opts.NumOutputs = want
	opts.Model = modelName

	images := make([]string, 0, want)
	for i := range want {
		uri, err := placeholder(opts.PromptAt(i, prompt), i, opts.Width, opts.Height)
		if err != nil {
			return nil, fmt.Errorf("failed to render placeholder: %w", err)
		}
		images = append(images, uri)
	}

	observability.FromContext(ctx).Debug("echo images generated",
		observability.Int("images", want),
	)

	return &domain.GenerationResult{
		Images:     images,
		Cost:       p.EstimateCost(opts),
		ModelUsed:  modelName,
		Provider:   p.name,
		Parameters: opts,
	}, nil
}

// placeholder renders a solid PNG whose color is derived from prompt and index.
func placeholder(prompt string, index, width, height int) (string, error) {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", prompt, index)))
	fill := color.RGBA{R: sum[0], G: sum[1], B: sum[2], A: 0xff}

	w := max(width/placeholderScale, 1)
	h := max(height/placeholderScale, 1)

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, fill)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

var _ domain.Provider = (*Provider)(nil)
