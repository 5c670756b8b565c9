package replicate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/replicate/replicate-go"

	"github.com/davidbz/roomgen/internal/domain"
)

// Client wraps the Replicate SDK client with the model reference handling and
// output parsing this adapter needs.
type Client struct {
	api          *replicate.Client
	pollInterval time.Duration
}

// NewClient creates a new Replicate client. Retries belong to the orchestrator,
// so the SDK's own retry policy is switched off.
func NewClient(config Config) (*Client, error) {
	pollInterval := config.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	opts := []replicate.ClientOption{
		replicate.WithToken(config.APIToken),
		replicate.WithHTTPClient(&http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
		}),
		replicate.WithRetryPolicy(0, &replicate.ConstantBackoff{}),
	}
	if config.BaseURL != "" {
		opts = append(opts, replicate.WithBaseURL(config.BaseURL))
	}

	api, err := replicate.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Replicate client: %w", err)
	}

	return &Client{api: api, pollInterval: pollInterval}, nil
}

// predictionInput holds the diffusion parameters sent with a prediction.
type predictionInput struct {
	Prompt            string
	NegativePrompt    string
	Width             int
	Height            int
	AspectRatio       string
	NumOutputs        int
	GuidanceScale     float64
	NumInferenceSteps int
	Seed              int64
}

func (in predictionInput) toSDK() replicate.PredictionInput {
	out := replicate.PredictionInput{
		"prompt":      in.Prompt,
		"num_outputs": in.NumOutputs,
	}
	if in.NegativePrompt != "" {
		out["negative_prompt"] = in.NegativePrompt
	}
	if in.Width > 0 && in.Height > 0 {
		out["width"] = in.Width
		out["height"] = in.Height
	}
	if in.AspectRatio != "" {
		out["aspect_ratio"] = in.AspectRatio
	}
	if in.GuidanceScale > 0 {
		out["guidance_scale"] = in.GuidanceScale
	}
	if in.NumInferenceSteps > 0 {
		out["num_inference_steps"] = in.NumInferenceSteps
	}
	if in.Seed != 0 {
		out["seed"] = in.Seed
	}
	return out
}

// CreatePrediction starts a prediction. Version-pinned models go through the
// versioned endpoint, the rest through the model's own endpoint.
func (c *Client) CreatePrediction(ctx context.Context, model string, input predictionInput) (*replicate.Prediction, error) {
	base, version, pinned := strings.Cut(model, ":")
	if pinned {
		return c.api.CreatePrediction(ctx, version, input.toSDK(), nil, false)
	}

	owner, name, err := splitModel(base)
	if err != nil {
		return nil, err
	}
	return c.api.CreatePredictionWithModel(ctx, owner, name, input.toSDK(), nil, false)
}

// Wait polls until the prediction is terminal or ctx ends. The prediction is
// updated in place.
func (c *Client) Wait(ctx context.Context, prediction *replicate.Prediction) error {
	if prediction.Status.Terminated() {
		return nil
	}
	return c.api.Wait(ctx, prediction, replicate.WithPollingInterval(c.pollInterval))
}

// GetModel checks that a model exists and the token can read it.
func (c *Client) GetModel(ctx context.Context, model string) error {
	base, _, _ := strings.Cut(model, ":")
	owner, name, err := splitModel(base)
	if err != nil {
		return err
	}
	_, err = c.api.GetModel(ctx, owner, name)
	return err
}

func splitModel(model string) (string, string, error) {
	owner, name, ok := strings.Cut(model, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("invalid Replicate model reference %q", model)
	}
	return owner, name, nil
}

// outputImages returns the output URLs. Models return either a list or a single URL.
func outputImages(prediction *replicate.Prediction) []string {
	switch out := prediction.Output.(type) {
	case string:
		if out != "" {
			return []string{out}
		}
	case []any:
		images := make([]string, 0, len(out))
		for _, item := range out {
			if u, ok := item.(string); ok && u != "" {
				images = append(images, u)
			}
		}
		return images
	}
	return nil
}

// predictTime returns the billed run time in seconds, or zero when unreported.
func predictTime(prediction *replicate.Prediction) float64 {
	if prediction.Metrics == nil || prediction.Metrics.PredictTime == nil {
		return 0
	}
	return *prediction.Metrics.PredictTime
}

func errorMessage(prediction *replicate.Prediction) string {
	switch e := prediction.Error.(type) {
	case nil:
		return ""
	case string:
		return e
	default:
		return fmt.Sprint(e)
	}
}

// wrapError converts SDK API errors into the shared provider error shape.
func wrapError(err error) error {
	var apiErr *replicate.APIError
	if errors.As(err, &apiErr) {
		parts := make([]string, 0, 2)
		for _, part := range []string{apiErr.Title, apiErr.Detail} {
			if part = strings.TrimSpace(part); part != "" {
				parts = append(parts, part)
			}
		}
		message := strings.Join(parts, ": ")
		if message == "" {
			message = http.StatusText(apiErr.Status)
		}
		return &domain.ProviderError{
			Provider:   providerName,
			StatusCode: apiErr.Status,
			Message:    message,
			Err:        err,
		}
	}
	return fmt.Errorf("Replicate API call failed: %w", err)
}
