package openai_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/roomgen/internal/domain"
	"github.com/davidbz/roomgen/internal/provider/openai"
)

func newCalculator(t *testing.T) domain.CostCalculator {
	t.Helper()
	registry := domain.NewInMemoryPricingRegistry()
	require.NoError(t, openai.RegisterPricing(registry))
	return domain.NewStandardCostCalculator(registry)
}

func newTestProvider(t *testing.T, baseURL string) *openai.Provider {
	t.Helper()
	provider, err := openai.NewProvider(openai.Config{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Model:   "dall-e-3",
		Timeout: 5,
	}, newCalculator(t))
	require.NoError(t, err)
	return provider
}

type imageServer struct {
	calls   atomic.Int32
	lastN   atomic.Int32
	handler http.HandlerFunc
}

func newImageServer(t *testing.T) (*imageServer, *httptest.Server) {
	t.Helper()
	s := &imageServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /images/generations", func(w http.ResponseWriter, r *http.Request) {
		if s.handler != nil {
			s.handler(w, r)
			return
		}
		var body struct {
			Prompt string `json:"prompt"`
			Model  string `json:"model"`
			N      int    `json:"n"`
			Size   string `json:"size"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		call := s.calls.Add(1)
		s.lastN.Store(int32(body.N))

		data := make([]map[string]string, 0, body.N)
		for i := range body.N {
			data = append(data, map[string]string{
				"url":            fmt.Sprintf("https://images.example/%d-%d.png", call, i),
				"revised_prompt": "revised " + body.Prompt,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"created": 1, "data": data})
	})
	mux.HandleFunc("GET /models/{model}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("model") != "dall-e-3" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"message":"model not found","type":"invalid_request_error","code":"model_not_found"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"dall-e-3","object":"model","created":1,"owned_by":"system"}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return s, server
}

func TestNewProvider(t *testing.T) {
	t.Run("should create provider", func(t *testing.T) {
		provider, err := openai.NewProvider(openai.Config{APIKey: "test-key"}, newCalculator(t))

		require.NoError(t, err)
		require.Equal(t, "openai", provider.Name())
		require.Equal(t, domain.ProviderKindOpenAI, provider.Kind())
		require.Equal(t, "dall-e-3", provider.Defaults().Model)
	})

	t.Run("should require an API key", func(t *testing.T) {
		provider, err := openai.NewProvider(openai.Config{}, newCalculator(t))

		require.Error(t, err)
		require.Nil(t, provider)
		require.Contains(t, err.Error(), "OpenAI API key is required")
	})

	t.Run("should reject unknown models", func(t *testing.T) {
		_, err := openai.NewProvider(openai.Config{APIKey: "k", Model: "gpt-4"}, newCalculator(t))

		require.Error(t, err)
		require.Contains(t, err.Error(), "unsupported")
	})
}

func TestProvider_Tune(t *testing.T) {
	provider, err := openai.NewProvider(openai.Config{APIKey: "test-key"}, newCalculator(t))
	require.NoError(t, err)

	tests := []struct {
		name          string
		width, height int
		wantW, wantH  int
	}{
		{name: "wide rooms use landscape", width: 1792, height: 1024, wantW: 1792, wantH: 1024},
		{name: "tall rooms use portrait", width: 1024, height: 1792, wantW: 1024, wantH: 1792},
		{name: "odd sizes snap to square", width: 900, height: 900, wantW: 1024, wantH: 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := provider.Tune(domain.GenerationOptions{
				Model:          "dall-e-3",
				Width:          tt.width,
				Height:         tt.height,
				InferenceSteps: 50,
				GuidanceScale:  9,
				Quality:        domain.QualityHD,
			}, domain.PromptTemplate{})

			require.Equal(t, tt.wantW, opts.Width)
			require.Equal(t, tt.wantH, opts.Height)
			require.Zero(t, opts.InferenceSteps)
			require.Zero(t, opts.GuidanceScale)
			require.Equal(t, domain.QualityHD, opts.Quality)
		})
	}
}

func TestProvider_EstimateCost(t *testing.T) {
	provider, err := openai.NewProvider(openai.Config{APIKey: "test-key"}, newCalculator(t))
	require.NoError(t, err)

	tests := []struct {
		name string
		opts domain.GenerationOptions
		want float64
	}{
		{
			name: "standard square",
			opts: domain.GenerationOptions{Model: "dall-e-3", Width: 1024, Height: 1024, NumOutputs: 2, Quality: domain.QualityStandard},
			want: 0.08,
		},
		{
			name: "hd wide",
			opts: domain.GenerationOptions{Model: "dall-e-3", Width: 1792, Height: 1024, NumOutputs: 1, Quality: domain.QualityHD},
			want: 0.12,
		},
		{
			name: "dall-e-2",
			opts: domain.GenerationOptions{Model: "dall-e-2", Width: 1024, Height: 1024, NumOutputs: 3, Quality: domain.QualityStandard},
			want: 0.06,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := provider.EstimateCost(tt.opts)
			require.InDelta(t, tt.want, first, 1e-9)
			require.Equal(t, first, provider.EstimateCost(tt.opts))
		})
	}
}

func TestProvider_Generate(t *testing.T) {
	t.Run("should loop single-image calls for dall-e-3", func(t *testing.T) {
		s, server := newImageServer(t)
		provider := newTestProvider(t, server.URL)

		result, err := provider.Generate(context.Background(), "a bright kitchen", domain.GenerationOptions{
			Model:      "dall-e-3",
			Width:      1024,
			Height:     1024,
			NumOutputs: 3,
			Quality:    domain.QualityStandard,
		})

		require.NoError(t, err)
		require.Len(t, result.Images, 3)
		require.Equal(t, int32(3), s.calls.Load())
		require.Equal(t, int32(1), s.lastN.Load())
		require.Equal(t, "dall-e-3", result.ModelUsed)
		require.InDelta(t, 0.12, result.Cost, 1e-9)
		require.Len(t, result.Metadata.RevisedPrompts, 3)
		require.Equal(t, "revised a bright kitchen", result.Metadata.RevisedPrompts[0])
	})

	t.Run("should send each image its own prompt", func(t *testing.T) {
		_, server := newImageServer(t)
		provider := newTestProvider(t, server.URL)

		result, err := provider.Generate(context.Background(), "a bright kitchen", domain.GenerationOptions{
			Model:      "dall-e-3",
			Width:      1024,
			Height:     1024,
			NumOutputs: 2,
			Prompts:    []string{"a bright kitchen", "a bright kitchen, evening light"},
		})

		require.NoError(t, err)
		require.Equal(t, []string{
			"revised a bright kitchen",
			"revised a bright kitchen, evening light",
		}, result.Metadata.RevisedPrompts)
	})

	t.Run("should pass API errors through as provider errors", func(t *testing.T) {
		s, server := newImageServer(t)
		s.handler = func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
		}
		provider := newTestProvider(t, server.URL)

		_, err := provider.Generate(context.Background(), "a bedroom", domain.GenerationOptions{NumOutputs: 1})

		var providerErr *domain.ProviderError
		require.ErrorAs(t, err, &providerErr)
		require.Equal(t, http.StatusUnauthorized, providerErr.StatusCode)
		require.Equal(t, "invalid_api_key", providerErr.Code)

		genErr := domain.NewErrorClassifier().Classify(context.Background(), "openai", err)
		require.Equal(t, domain.CodeAuthInvalid, genErr.Code)
	})

	t.Run("should fail when the API returns no images", func(t *testing.T) {
		s, server := newImageServer(t)
		s.handler = func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"created":1,"data":[]}`))
		}
		provider := newTestProvider(t, server.URL)

		_, err := provider.Generate(context.Background(), "an office", domain.GenerationOptions{NumOutputs: 1})

		require.ErrorIs(t, err, domain.ErrIncompleteOutput)
	})

	t.Run("should reject an empty prompt", func(t *testing.T) {
		_, server := newImageServer(t)
		provider := newTestProvider(t, server.URL)

		_, err := provider.Generate(context.Background(), "", domain.GenerationOptions{NumOutputs: 1})

		require.Error(t, err)
		require.Contains(t, err.Error(), "prompt cannot be empty")
	})
}

func TestProvider_IsAvailable(t *testing.T) {
	t.Run("should report available when the model resolves", func(t *testing.T) {
		_, server := newImageServer(t)
		provider := newTestProvider(t, server.URL)

		require.True(t, provider.IsAvailable(context.Background()))
	})

	t.Run("should report unavailable when the backend is down", func(t *testing.T) {
		_, server := newImageServer(t)
		provider := newTestProvider(t, server.URL)
		server.Close()

		require.False(t, provider.IsAvailable(context.Background()))
	})
}
