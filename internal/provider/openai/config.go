package openai

// Config contains OpenAI image provider configuration.
// SDK-facing fields map to OpenAI SDK options:
//   - APIKey: Maps to option.WithAPIKey()
//   - BaseURL: Maps to option.WithBaseURL()
//   - Timeout: Maps to option.WithRequestTimeout() (in seconds)
//
// MaxRetries is the orchestrator's attempt cap for this provider; the SDK's own
// retries are disabled.
type Config struct {
	APIKey            string `env:"OPENAI_API_KEY"`
	BaseURL           string `env:"OPENAI_BASE_URL"            envDefault:"https://api.openai.com/v1"`
	Model             string `env:"OPENAI_IMAGE_MODEL"         envDefault:"dall-e-3"`
	Style             string `env:"OPENAI_IMAGE_STYLE"         envDefault:"natural"`
	Timeout           int    `env:"OPENAI_TIMEOUT"             envDefault:"60"`
	MaxRetries        int    `env:"OPENAI_MAX_RETRIES"         envDefault:"3"`
	RequestsPerMinute int    `env:"OPENAI_REQUESTS_PER_MINUTE" envDefault:"50"`
}
