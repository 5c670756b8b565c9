package replicate

import "time"

// Config contains Replicate provider configuration.
// MaxRetries is the orchestrator's attempt cap for this provider; the client
// itself never retries.
type Config struct {
	APIToken          string        `env:"REPLICATE_API_TOKEN"`
	BaseURL           string        `env:"REPLICATE_BASE_URL"            envDefault:"https://api.replicate.com/v1"`
	Model             string        `env:"REPLICATE_MODEL"               envDefault:"stability-ai/sdxl:7762fd07cf82c948538e41f63f77d685e02b063e37e496e96eefd46c929f9bdc"`
	Timeout           int           `env:"REPLICATE_TIMEOUT"             envDefault:"120"`
	MaxRetries        int           `env:"REPLICATE_MAX_RETRIES"         envDefault:"3"`
	RequestsPerMinute int           `env:"REPLICATE_REQUESTS_PER_MINUTE" envDefault:"60"`
	PollInterval      time.Duration `env:"REPLICATE_POLL_INTERVAL"       envDefault:"1s"`
}
