package echo

import "time"

// Config contains echo provider configuration.
type Config struct {
	Enabled bool          `env:"ECHO_ENABLED" envDefault:"true"`
	Latency time.Duration `env:"ECHO_LATENCY" envDefault:"0s"`
}
