package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/davidbz/roomgen/internal/cache/redis"
	"github.com/davidbz/roomgen/internal/observability"
	"github.com/davidbz/roomgen/internal/provider/echo"
	"github.com/davidbz/roomgen/internal/provider/openai"
	"github.com/davidbz/roomgen/internal/provider/replicate"
	"github.com/davidbz/roomgen/internal/routing"
	"github.com/davidbz/roomgen/internal/storage/filesystem"
	"github.com/davidbz/roomgen/internal/store/mongodb"
	"github.com/davidbz/roomgen/internal/store/sqlite"
)

// Ledger backends.
const (
	LedgerMemory = "memory"
	LedgerSQLite = "sqlite"
	LedgerMongo  = "mongo"
)

// Summary cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config represents the service configuration.
type Config struct {
	Server       ServerConfig
	CORS         CORSConfig
	Log          observability.LogConfig
	Routing      routing.Config
	Orchestrator OrchestratorConfig
	Cost         CostConfig
	Pricing      PricingConfig
	OpenAI       openai.Config
	Replicate    replicate.Config
	Echo         echo.Config
	Storage      filesystem.Config
	SQLite       sqlite.Config
	Mongo        mongodb.Config
	Redis        redis.Config
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int `env:"SERVER_PORT"          envDefault:"8080"`
	ReadTimeout  int `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"300"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// OrchestratorConfig contains retry settings shared by all providers.
type OrchestratorConfig struct {
	MaxAttempts   int           `env:"GENERATION_MAX_ATTEMPTS" envDefault:"3"`
	BackoffBase   time.Duration `env:"RETRY_BACKOFF_BASE"      envDefault:"1s"`
	PersistImages bool          `env:"PERSIST_IMAGES"          envDefault:"true"`
}

// CostConfig contains spend limits and the ledger and cache backends.
type CostConfig struct {
	DailyLimit   float64       `env:"COST_DAILY_LIMIT"   envDefault:"10"`
	MonthlyLimit float64       `env:"COST_MONTHLY_LIMIT" envDefault:"200"`
	CacheTTL     time.Duration `env:"COST_CACHE_TTL"     envDefault:"5m"`
	Ledger       string        `env:"COST_LEDGER"        envDefault:"memory"`
	Cache        string        `env:"COST_CACHE"         envDefault:"memory"`
}

// PricingConfig points at optional per-model price overrides.
type PricingConfig struct {
	File string `env:"PRICING_FILE"`
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out
	Server       *ServerConfig
	CORS         *CORSConfig
	Log          *observability.LogConfig
	Routing      *routing.Config
	Orchestrator *OrchestratorConfig
	Cost         *CostConfig
	Pricing      *PricingConfig
	OpenAI       *openai.Config
	Replicate    *replicate.Config
	Echo         *echo.Config
	Storage      *filesystem.Config
	SQLite       *sqlite.Config
	Mongo        *mongodb.Config
	Redis        *redis.Config
}

// Load loads environment files, parses and validates configuration.
func Load() (*Config, error) {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch c.Cost.Ledger {
	case LedgerMemory, LedgerSQLite, LedgerMongo:
	default:
		return fmt.Errorf("unknown COST_LEDGER %q", c.Cost.Ledger)
	}

	switch c.Cost.Cache {
	case CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("unknown COST_CACHE %q", c.Cost.Cache)
	}

	if c.Cost.DailyLimit < 0 || c.Cost.MonthlyLimit < 0 {
		return errors.New("cost limits cannot be negative")
	}

	if c.Orchestrator.MaxAttempts < 1 {
		return errors.New("GENERATION_MAX_ATTEMPTS must be at least 1")
	}

	if c.Orchestrator.BackoffBase < 0 {
		return errors.New("RETRY_BACKOFF_BASE cannot be negative")
	}

	return nil
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		Server:       &cfg.Server,
		CORS:         &cfg.CORS,
		Log:          &cfg.Log,
		Routing:      &cfg.Routing,
		Orchestrator: &cfg.Orchestrator,
		Cost:         &cfg.Cost,
		Pricing:      &cfg.Pricing,
		OpenAI:       &cfg.OpenAI,
		Replicate:    &cfg.Replicate,
		Echo:         &cfg.Echo,
		Storage:      &cfg.Storage,
		SQLite:       &cfg.SQLite,
		Mongo:        &cfg.Mongo,
		Redis:        &cfg.Redis,
	}
}
