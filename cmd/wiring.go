package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/davidbz/roomgen/internal/cache/memory"
	"github.com/davidbz/roomgen/internal/cache/redis"
	"github.com/davidbz/roomgen/internal/config"
	"github.com/davidbz/roomgen/internal/domain"
	"github.com/davidbz/roomgen/internal/observability"
	"github.com/davidbz/roomgen/internal/provider/echo"
	"github.com/davidbz/roomgen/internal/provider/openai"
	"github.com/davidbz/roomgen/internal/provider/registry"
	"github.com/davidbz/roomgen/internal/provider/replicate"
	"github.com/davidbz/roomgen/internal/storage/filesystem"
	memledger "github.com/davidbz/roomgen/internal/store/memory"
	"github.com/davidbz/roomgen/internal/store/mongodb"
	"github.com/davidbz/roomgen/internal/store/sqlite"
)

// resources collects shutdown hooks for long-lived connections.
type resources struct {
	closers []func(context.Context) error
}

func newResources() *resources {
	return &resources{}
}

func (r *resources) add(fn func(context.Context) error) {
	r.closers = append(r.closers, fn)
}

// Close runs the hooks in reverse order and logs failures.
func (r *resources) Close() {
	ctx := context.Background()
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			observability.FromContext(ctx).Warn("failed to close resource", observability.Error(err))
		}
	}
}

func newPricingRegistry(cfg *config.PricingConfig) (domain.PricingRegistry, error) {
	reg := domain.NewInMemoryPricingRegistry()

	for name, register := range map[string]func(domain.PricingRegistry) error{
		"openai":    openai.RegisterPricing,
		"replicate": replicate.RegisterPricing,
		"echo":      echo.RegisterPricing,
	} {
		if err := register(reg); err != nil {
			return nil, fmt.Errorf("failed to register %s pricing: %w", name, err)
		}
	}

	overridden, err := config.ApplyPricingOverrides(cfg, reg)
	if err != nil {
		return nil, err
	}
	logger := observability.FromContext(context.Background())
	if len(overridden) > 0 {
		logger.Info("pricing overrides applied", observability.Strings("models", overridden))
	}
	logger.Debug("pricing registered", observability.Strings("models", reg.Models()))

	return reg, nil
}

// newProviders builds every configured provider. Backends without credentials are skipped.
func newProviders(
	openaiCfg *openai.Config,
	replicateCfg *replicate.Config,
	echoCfg *echo.Config,
	calculator domain.CostCalculator,
) ([]domain.Provider, error) {
	logger := observability.FromContext(context.Background())

	builders := []func() (domain.Provider, error){
		func() (domain.Provider, error) {
			if openaiCfg.APIKey == "" {
				return nil, fmt.Errorf("openai: %w", ErrProviderNotConfigured)
			}
			return openai.NewProvider(*openaiCfg, calculator)
		},
		func() (domain.Provider, error) {
			if replicateCfg.APIToken == "" {
				return nil, fmt.Errorf("replicate: %w", ErrProviderNotConfigured)
			}
			return replicate.NewProvider(*replicateCfg, calculator)
		},
		func() (domain.Provider, error) {
			if !echoCfg.Enabled {
				return nil, fmt.Errorf("echo: %w", ErrProviderNotConfigured)
			}
			return echo.NewProvider(*echoCfg, calculator), nil
		},
	}

	providers := make([]domain.Provider, 0, len(builders))
	for _, build := range builders {
		provider, err := build()
		if errors.Is(err, ErrProviderNotConfigured) {
			logger.Info("provider skipped", observability.Error(err))
			continue
		}
		if err != nil {
			return nil, err
		}
		providers = append(providers, provider)
	}

	if len(providers) == 0 {
		return nil, errors.New("no image providers configured")
	}

	return providers, nil
}

func newProviderRegistry(providers []domain.Provider) (domain.ProviderRegistry, error) {
	reg := registry.NewRegistry()
	ctx := context.Background()

	for _, provider := range providers {
		if err := reg.Register(ctx, provider); err != nil {
			return nil, fmt.Errorf("failed to register %s provider: %w", provider.Name(), err)
		}
		observability.FromContext(ctx).Info("provider registered",
			observability.String("provider", provider.Name()),
			observability.Strings("models", provider.SupportedModels()),
		)
	}

	return reg, nil
}

func newCostLedger(
	cost *config.CostConfig,
	sqliteCfg *sqlite.Config,
	mongoCfg *mongodb.Config,
	res *resources,
) (domain.CostLedger, error) {
	switch cost.Ledger {
	case config.LedgerSQLite:
		ledger, err := sqlite.NewLedger(sqliteCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite ledger: %w", err)
		}
		res.add(func(context.Context) error { return ledger.Close() })
		return ledger, nil
	case config.LedgerMongo:
		ledger, err := mongodb.Connect(context.Background(), mongoCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open mongo ledger: %w", err)
		}
		res.add(ledger.Close)
		return ledger, nil
	default:
		return memledger.NewLedger(), nil
	}
}

func newSummaryCache(cost *config.CostConfig, redisCfg *redis.Config, res *resources) (domain.SummaryCache, error) {
	if cost.Cache != config.CacheRedis {
		return memory.NewSummaryCache(), nil
	}

	client, err := redis.NewClient(context.Background(), redisCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	res.add(func(context.Context) error { return client.Close() })

	return redis.NewSummaryCache(client, redisCfg.KeyPrefix)
}

// newImageStore returns a nil store when persistence is disabled so provider
// URLs pass through unchanged.
func newImageStore(orch *config.OrchestratorConfig, storage *filesystem.Config) (domain.ImageStore, error) {
	if !orch.PersistImages {
		return nil, nil
	}

	store, err := filesystem.NewImageStore(storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create image store: %w", err)
	}
	return store, nil
}

func newOrchestratorConfig(
	orch *config.OrchestratorConfig,
	openaiCfg *openai.Config,
	replicateCfg *replicate.Config,
) *domain.OrchestratorConfig {
	return &domain.OrchestratorConfig{
		MaxAttempts: orch.MaxAttempts,
		ProviderAttempts: map[string]int{
			"openai":    openaiCfg.MaxRetries,
			"replicate": replicateCfg.MaxRetries,
		},
		BackoffBase: orch.BackoffBase,
	}
}
