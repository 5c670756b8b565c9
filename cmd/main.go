package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/davidbz/roomgen/internal/config"
	"github.com/davidbz/roomgen/internal/domain"
	"github.com/davidbz/roomgen/internal/http"
	"github.com/davidbz/roomgen/internal/http/middleware"
	"github.com/davidbz/roomgen/internal/metrics"
	"github.com/davidbz/roomgen/internal/observability"
	"github.com/davidbz/roomgen/internal/routing"
)

const shutdownTimeout = 15 * time.Second

// ErrProviderNotConfigured indicates that a provider is not configured and should be skipped.
var ErrProviderNotConfigured = errors.New("provider not configured")

func main() {
	container := buildContainer()

	err := container.Invoke(func(server *http.Server, closers *resources) error {
		defer closers.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err != nil {
		log.Fatalf("Failed to run application: %v", err)
	}
}

func buildContainer() *dig.Container {
	container := dig.New()

	// Configuration
	if err := container.Provide(config.Load); err != nil {
		log.Fatalf("Failed to provide config: %v", err)
	}
	if err := container.Provide(config.ParseDependenciesConfig); err != nil {
		log.Fatalf("Failed to provide config dependencies: %v", err)
	}

	// Observability
	if err := container.Provide(observability.InitLogger); err != nil {
		log.Fatalf("Failed to provide logger: %v", err)
	}
	if err := container.Invoke(func(logger *zap.Logger) {
		observability.SetLogger(logger)
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	if err := container.Provide(func() domain.EventPublisher {
		return metrics.NewPublisher(observability.NewEventBus())
	}); err != nil {
		log.Fatalf("Failed to provide event publisher: %v", err)
	}
	if err := container.Provide(newResources); err != nil {
		log.Fatalf("Failed to provide resource tracker: %v", err)
	}

	// Pricing
	if err := container.Provide(newPricingRegistry); err != nil {
		log.Fatalf("Failed to provide pricing registry: %v", err)
	}
	if err := container.Provide(func(reg domain.PricingRegistry) domain.CostCalculator {
		return domain.NewStandardCostCalculator(reg)
	}); err != nil {
		log.Fatalf("Failed to provide cost calculator: %v", err)
	}

	// Providers and routing
	if err := container.Provide(newProviders); err != nil {
		log.Fatalf("Failed to provide providers: %v", err)
	}
	if err := container.Provide(newProviderRegistry); err != nil {
		log.Fatalf("Failed to provide registry: %v", err)
	}
	if err := container.Provide(func(reg domain.ProviderRegistry, cfg *routing.Config) domain.Router {
		return routing.NewRouter(reg, cfg)
	}); err != nil {
		log.Fatalf("Failed to provide router: %v", err)
	}

	// Cost tracking
	if err := container.Provide(newCostLedger); err != nil {
		log.Fatalf("Failed to provide cost ledger: %v", err)
	}
	if err := container.Provide(newSummaryCache); err != nil {
		log.Fatalf("Failed to provide summary cache: %v", err)
	}
	if err := container.Provide(func(
		ledger domain.CostLedger,
		cache domain.SummaryCache,
		cfg *config.CostConfig,
	) *domain.CostGuardService {
		return domain.NewCostGuardService(ledger, cache, &domain.CostGuardConfig{
			DailyLimit:   cfg.DailyLimit,
			MonthlyLimit: cfg.MonthlyLimit,
			CacheTTL:     cfg.CacheTTL,
		})
	}); err != nil {
		log.Fatalf("Failed to provide cost guard: %v", err)
	}

	// Image storage
	if err := container.Provide(newImageStore); err != nil {
		log.Fatalf("Failed to provide image store: %v", err)
	}

	// Domain Services
	if err := container.Provide(domain.NewPromptBuilder); err != nil {
		log.Fatalf("Failed to provide prompt builder: %v", err)
	}
	if err := container.Provide(domain.NewErrorClassifier); err != nil {
		log.Fatalf("Failed to provide error classifier: %v", err)
	}
	if err := container.Provide(newOrchestratorConfig); err != nil {
		log.Fatalf("Failed to provide orchestrator config: %v", err)
	}
	if err := container.Provide(func(
		router domain.Router,
		guard *domain.CostGuardService,
		prompts *domain.PromptBuilder,
		classifier *domain.ErrorClassifier,
		store domain.ImageStore,
		publisher domain.EventPublisher,
		cfg *domain.OrchestratorConfig,
	) *domain.Orchestrator {
		return domain.NewOrchestrator(router, guard, prompts, classifier, store, publisher, cfg)
	}); err != nil {
		log.Fatalf("Failed to provide orchestrator: %v", err)
	}

	// HTTP Layer
	if err := container.Provide(func(o *domain.Orchestrator, guard *domain.CostGuardService) *http.Handler {
		return http.NewHandler(o, guard)
	}); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(middleware.BuildMiddlewareChain); err != nil {
		log.Fatalf("Failed to provide middleware chain: %v", err)
	}
	if err := container.Provide(http.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}
