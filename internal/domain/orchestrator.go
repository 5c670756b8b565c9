package domain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/davidbz/roomgen/internal/observability"
)

// Orchestrator defaults.
const (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = time.Second
)

// OrchestratorConfig configures retry behavior.
type OrchestratorConfig struct {
	// MaxAttempts caps attempts per provider when ProviderAttempts has no entry.
	MaxAttempts int
	// ProviderAttempts overrides the attempt cap per provider name.
	ProviderAttempts map[string]int
	// BackoffBase is the first retry delay; each later retry doubles it.
	BackoffBase time.Duration
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithSleeper replaces the backoff wait.
func WithSleeper(sleep Sleeper) OrchestratorOption {
	return func(o *Orchestrator) {
		o.sleep = sleep
	}
}

// WithClock replaces the clock used for timing metadata.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// Orchestrator turns a generation request into images: admission, prompt
// building, provider selection, bounded retry with one fallback, storage and
// cost recording.
type Orchestrator struct {
	router     Router
	guard      CostGuard
	prompts    *PromptBuilder
	classifier *ErrorClassifier
	store      ImageStore
	publisher  EventPublisher
	cfg        OrchestratorConfig
	sleep      Sleeper
	now        func() time.Time
}

// NewOrchestrator creates a new orchestrator (DI constructor). store may be nil,
// in which case provider URLs are returned as-is.
func NewOrchestrator(
	router Router,
	guard CostGuard,
	prompts *PromptBuilder,
	classifier *ErrorClassifier,
	store ImageStore,
	publisher EventPublisher,
	cfg *OrchestratorConfig,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		router:     router,
		guard:      guard,
		prompts:    prompts,
		classifier: classifier,
		store:      store,
		publisher:  publisher,
		sleep:      sleepContext,
		now:        time.Now,
	}
	if cfg != nil {
		o.cfg = *cfg
	}
	if o.cfg.MaxAttempts <= 0 {
		o.cfg.MaxAttempts = DefaultMaxAttempts
	}
	if o.cfg.BackoffBase <= 0 {
		o.cfg.BackoffBase = DefaultBackoffBase
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// generation is the per-request working state.
type generation struct {
	req         *GenerationRequest
	variations  int
	basePrompt  string
	variants    []string
	variant     int
	prompt      string
	reservation *Reservation
	attempts    int
	fallback    bool
	started     time.Time
}

// Generate runs one request to completion. On failure the returned result has
// Error set and the same *GenerationError is returned as err.
func (o *Orchestrator) Generate(ctx context.Context, req *GenerationRequest) (*GenerationResult, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	ctx = observability.WithUserID(ctx, req.UserID)
	ctx = observability.WithDesignID(ctx, req.DesignID)
	logger := observability.FromContext(ctx)

	gen := &generation{req: req, variations: req.Variations(), started: o.now()}

	if err := req.Validate(); err != nil {
		return o.fail(ctx, gen, err)
	}

	plan, err := o.router.Plan(ctx, &RouteRequest{Provider: req.Provider, Model: req.Model})
	if err != nil {
		return o.fail(ctx, gen, err)
	}

	estimate := o.estimate(plan, gen)
	reservation, err := o.guard.Reserve(ctx, req.UserID, estimate)
	if err != nil {
		o.publisher.Publish(ctx, EventAdmissionRejected, map[string]interface{}{
			"user_id":  req.UserID,
			"estimate": estimate,
		})
		return o.fail(ctx, gen, err)
	}
	gen.reservation = reservation
	committed := false
	defer func() {
		if !committed {
			o.guard.Release(ctx, reservation)
		}
	}()

	logger.Info("generation admitted",
		observability.Float64("estimate", estimate),
		observability.Int("variations", gen.variations),
	)

	gen.basePrompt, err = o.prompts.BuildPrompt(req.Template)
	if err != nil {
		return o.fail(ctx, gen, err)
	}
	gen.variants = o.prompts.BuildVariationPrompts(gen.basePrompt, gen.variations)
	gen.variant = min(req.VariationIndex, len(gen.variants)-1)
	gen.prompt = gen.variants[gen.variant]

	chain, err := o.router.Select(ctx, plan)
	if err != nil {
		return o.fail(ctx, gen, err)
	}
	gen.fallback = chain[0] != plan.Primary

	result, provider, err := o.dispatch(ctx, gen, chain)
	if err != nil {
		return o.fail(ctx, gen, err)
	}

	if err := o.persist(ctx, gen, result); err != nil {
		return o.fail(ctx, gen, err)
	}

	result.Cost = RoundCost(math.Max(0, result.Cost))
	committed = true
	o.commit(ctx, gen, provider, result)

	result.Success = true
	result.Error = nil
	result.Provider = provider.Name()
	result.Metadata = o.metadata(ctx, gen, provider, result)

	o.publisher.Publish(ctx, EventSucceeded, map[string]interface{}{
		"provider":    provider.Name(),
		"model":       result.ModelUsed,
		"cost":        result.Cost,
		"attempts":    gen.attempts,
		"fallback":    gen.fallback,
		"duration_ms": result.Metadata.DurationMs,
	})
	logger.Info("generation succeeded",
		observability.String("provider", provider.Name()),
		observability.String("model", result.ModelUsed),
		observability.Float64("cost", result.Cost),
		observability.Int("images", len(result.Images)),
		observability.Int("attempts", gen.attempts),
	)

	return result, nil
}

// estimate returns the largest estimate across the planned providers so the
// reservation covers a fallback dispatch.
func (o *Orchestrator) estimate(plan *RoutePlan, gen *generation) float64 {
	estimate := 0.0
	for _, p := range plan.Candidates() {
		estimate = math.Max(estimate, p.EstimateCost(o.optionsFor(p, gen)))
	}
	return RoundCost(estimate)
}

// optionsFor derives the provider's options from its defaults and the template.
func (o *Orchestrator) optionsFor(p Provider, gen *generation) GenerationOptions {
	defaults := p.Defaults()
	if gen.req.Model != "" && slices.Contains(p.SupportedModels(), gen.req.Model) {
		defaults.Model = gen.req.Model
	}
	opts := TuneOptions(defaults, gen.req.Template, gen.variations)
	return p.Tune(opts, gen.req.Template)
}

// imagePrompts gives image i the variation after the selected one by i,
// wrapping when there are fewer variations than images.
func (o *Orchestrator) imagePrompts(gen *generation, kind ProviderKind, n int) []string {
	prompts := make([]string, n)
	for i := range prompts {
		variant := gen.variants[(gen.variant+i)%len(gen.variants)]
		prompts[i] = o.prompts.OptimizeForProvider(variant, kind)
	}
	return prompts
}

func (o *Orchestrator) attemptsFor(p Provider) int {
	if n, ok := o.cfg.ProviderAttempts[p.Name()]; ok && n > 0 {
		return n
	}
	return o.cfg.MaxAttempts
}

func (o *Orchestrator) backoff(attempt int) time.Duration {
	return o.cfg.BackoffBase * time.Duration(1<<(attempt-1))
}

// dispatch walks the provider chain. Each provider gets its own attempt budget;
// non-retryable failures stop immediately without fallback.
func (o *Orchestrator) dispatch(
	ctx context.Context,
	gen *generation,
	chain []Provider,
) (*GenerationResult, Provider, error) {
	logger := observability.FromContext(ctx)
	var last *GenerationError

	for i, provider := range chain {
		pctx := observability.WithProvider(ctx, provider.Name())

		if i > 0 {
			gen.fallback = true
			o.publisher.Publish(pctx, EventFallback, map[string]interface{}{
				"from": chain[i-1].Name(),
				"to":   provider.Name(),
			})
			logger.Warn("falling back to next provider",
				observability.String("from", chain[i-1].Name()),
				observability.String("to", provider.Name()),
			)
		}

		opts := o.optionsFor(provider, gen)
		prompt := o.prompts.OptimizeForProvider(gen.prompt, provider.Kind())
		opts.Prompts = o.imagePrompts(gen, provider.Kind(), opts.NumOutputs)
		maxAttempts := o.attemptsFor(provider)

		for attempt := 1; attempt <= maxAttempts; attempt++ {
			if ctx.Err() != nil {
				return nil, nil, cancelled(ctx, last)
			}

			gen.attempts++
			result, err := provider.Generate(pctx, prompt, opts)
			if err == nil && len(result.Images) != opts.NumOutputs {
				err = fmt.Errorf("%w: got %d of %d", ErrIncompleteOutput, len(result.Images), opts.NumOutputs)
			}
			if err == nil {
				result.Parameters = opts
				if result.ModelUsed == "" {
					result.ModelUsed = opts.Model
				}
				return result, provider, nil
			}

			last = o.classifier.Classify(pctx, provider.Name(), err)
			o.publisher.Publish(pctx, EventAttemptFailed, map[string]interface{}{
				"provider":  provider.Name(),
				"attempt":   attempt,
				"code":      string(last.Code),
				"retryable": last.Retryable,
			})

			if !last.Retryable {
				return nil, nil, last
			}

			if attempt < maxAttempts {
				delay := o.backoff(attempt)
				logger.Info("retrying provider",
					observability.String("provider", provider.Name()),
					observability.Int("attempt", attempt),
					observability.Duration("backoff", delay),
				)
				if err := o.sleep(ctx, delay); err != nil {
					return nil, nil, cancelled(ctx, last)
				}
			}
		}
	}

	if last == nil {
		return nil, nil, NewGenerationError(CodeProviderUnavailable, "", ErrProviderNotFound)
	}

	exhausted := *last
	exhausted.Code = CodeGenerationFailed
	exhausted.Message = "All generation attempts failed. Please try again later."
	exhausted.Retryable = false
	exhausted.Exhausted = true
	exhausted.Cause = last
	return nil, nil, &exhausted
}

// persist copies provider images into the image store with the same bounded retry.
func (o *Orchestrator) persist(ctx context.Context, gen *generation, result *GenerationResult) error {
	if o.store == nil {
		return nil
	}

	stored := make([]string, len(result.Images))
	kind := gen.req.ImageKind()
	var last *GenerationError

	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return cancelled(ctx, last)
		}

		failed := false
		for i, source := range result.Images {
			if stored[i] != "" {
				continue
			}
			url, err := o.store.Persist(ctx, source, gen.req.DesignID, kind, i)
			if err != nil {
				if !errors.Is(err, ErrStorage) {
					err = fmt.Errorf("%w: %w", ErrStorage, err)
				}
				last = o.classifier.Classify(ctx, "storage", err)
				failed = true
				break
			}
			stored[i] = url
		}

		if !failed {
			result.Images = stored
			return nil
		}

		if attempt < o.cfg.MaxAttempts {
			if err := o.sleep(ctx, o.backoff(attempt)); err != nil {
				return cancelled(ctx, last)
			}
		}
	}

	exhausted := *last
	exhausted.Retryable = false
	exhausted.Exhausted = true
	return &exhausted
}

// commit records realized spend. A ledger failure after a successful generation
// is logged and does not fail the request.
func (o *Orchestrator) commit(ctx context.Context, gen *generation, provider Provider, result *GenerationResult) {
	logger := observability.FromContext(ctx)

	if result.Cost > gen.reservation.Amount+costEpsilon {
		o.publisher.Publish(ctx, EventCostOvershoot, map[string]interface{}{
			"user_id":  gen.req.UserID,
			"reserved": gen.reservation.Amount,
			"actual":   result.Cost,
		})
		logger.Warn("realized cost exceeded reservation",
			observability.Float64("reserved", gen.reservation.Amount),
			observability.Float64("actual", result.Cost),
		)
	}

	err := o.guard.Commit(ctx, gen.reservation, CostEntry{
		UserID:    gen.req.UserID,
		DesignID:  gen.req.DesignID,
		Provider:  provider.Name(),
		Model:     result.ModelUsed,
		Images:    len(result.Images),
		Cost:      result.Cost,
		CreatedAt: o.now(),
	})
	if err != nil {
		logger.Error("failed to record generation cost",
			observability.Float64("cost", result.Cost),
			observability.Error(err),
		)
	}
}

func (o *Orchestrator) metadata(
	ctx context.Context,
	gen *generation,
	provider Provider,
	result *GenerationResult,
) *GenerationMetadata {
	meta := &GenerationMetadata{
		RequestID:        observability.GetRequestID(ctx),
		UserID:           gen.req.UserID,
		DesignID:         gen.req.DesignID,
		OriginalPrompt:   gen.prompt,
		OptimizedPrompt:  o.prompts.OptimizeForProvider(gen.prompt, provider.Kind()),
		VariationPrompts: gen.variants,
		Attempts:         gen.attempts,
		FallbackUsed:     gen.fallback,
		Seed:             result.Parameters.Seed,
		DurationMs:       o.now().Sub(gen.started).Milliseconds(),
		GeneratedAt:      o.now().UTC(),
	}
	if result.Metadata != nil {
		meta.RevisedPrompts = result.Metadata.RevisedPrompts
		if result.Metadata.Seed != 0 {
			meta.Seed = result.Metadata.Seed
		}
	}
	return meta
}

// fail converts err into a failed result.
func (o *Orchestrator) fail(ctx context.Context, gen *generation, err error) (*GenerationResult, error) {
	genErr, ok := AsGenerationError(err)
	if !ok {
		genErr = o.classifier.Classify(ctx, "", err)
	}

	o.publisher.Publish(ctx, EventFailed, map[string]interface{}{
		"code":      string(genErr.Code),
		"provider":  genErr.Provider,
		"attempts":  gen.attempts,
		"exhausted": genErr.Exhausted,
	})
	observability.FromContext(ctx).Warn("generation failed",
		observability.String("code", string(genErr.Code)),
		observability.Int("attempts", gen.attempts),
		observability.Bool("exhausted", genErr.Exhausted),
		observability.Error(genErr.Cause),
	)

	return &GenerationResult{
		Success: false,
		Images:  []string{},
		Error:   genErr,
		Metadata: &GenerationMetadata{
			RequestID:  observability.GetRequestID(ctx),
			UserID:     gen.req.UserID,
			DesignID:   gen.req.DesignID,
			Attempts:   gen.attempts,
			DurationMs: o.now().Sub(gen.started).Milliseconds(),
		},
	}, genErr
}

// cancelled builds the non-retryable failure returned when the caller gave up.
func cancelled(ctx context.Context, last *GenerationError) *GenerationError {
	if last == nil {
		return &GenerationError{
			Code:    CodeUnknown,
			Message: "The request was cancelled.",
			Cause:   ctx.Err(),
		}
	}
	out := *last
	out.Retryable = false
	return &out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
