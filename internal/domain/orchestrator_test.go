package domain_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/roomgen/internal/domain"
)

type fakeProvider struct {
	name      string
	kind      domain.ProviderKind
	available bool
	unitCost  float64
	// errs are returned by successive calls and the last one repeats; nil succeeds.
	errs []error
	// short is the number of leading calls that return one image too few.
	short int

	mu      sync.Mutex
	calls   int
	prompts []string
	// imagePrompts records the per-image prompts of each call.
	imagePrompts [][]string
}

func newFakeProvider(name string, kind domain.ProviderKind) *fakeProvider {
	return &fakeProvider{name: name, kind: kind, available: true, unitCost: 0.04}
}

func (p *fakeProvider) Name() string              { return p.name }
func (p *fakeProvider) Kind() domain.ProviderKind { return p.kind }
func (p *fakeProvider) SupportedModels() []string { return []string{p.name + "-model"} }

func (p *fakeProvider) Defaults() domain.GenerationOptions {
	return domain.GenerationOptions{
		Model:          p.name + "-model",
		Width:          1024,
		Height:         1024,
		InferenceSteps: 30,
		GuidanceScale:  7.5,
		Quality:        domain.QualityStandard,
	}
}

func (p *fakeProvider) Tune(opts domain.GenerationOptions, _ domain.PromptTemplate) domain.GenerationOptions {
	return opts
}

func (p *fakeProvider) EstimateCost(opts domain.GenerationOptions) float64 {
	return p.unitCost * float64(max(opts.NumOutputs, 1))
}

func (p *fakeProvider) IsAvailable(context.Context) bool { return p.available }

func (p *fakeProvider) Generate(
	_ context.Context,
	prompt string,
	opts domain.GenerationOptions,
) (*domain.GenerationResult, error) {
	p.mu.Lock()
	call := p.calls
	p.calls++
	p.prompts = append(p.prompts, prompt)
	p.imagePrompts = append(p.imagePrompts, opts.Prompts)
	p.mu.Unlock()

	if call < len(p.errs) && p.errs[call] != nil {
		return nil, p.errs[call]
	}
	if len(p.errs) > 0 && call >= len(p.errs) && p.errs[len(p.errs)-1] != nil {
		return nil, p.errs[len(p.errs)-1]
	}

	n := opts.NumOutputs
	if call < p.short {
		n--
	}
	images := make([]string, n)
	for i := range images {
		images[i] = fmt.Sprintf("https://%s.example/img-%d-%d.png", p.name, call, i)
	}
	return &domain.GenerationResult{
		Images:    images,
		Cost:      p.EstimateCost(opts),
		ModelUsed: opts.Model,
	}, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// fakeRouter mirrors the routing contract: the primary first when available,
// otherwise the fallback alone.
type fakeRouter struct {
	primary  domain.Provider
	fallback domain.Provider
}

func (r *fakeRouter) Plan(_ context.Context, req *domain.RouteRequest) (*domain.RoutePlan, error) {
	if req.Provider != "" && req.Provider != r.primary.Name() {
		return nil, domain.NewGenerationError(domain.CodeProviderUnavailable, "", domain.ErrProviderNotFound)
	}
	return &domain.RoutePlan{Primary: r.primary, Fallback: r.fallback}, nil
}

func (r *fakeRouter) Select(ctx context.Context, plan *domain.RoutePlan) ([]domain.Provider, error) {
	var chain []domain.Provider
	if plan.Primary.IsAvailable(ctx) {
		chain = append(chain, plan.Primary)
	}
	if plan.Fallback != nil && plan.Fallback.IsAvailable(ctx) {
		chain = append(chain, plan.Fallback)
	}
	if len(chain) == 0 {
		return nil, domain.NewGenerationError(domain.CodeProviderUnavailable, "", nil)
	}
	return chain, nil
}

type fakeStore struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (s *fakeStore) Persist(
	_ context.Context,
	_ string,
	designID string,
	kind domain.ImageKind,
	index int,
) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return fmt.Sprintf("https://cdn.example/designs/%s/%s_%d", designID, kind, index), nil
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
	hook   func()
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return ctx.Err()
}

type orchestratorFixture struct {
	primary   *fakeProvider
	fallback  *fakeProvider
	ledger    *fakeLedger
	guard     *domain.CostGuardService
	publisher *fakePublisher
	sleeper   *sleepRecorder
	store     *fakeStore
}

func newOrchestratorFixture() *orchestratorFixture {
	ledger := &fakeLedger{}
	return &orchestratorFixture{
		primary:   newFakeProvider("replicate", domain.ProviderKindReplicate),
		fallback:  newFakeProvider("openai", domain.ProviderKindOpenAI),
		ledger:    ledger,
		guard:     newTestGuard(ledger),
		publisher: &fakePublisher{},
		sleeper:   &sleepRecorder{},
	}
}

func (f *orchestratorFixture) build(cfg *domain.OrchestratorConfig) *domain.Orchestrator {
	var store domain.ImageStore
	if f.store != nil {
		store = f.store
	}
	var fallback domain.Provider
	if f.fallback != nil {
		fallback = f.fallback
	}
	return domain.NewOrchestrator(
		&fakeRouter{primary: f.primary, fallback: fallback},
		f.guard,
		domain.NewPromptBuilder(),
		domain.NewErrorClassifier(),
		store,
		f.publisher,
		cfg,
		domain.WithSleeper(f.sleeper.sleep),
		domain.WithClock(fixedClock(testNow)),
	)
}

func validRequest() *domain.GenerationRequest {
	return &domain.GenerationRequest{
		UserID:   "user-1",
		DesignID: "design-1",
		Template: domain.PromptTemplate{
			RoomType:   domain.RoomLivingRoom,
			Style:      "modern",
			Size:       domain.SizeMedium,
			BudgetTier: domain.BudgetTierMidRange,
		},
		VariationCount: 3,
	}
}

func retryableErr() error {
	return &domain.ProviderError{Provider: "test", StatusCode: 503, Message: "service unavailable"}
}

func TestOrchestrator_Generate_Success(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture()
	f.store = &fakeStore{}
	orch := f.build(nil)

	result, err := orch.Generate(ctx, validRequest())

	require.NoError(t, err)
	require.True(t, result.Success)
	require.Nil(t, result.Error)
	require.Len(t, result.Images, 3)
	require.Equal(t, "https://cdn.example/designs/design-1/output_0", result.Images[0])
	require.Equal(t, "replicate", result.Provider)
	require.Equal(t, "replicate-model", result.ModelUsed)
	require.Equal(t, 3, result.Parameters.NumOutputs)
	require.InDelta(t, 0.12, result.Cost, 1e-9)

	require.NotNil(t, result.Metadata)
	require.Equal(t, "design-1", result.Metadata.DesignID)
	require.Equal(t, "user-1", result.Metadata.UserID)
	require.Equal(t, 1, result.Metadata.Attempts)
	require.False(t, result.Metadata.FallbackUsed)
	require.Len(t, result.Metadata.VariationPrompts, 3)
	require.Contains(t, result.Metadata.OriginalPrompt, "living room")
	require.Contains(t, result.Metadata.OptimizedPrompt, "masterpiece")

	require.Equal(t, 1, f.ledger.count())
	require.InDelta(t, 0.12, f.ledger.entries[0].Cost, 1e-9)
	require.Equal(t, "replicate", f.ledger.entries[0].Provider)
	require.Equal(t, 3, f.ledger.entries[0].Images)
	require.Equal(t, 1, f.publisher.count(domain.EventSucceeded))
}

func TestOrchestrator_Generate_Admission(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects before building prompts or dispatching", func(t *testing.T) {
		f := newOrchestratorFixture()
		f.ledger.entries = []domain.CostEntry{{UserID: "user-1", Cost: 9.50, CreatedAt: testNow}}
		f.primary.unitCost = 0.20
		orch := f.build(nil)

		result, err := orch.Generate(ctx, validRequest())

		require.Error(t, err)
		require.False(t, result.Success)
		require.Equal(t, domain.CodeCostLimitExceeded, result.Error.Code)
		require.False(t, result.Error.Retryable)
		require.Zero(t, f.primary.callCount())
		require.Zero(t, f.fallback.callCount())
		require.Equal(t, 1, f.ledger.count())
		require.Equal(t, 1, f.publisher.count(domain.EventAdmissionRejected))
	})

	t.Run("admits when the estimate fits", func(t *testing.T) {
		f := newOrchestratorFixture()
		f.ledger.entries = []domain.CostEntry{{UserID: "user-1", Cost: 9.50, CreatedAt: testNow}}
		f.primary.unitCost = 0.10
		f.fallback.unitCost = 0.10
		orch := f.build(nil)

		result, err := orch.Generate(ctx, validRequest())

		require.NoError(t, err)
		require.True(t, result.Success)
		require.Equal(t, 2, f.ledger.count())
	})

	t.Run("failed requests release their reservation", func(t *testing.T) {
		f := newOrchestratorFixture()
		f.primary.unitCost = 2
		f.fallback.unitCost = 2
		orch := f.build(nil)

		bad := validRequest()
		bad.Template.Style = ""
		_, err := orch.Generate(ctx, bad)
		genErr, ok := domain.AsGenerationError(err)
		require.True(t, ok)
		require.Equal(t, domain.CodeInvalidPrompt, genErr.Code)

		result, err := orch.Generate(ctx, validRequest())
		require.NoError(t, err)
		require.True(t, result.Success)
	})
}

func TestOrchestrator_Generate_RetryAndFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("always failing providers are bounded by twice the attempt cap", func(t *testing.T) {
		f := newOrchestratorFixture()
		f.primary.errs = []error{retryableErr()}
		f.fallback.errs = []error{retryableErr()}
		orch := f.build(&domain.OrchestratorConfig{MaxAttempts: 3, BackoffBase: time.Second})

		result, err := orch.Generate(ctx, validRequest())

		require.Error(t, err)
		require.False(t, result.Success)
		require.Equal(t, 3, f.primary.callCount())
		require.Equal(t, 3, f.fallback.callCount())
		require.True(t, result.Error.Exhausted)
		require.False(t, result.Error.Retryable)
		require.Equal(t, domain.CodeGenerationFailed, result.Error.Code)
		require.Zero(t, f.ledger.count())
		require.Equal(t, []time.Duration{
			time.Second, 2 * time.Second,
			time.Second, 2 * time.Second,
		}, f.sleeper.delays)
		require.Equal(t, 1, f.publisher.count(domain.EventFallback))
		require.Equal(t, 6, f.publisher.count(domain.EventAttemptFailed))
	})

	t.Run("unavailable primary dispatches to the fallback first", func(t *testing.T) {
		f := newOrchestratorFixture()
		f.primary.available = false
		orch := f.build(nil)

		result, err := orch.Generate(ctx, validRequest())

		require.NoError(t, err)
		require.Zero(t, f.primary.callCount())
		require.Equal(t, 1, f.fallback.callCount())
		require.Equal(t, "openai", result.Provider)
		require.True(t, result.Metadata.FallbackUsed)
		require.Contains(t, f.fallback.prompts[0], "Create a realistic photograph")
	})

	t.Run("no available provider is a non-retryable failure", func(t *testing.T) {
		f := newOrchestratorFixture()
		f.primary.available = false
		f.fallback.available = false
		orch := f.build(nil)

		result, err := orch.Generate(ctx, validRequest())

		require.Error(t, err)
		require.Equal(t, domain.CodeProviderUnavailable, result.Error.Code)
		require.Zero(t, f.ledger.count())
	})

	t.Run("retries the same provider until it succeeds", func(t *testing.T) {
		f := newOrchestratorFixture()
		f.primary.errs = []error{retryableErr(), retryableErr(), nil}
		orch := f.build(nil)

		result, err := orch.Generate(ctx, validRequest())

		require.NoError(t, err)
		require.Equal(t, 3, f.primary.callCount())
		require.Zero(t, f.fallback.callCount())
		require.Equal(t, 3, result.Metadata.Attempts)
		require.Equal(t, 1, f.ledger.count())
	})

	t.Run("non-retryable errors stop without fallback", func(t *testing.T) {
		f := newOrchestratorFixture()
		f.primary.errs = []error{&domain.ProviderError{Provider: "replicate", StatusCode: 401, Message: "bad token r8_secretsecretsecret"}}
		orch := f.build(nil)

		result, err := orch.Generate(ctx, validRequest())

		require.Error(t, err)
		require.Equal(t, domain.CodeAuthInvalid, result.Error.Code)
		require.False(t, result.Error.Retryable)
		require.NotContains(t, result.Error.Message, "r8_")
		require.Equal(t, 1, f.primary.callCount())
		require.Zero(t, f.fallback.callCount())
		require.Empty(t, f.sleeper.delays)
	})

	t.Run("short output is retried", func(t *testing.T) {
		f := newOrchestratorFixture()
		f.primary.short = 1
		orch := f.build(nil)

		result, err := orch.Generate(ctx, validRequest())

		require.NoError(t, err)
		require.Len(t, result.Images, 3)
		require.Equal(t, 2, f.primary.callCount())
	})

	t.Run("per-provider attempt caps", func(t *testing.T) {
		f := newOrchestratorFixture()
		f.primary.errs = []error{retryableErr()}
		orch := f.build(&domain.OrchestratorConfig{
			MaxAttempts:      3,
			ProviderAttempts: map[string]int{"replicate": 1},
		})

		_, err := orch.Generate(ctx, validRequest())

		require.NoError(t, err)
		require.Equal(t, 1, f.primary.callCount())
		require.Equal(t, 1, f.fallback.callCount())
	})

	t.Run("no fallback configured exhausts the primary only", func(t *testing.T) {
		f := newOrchestratorFixture()
		f.fallback = nil
		f.primary.errs = []error{retryableErr()}
		orch := f.build(nil)

		result, err := orch.Generate(ctx, validRequest())

		require.Error(t, err)
		require.True(t, result.Error.Exhausted)
		require.Equal(t, 3, f.primary.callCount())
	})
}

func TestOrchestrator_Generate_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newOrchestratorFixture()
	f.primary.errs = []error{retryableErr()}
	f.sleeper.hook = cancel
	orch := f.build(nil)

	result, err := orch.Generate(ctx, validRequest())

	require.Error(t, err)
	require.False(t, result.Success)
	require.False(t, result.Error.Retryable)
	require.Equal(t, 1, f.primary.callCount())
	require.Zero(t, f.fallback.callCount())
	require.Zero(t, f.ledger.count())
}

func TestOrchestrator_Generate_Storage(t *testing.T) {
	ctx := context.Background()

	t.Run("storage failure records no cost", func(t *testing.T) {
		f := newOrchestratorFixture()
		f.store = &fakeStore{err: errors.New("bucket unreachable")}
		orch := f.build(nil)

		result, err := orch.Generate(ctx, validRequest())

		require.Error(t, err)
		require.Equal(t, domain.CodeStorageFailed, result.Error.Code)
		require.True(t, result.Error.Exhausted)
		require.Equal(t, 3, f.store.calls)
		require.Zero(t, f.ledger.count())
	})

	t.Run("regenerations use the regenerated path", func(t *testing.T) {
		f := newOrchestratorFixture()
		f.store = &fakeStore{}
		orch := f.build(nil)

		req := validRequest()
		req.Regenerate = true
		result, err := orch.Generate(ctx, req)

		require.NoError(t, err)
		require.Equal(t, "https://cdn.example/designs/design-1/regenerated_2", result.Images[2])
	})
}

func TestOrchestrator_Generate_ConcurrentSameUser(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture()
	f.primary.unitCost = 1
	f.fallback.unitCost = 1
	orch := f.build(nil)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for range 15 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := validRequest()
			req.VariationCount = 1
			result, err := orch.Generate(ctx, req)
			if err == nil && result.Success {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 10, successes)
	summary, err := f.guard.GetSummary(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, successes, summary.GenerationCount)
	require.LessOrEqual(t, summary.Today, 10.0+1e-9)
}

func TestOrchestrator_Generate_ImagePrompts(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture()
	orch := f.build(nil)

	req := validRequest()
	req.VariationIndex = 1
	result, err := orch.Generate(ctx, req)

	require.NoError(t, err)
	require.Len(t, result.Metadata.VariationPrompts, 3)
	require.Len(t, f.primary.imagePrompts, 1)

	prompts := f.primary.imagePrompts[0]
	require.Len(t, prompts, 3)
	require.Equal(t, f.primary.prompts[0], prompts[0])
	require.Contains(t, prompts[0], "Variation:")
	require.Contains(t, prompts[1], "Variation:")
	require.NotContains(t, prompts[2], "Variation:")
	require.NotEqual(t, prompts[0], prompts[1])
	for _, prompt := range prompts {
		require.Contains(t, prompt, "masterpiece")
	}
}

func TestOrchestrator_Generate_Validation(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture()
	orch := f.build(nil)

	t.Run("nil request", func(t *testing.T) {
		_, err := orch.Generate(ctx, nil)
		require.Error(t, err)
	})

	t.Run("too many variations", func(t *testing.T) {
		req := validRequest()
		req.VariationCount = 6
		result, err := orch.Generate(ctx, req)
		require.Error(t, err)
		require.Equal(t, domain.CodeInvalidPrompt, result.Error.Code)
		require.Zero(t, f.primary.callCount())
	})

	t.Run("design ids that are not a single path segment", func(t *testing.T) {
		for _, designID := range []string{"..", ".", "a/b", `a\b`, "../escape"} {
			req := validRequest()
			req.DesignID = designID
			result, err := orch.Generate(ctx, req)
			require.Error(t, err, designID)
			require.Equal(t, domain.CodeInvalidPrompt, result.Error.Code, designID)
		}
		require.Zero(t, f.primary.callCount())
		require.Zero(t, f.ledger.count())
	})

	t.Run("unknown explicit provider", func(t *testing.T) {
		req := validRequest()
		req.Provider = "midjourney"
		result, err := orch.Generate(ctx, req)
		require.Error(t, err)
		require.Equal(t, domain.CodeProviderUnavailable, result.Error.Code)
	})
}
