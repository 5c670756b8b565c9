package domain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/davidbz/roomgen/internal/observability"
)

// Default spending limits and summary cache lifetime.
const (
	DefaultDailyLimit   = 10.0
	DefaultMonthlyLimit = 200.0
	DefaultSummaryTTL   = 5 * time.Minute
)

// costEpsilon absorbs float drift so that spending exactly up to a limit is allowed.
const costEpsilon = 1e-9

// LimitKind names the spending window that rejected an admission.
type LimitKind string

// Spending windows.
const (
	LimitDaily   LimitKind = "daily"
	LimitMonthly LimitKind = "monthly"
)

// CostLimits are the configured spending limits in USD.
type CostLimits struct {
	Daily   float64 `json:"daily_limit"`
	Monthly float64 `json:"monthly_limit"`
}

// CostGuardConfig configures the cost guard.
type CostGuardConfig struct {
	DailyLimit   float64
	MonthlyLimit float64
	CacheTTL     time.Duration
}

// AdmissionDecision is the outcome of an admission check.
type AdmissionDecision struct {
	Allowed bool
	Limit   LimitKind
	Reason  string
	// Projected is the window spend the request would reach if admitted.
	Projected float64
}

// Reservation holds estimated spend between admission and the final record.
type Reservation struct {
	ID     string
	UserID string
	Amount float64
}

// CostGuardOption customizes a CostGuardService.
type CostGuardOption func(*CostGuardService)

// WithCostClock overrides the clock used for the day and month windows.
func WithCostClock(now func() time.Time) CostGuardOption {
	return func(g *CostGuardService) {
		g.now = now
	}
}

// CostGuardService tracks per-user spend against daily and monthly limits.
// Every mutation for a user runs under that user's lock, and reservations made
// at admission count as pending spend until they are committed or released.
type CostGuardService struct {
	ledger CostLedger
	cache  SummaryCache
	ttl    time.Duration
	now    func() time.Time
	locks  *keyedMutex

	limitsMu sync.RWMutex
	limits   CostLimits

	pendingMu sync.Mutex
	pending   map[string]map[string]float64
}

// NewCostGuardService creates a cost guard over the given ledger and cache.
func NewCostGuardService(
	ledger CostLedger,
	cache SummaryCache,
	cfg *CostGuardConfig,
	opts ...CostGuardOption,
) *CostGuardService {
	limits := CostLimits{Daily: DefaultDailyLimit, Monthly: DefaultMonthlyLimit}
	ttl := DefaultSummaryTTL
	if cfg != nil {
		if cfg.DailyLimit > 0 {
			limits.Daily = cfg.DailyLimit
		}
		if cfg.MonthlyLimit > 0 {
			limits.Monthly = cfg.MonthlyLimit
		}
		if cfg.CacheTTL > 0 {
			ttl = cfg.CacheTTL
		}
	}

	g := &CostGuardService{
		ledger:  ledger,
		cache:   cache,
		ttl:     ttl,
		now:     time.Now,
		locks:   newKeyedMutex(),
		limits:  limits,
		pending: make(map[string]map[string]float64),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Limits returns the current spending limits.
func (g *CostGuardService) Limits() CostLimits {
	g.limitsMu.RLock()
	defer g.limitsMu.RUnlock()
	return g.limits
}

// SetDailyLimit changes the daily limit for every user.
func (g *CostGuardService) SetDailyLimit(value float64) error {
	_, err := g.UpdateLimits(&value, nil)
	return err
}

// SetMonthlyLimit changes the monthly limit for every user.
func (g *CostGuardService) SetMonthlyLimit(value float64) error {
	_, err := g.UpdateLimits(nil, &value)
	return err
}

// UpdateLimits applies the non-nil limits together. Nothing changes unless
// every supplied value is valid.
func (g *CostGuardService) UpdateLimits(daily, monthly *float64) (CostLimits, error) {
	if daily != nil {
		if err := validateLimit(*daily); err != nil {
			return g.Limits(), fmt.Errorf("daily limit: %w", err)
		}
	}
	if monthly != nil {
		if err := validateLimit(*monthly); err != nil {
			return g.Limits(), fmt.Errorf("monthly limit: %w", err)
		}
	}

	g.limitsMu.Lock()
	defer g.limitsMu.Unlock()
	if daily != nil {
		g.limits.Daily = *daily
	}
	if monthly != nil {
		g.limits.Monthly = *monthly
	}
	return g.limits, nil
}

func validateLimit(value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return fmt.Errorf("invalid value %v: must be a finite positive amount", value)
	}
	return nil
}

// GetSummary returns the user's spend, served from the cache when fresh.
func (g *CostGuardService) GetSummary(ctx context.Context, userID string) (*CostSummary, error) {
	if userID == "" {
		return nil, errors.New("user ID cannot be empty")
	}

	unlock := g.locks.Lock(userID)
	defer unlock()

	return g.summaryLocked(ctx, userID)
}

// summaryLocked serves or rebuilds the summary. The caller holds the user's
// lock, so no record can invalidate the cache between the ledger read and Set.
func (g *CostGuardService) summaryLocked(ctx context.Context, userID string) (*CostSummary, error) {
	summary, err := g.cache.Get(ctx, userID)
	if err == nil {
		return g.withLimits(summary), nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		observability.FromContext(ctx).Warn("cost summary cache read failed",
			observability.String("user_id", userID),
			observability.Error(err),
		)
	}

	summary, err = g.rebuild(ctx, userID)
	if err != nil {
		return nil, err
	}

	if setErr := g.cache.Set(ctx, userID, summary, g.ttl); setErr != nil {
		observability.FromContext(ctx).Warn("cost summary cache write failed",
			observability.String("user_id", userID),
			observability.Error(setErr),
		)
	}

	return g.withLimits(summary), nil
}

// GetUserCost is the administrative view of a user's spend.
func (g *CostGuardService) GetUserCost(ctx context.Context, userID string) (*CostSummary, error) {
	return g.GetSummary(ctx, userID)
}

// CheckAdmission reports whether a request estimated at estimate fits under both
// limits, counting pending reservations. It reserves nothing.
func (g *CostGuardService) CheckAdmission(ctx context.Context, userID string, estimate float64) (*AdmissionDecision, error) {
	if userID == "" {
		return nil, errors.New("user ID cannot be empty")
	}

	unlock := g.locks.Lock(userID)
	defer unlock()

	summary, err := g.summaryLocked(ctx, userID)
	if err != nil {
		return nil, err
	}
	return g.decide(summary, g.pendingFor(userID), estimate), nil
}

// Reserve admits a request and holds estimate against the user's limits until
// Commit or Release. A rejection is a CostLimitExceeded GenerationError.
func (g *CostGuardService) Reserve(ctx context.Context, userID string, estimate float64) (*Reservation, error) {
	if estimate < 0 || math.IsNaN(estimate) {
		return nil, fmt.Errorf("invalid cost estimate %v", estimate)
	}

	if userID == "" {
		return nil, errors.New("user ID cannot be empty")
	}

	unlock := g.locks.Lock(userID)
	defer unlock()

	summary, err := g.summaryLocked(ctx, userID)
	if err != nil {
		return nil, err
	}

	decision := g.decide(summary, g.pendingFor(userID), estimate)
	if !decision.Allowed {
		return nil, NewGenerationError(CodeCostLimitExceeded, decision.Reason, nil)
	}

	reservation := &Reservation{
		ID:     uuid.NewString(),
		UserID: userID,
		Amount: estimate,
	}
	g.addPending(reservation)

	observability.FromContext(ctx).Debug("cost reserved",
		observability.String("user_id", userID),
		observability.String("reservation_id", reservation.ID),
		observability.Float64("amount", estimate),
		observability.Float64("today", summary.Today),
		observability.Float64("month", summary.Month),
	)

	return reservation, nil
}

// Release drops a reservation without recording spend.
func (g *CostGuardService) Release(ctx context.Context, reservation *Reservation) {
	if reservation == nil {
		return
	}
	unlock := g.locks.Lock(reservation.UserID)
	defer unlock()

	g.removePending(reservation)
	observability.FromContext(ctx).Debug("cost reservation released",
		observability.String("user_id", reservation.UserID),
		observability.String("reservation_id", reservation.ID),
	)
}

// Commit records the realized cost of a reserved request and drops the
// reservation. The actual cost is recorded even when it exceeds the reservation.
func (g *CostGuardService) Commit(ctx context.Context, reservation *Reservation, entry CostEntry) error {
	if reservation == nil {
		return errors.New("reservation cannot be nil")
	}
	entry.UserID = reservation.UserID

	unlock := g.locks.Lock(reservation.UserID)
	defer unlock()
	defer g.removePending(reservation)

	return g.record(ctx, entry)
}

// RecordCost persists the realized cost of a completed generation.
func (g *CostGuardService) RecordCost(ctx context.Context, entry CostEntry) error {
	if entry.UserID == "" {
		return errors.New("user ID cannot be empty")
	}

	unlock := g.locks.Lock(entry.UserID)
	defer unlock()

	return g.record(ctx, entry)
}

// ResetUserCost removes every recorded entry for the user.
func (g *CostGuardService) ResetUserCost(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("user ID cannot be empty")
	}

	unlock := g.locks.Lock(userID)
	defer unlock()

	if err := g.ledger.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to reset costs for user %s: %w", userID, err)
	}
	g.invalidate(ctx, userID)

	observability.FromContext(ctx).Info("user costs reset", observability.String("user_id", userID))
	return nil
}

func (g *CostGuardService) record(ctx context.Context, entry CostEntry) error {
	if entry.Cost < 0 || math.IsNaN(entry.Cost) {
		return fmt.Errorf("invalid cost %v", entry.Cost)
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = g.now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	entry.Cost = RoundCost(entry.Cost)

	if err := g.ledger.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to record cost for user %s: %w", entry.UserID, err)
	}
	g.invalidate(ctx, entry.UserID)

	observability.FromContext(ctx).Info("cost recorded",
		observability.String("user_id", entry.UserID),
		observability.String("design_id", entry.DesignID),
		observability.String("provider", entry.Provider),
		observability.Float64("cost", entry.Cost),
	)
	return nil
}

func (g *CostGuardService) invalidate(ctx context.Context, userID string) {
	if err := g.cache.Delete(ctx, userID); err != nil {
		observability.FromContext(ctx).Warn("cost summary cache invalidation failed",
			observability.String("user_id", userID),
			observability.Error(err),
		)
	}
}

// rebuild derives the summary from the ledger using UTC day and month windows.
func (g *CostGuardService) rebuild(ctx context.Context, userID string) (*CostSummary, error) {
	entries, err := g.ledger.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load costs for user %s: %w", userID, err)
	}

	now := g.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	summary := &CostSummary{UserID: userID, ComputedAt: now}
	for _, entry := range entries {
		created := entry.CreatedAt.UTC()
		summary.Total += entry.Cost
		summary.GenerationCount++
		if !created.Before(dayStart) {
			summary.Today += entry.Cost
		}
		if !created.Before(monthStart) {
			summary.Month += entry.Cost
		}
		if summary.LastGeneration == nil || created.After(*summary.LastGeneration) {
			last := created
			summary.LastGeneration = &last
		}
	}

	summary.Total = RoundCost(summary.Total)
	summary.Today = RoundCost(summary.Today)
	summary.Month = RoundCost(summary.Month)

	return summary, nil
}

// withLimits returns a copy of summary with the current limits applied.
func (g *CostGuardService) withLimits(summary *CostSummary) *CostSummary {
	limits := g.Limits()
	out := *summary
	out.DailyLimit = limits.Daily
	out.MonthlyLimit = limits.Monthly
	out.RemainingDaily = RoundCost(math.Max(0, limits.Daily-summary.Today))
	out.CanGenerate = summary.Today < limits.Daily && summary.Month < limits.Monthly
	return &out
}

func (g *CostGuardService) decide(summary *CostSummary, pending, estimate float64) *AdmissionDecision {
	projectedDay := summary.Today + pending + estimate
	if projectedDay > summary.DailyLimit+costEpsilon {
		return &AdmissionDecision{
			Limit:     LimitDaily,
			Projected: RoundCost(projectedDay),
			Reason: fmt.Sprintf("daily spending limit of $%.2f would be exceeded (spent $%.2f today)",
				summary.DailyLimit, summary.Today+pending),
		}
	}

	projectedMonth := summary.Month + pending + estimate
	if projectedMonth > summary.MonthlyLimit+costEpsilon {
		return &AdmissionDecision{
			Limit:     LimitMonthly,
			Projected: RoundCost(projectedMonth),
			Reason: fmt.Sprintf("monthly spending limit of $%.2f would be exceeded (spent $%.2f this month)",
				summary.MonthlyLimit, summary.Month+pending),
		}
	}

	return &AdmissionDecision{Allowed: true, Projected: RoundCost(projectedDay)}
}

func (g *CostGuardService) pendingFor(userID string) float64 {
	g.pendingMu.Lock()
	defer g.pendingMu.Unlock()

	total := 0.0
	for _, amount := range g.pending[userID] {
		total += amount
	}
	return total
}

func (g *CostGuardService) addPending(reservation *Reservation) {
	g.pendingMu.Lock()
	defer g.pendingMu.Unlock()

	if g.pending[reservation.UserID] == nil {
		g.pending[reservation.UserID] = make(map[string]float64)
	}
	g.pending[reservation.UserID][reservation.ID] = reservation.Amount
}

func (g *CostGuardService) removePending(reservation *Reservation) {
	g.pendingMu.Lock()
	defer g.pendingMu.Unlock()

	delete(g.pending[reservation.UserID], reservation.ID)
	if len(g.pending[reservation.UserID]) == 0 {
		delete(g.pending, reservation.UserID)
	}
}

// keyedMutex serializes work per key and frees a key's lock when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock acquires the lock for key and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()

	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

var _ CostGuard = (*CostGuardService)(nil)
