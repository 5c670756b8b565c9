package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/davidbz/roomgen/internal/domain"
	"github.com/davidbz/roomgen/internal/observability"
)

const maxRequestBytes = 1 << 20

// Generator runs one generation request.
type Generator interface {
	Generate(ctx context.Context, req *domain.GenerationRequest) (*domain.GenerationResult, error)
}

// CostManager exposes per-user spend and the global limits.
type CostManager interface {
	GetSummary(ctx context.Context, userID string) (*domain.CostSummary, error)
	ResetUserCost(ctx context.Context, userID string) error
	Limits() domain.CostLimits
	UpdateLimits(daily, monthly *float64) (domain.CostLimits, error)
}

// Handler handles HTTP requests.
type Handler struct {
	generator Generator
	costs     CostManager
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(generator Generator, costs CostManager) *Handler {
	return &Handler{
		generator: generator,
		costs:     costs,
	}
}

// LimitsRequest updates one or both spend limits.
type LimitsRequest struct {
	DailyLimit   *float64 `json:"daily_limit,omitempty"`
	MonthlyLimit *float64 `json:"monthly_limit,omitempty"`
}

// LimitsResponse reports the limits in effect.
type LimitsResponse struct {
	DailyLimit   float64 `json:"daily_limit"`
	MonthlyLimit float64 `json:"monthly_limit"`
}

// HandleGenerate processes design generation requests.
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.GenerationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(ctx, w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	ctx = observability.WithUserID(ctx, req.UserID)
	ctx = observability.WithDesignID(ctx, req.DesignID)

	logger := observability.FromContext(ctx)
	logger.Info("generation request received",
		observability.String("room_type", string(req.Template.RoomType)),
		observability.String("budget_tier", string(req.Template.BudgetTier)),
		observability.String("provider", req.Provider),
	)

	result, err := h.generator.Generate(ctx, &req)
	if err != nil && result == nil {
		genErr, ok := domain.AsGenerationError(err)
		if !ok {
			genErr = domain.NewGenerationError(domain.CodeUnknown, "", err)
		}
		result = &domain.GenerationResult{Error: genErr}
	}

	writeJSON(ctx, w, statusFor(result), result)
}

// HandleGetCosts returns the user's cost summary.
func (h *Handler) HandleGetCosts(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	ctx := observability.WithUserID(r.Context(), userID)

	summary, err := h.costs.GetSummary(ctx, userID)
	if err != nil {
		observability.FromContext(ctx).Error("failed to load cost summary", observability.Error(err))
		writeError(ctx, w, http.StatusInternalServerError, "failed to load cost summary")
		return
	}

	writeJSON(ctx, w, http.StatusOK, summary)
}

// HandleResetCosts clears the user's recorded spend.
func (h *Handler) HandleResetCosts(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	ctx := observability.WithUserID(r.Context(), userID)

	if err := h.costs.ResetUserCost(ctx, userID); err != nil {
		observability.FromContext(ctx).Error("failed to reset costs", observability.Error(err))
		writeError(ctx, w, http.StatusInternalServerError, "failed to reset costs")
		return
	}

	observability.FromContext(ctx).Info("user costs reset")
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetLimits returns the limits in effect.
func (h *Handler) HandleGetLimits(w http.ResponseWriter, r *http.Request) {
	limits := h.costs.Limits()
	writeJSON(r.Context(), w, http.StatusOK, LimitsResponse{
		DailyLimit:   limits.Daily,
		MonthlyLimit: limits.Monthly,
	})
}

// HandleSetLimits updates the daily and/or monthly limit.
func (h *Handler) HandleSetLimits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LimitsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(ctx, w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.DailyLimit == nil && req.MonthlyLimit == nil {
		writeError(ctx, w, http.StatusBadRequest, "daily_limit or monthly_limit is required")
		return
	}

	limits, err := h.costs.UpdateLimits(req.DailyLimit, req.MonthlyLimit)
	if err != nil {
		writeError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	observability.FromContext(ctx).Info("cost limits updated",
		observability.Float64("daily_limit", limits.Daily),
		observability.Float64("monthly_limit", limits.Monthly),
	)

	writeJSON(ctx, w, http.StatusOK, LimitsResponse{
		DailyLimit:   limits.Daily,
		MonthlyLimit: limits.Monthly,
	})
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// statusFor maps a generation outcome to an HTTP status.
func statusFor(result *domain.GenerationResult) int {
	if result.Error == nil {
		return http.StatusOK
	}

	switch result.Error.Code {
	case domain.CodeCostLimitExceeded:
		return http.StatusPaymentRequired
	case domain.CodeProviderUnavailable:
		return http.StatusServiceUnavailable
	case domain.CodeInvalidPrompt:
		return http.StatusBadRequest
	case domain.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Already written status, can't change it, just log.
		observability.FromContext(ctx).Error("failed to encode response", observability.Error(err))
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	writeJSON(ctx, w, status, map[string]string{"error": message})
}
