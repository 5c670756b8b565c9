package domain

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/davidbz/roomgen/internal/observability"
)

// substringRule maps a lowercase message fragment to a code.
type substringRule struct {
	fragment string
	code     ErrorCode
}

//nolint:gochecknoglobals // static classification tables
var (
	providerCodeRules = map[string]ErrorCode{
		"invalid_api_key":            CodeAuthInvalid,
		"invalid_request_error":      CodeInvalidPrompt,
		"content_policy_violation":   CodeInvalidPrompt,
		"rate_limit_exceeded":        CodeRateLimited,
		"insufficient_quota":         CodeProviderUnavailable,
		"billing_hard_limit_reached": CodeProviderUnavailable,
		"server_error":               CodeGenerationFailed,
		"model_not_found":            CodeProviderUnavailable,
	}

	// Order matters: the first matching fragment wins.
	messageRules = []substringRule{
		{"rate limit", CodeRateLimited},
		{"too many requests", CodeRateLimited},
		{"unauthorized", CodeAuthInvalid},
		{"unauthenticated", CodeAuthInvalid},
		{"invalid api key", CodeAuthInvalid},
		{"incorrect api key", CodeAuthInvalid},
		{"authentication", CodeAuthInvalid},
		{"content policy", CodeInvalidPrompt},
		{"safety system", CodeInvalidPrompt},
		{"nsfw", CodeInvalidPrompt},
		{"invalid prompt", CodeInvalidPrompt},
		{"timeout", CodeProviderUnavailable},
		{"timed out", CodeProviderUnavailable},
		{"connection refused", CodeProviderUnavailable},
		{"connection reset", CodeProviderUnavailable},
		{"no such host", CodeProviderUnavailable},
		{"service unavailable", CodeProviderUnavailable},
		{"overloaded", CodeProviderUnavailable},
		{"prediction failed", CodeGenerationFailed},
		{"generation failed", CodeGenerationFailed},
	}
)

// ErrorClassifier maps raw backend failures into the error taxonomy. It keeps no
// state and is safe for concurrent use.
type ErrorClassifier struct{}

// NewErrorClassifier creates a new classifier.
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// Classify maps err into a GenerationError with a safe user-facing message. The
// raw error is kept as Cause and logged (redacted), never shown to callers.
func (c *ErrorClassifier) Classify(ctx context.Context, providerName string, err error) *GenerationError {
	if err == nil {
		return nil
	}

	if genErr, ok := AsGenerationError(err); ok {
		classified := *genErr
		if classified.Provider == "" {
			classified.Provider = providerName
		}
		return &classified
	}

	code := c.code(err)
	genErr := NewGenerationError(code, "", err)
	genErr.Provider = providerName

	observability.FromContext(ctx).Warn("provider error classified",
		observability.String("provider", providerName),
		observability.String("code", string(code)),
		observability.Bool("retryable", genErr.Retryable),
		observability.Error(err),
	)

	return genErr
}

func (c *ErrorClassifier) code(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrStorage):
		return CodeStorageFailed
	case errors.Is(err, ErrIncompleteOutput):
		return CodeGenerationFailed
	case errors.Is(err, ErrProviderNotFound):
		return CodeProviderUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return CodeProviderUnavailable
	case errors.Is(err, context.Canceled):
		return CodeUnknown
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		if code, ok := providerCodeRules[strings.ToLower(providerErr.Code)]; ok {
			return code
		}
		if providerErr.StatusCode > 0 {
			if code, ok := codeForStatus(providerErr.StatusCode); ok {
				return code
			}
		}
		if code, ok := codeForMessage(providerErr.Message); ok {
			return code
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return CodeProviderUnavailable
	}

	if code, ok := codeForMessage(err.Error()); ok {
		return code
	}

	return CodeUnknown
}

func codeForStatus(status int) (ErrorCode, bool) {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return CodeAuthInvalid, true
	case status == http.StatusTooManyRequests:
		return CodeRateLimited, true
	case status == http.StatusPaymentRequired:
		return CodeProviderUnavailable, true
	case status == http.StatusNotFound:
		return CodeProviderUnavailable, true
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return CodeInvalidPrompt, true
	case status == http.StatusRequestTimeout:
		return CodeProviderUnavailable, true
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable, status == http.StatusGatewayTimeout:
		return CodeProviderUnavailable, true
	case status >= http.StatusInternalServerError:
		return CodeGenerationFailed, true
	default:
		return "", false
	}
}

func codeForMessage(message string) (ErrorCode, bool) {
	lower := strings.ToLower(message)
	for _, rule := range messageRules {
		if strings.Contains(lower, rule.fragment) {
			return rule.code, true
		}
	}
	return "", false
}
