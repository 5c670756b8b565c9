package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorCode is the closed failure taxonomy returned to callers.
type ErrorCode string

// Failure taxonomy.
const (
	CodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	CodeAuthInvalid         ErrorCode = "AUTH_INVALID"
	CodeRateLimited         ErrorCode = "RATE_LIMITED"
	CodeCostLimitExceeded   ErrorCode = "COST_LIMIT_EXCEEDED"
	CodeInvalidPrompt       ErrorCode = "INVALID_PROMPT"
	CodeGenerationFailed    ErrorCode = "GENERATION_FAILED"
	CodeStorageFailed       ErrorCode = "STORAGE_FAILED"
	CodeUnknown             ErrorCode = "UNKNOWN"
)

//nolint:gochecknoglobals // static lookup tables
var (
	retryableCodes = map[ErrorCode]bool{
		CodeProviderUnavailable: true,
		CodeRateLimited:         true,
		CodeGenerationFailed:    true,
		CodeStorageFailed:       true,
		CodeUnknown:             true,
		CodeAuthInvalid:         false,
		CodeCostLimitExceeded:   false,
		CodeInvalidPrompt:       false,
	}

	safeMessages = map[ErrorCode]string{
		CodeProviderUnavailable: "The image generation service is temporarily unavailable. Please try again shortly.",
		CodeAuthInvalid:         "The image generation service rejected our credentials. Please contact support.",
		CodeRateLimited:         "Too many generation requests right now. Please wait a moment and try again.",
		CodeCostLimitExceeded:   "You have reached your generation spending limit.",
		CodeInvalidPrompt:       "The design request could not be turned into a valid prompt.",
		CodeGenerationFailed:    "The design could not be generated. Please try again.",
		CodeStorageFailed:       "The generated design could not be saved. Please try again.",
		CodeUnknown:             "An unexpected error occurred while generating the design.",
	}
)

// Retryable reports whether failures with this code may be retried.
func (c ErrorCode) Retryable() bool {
	return retryableCodes[c]
}

// SafeMessage returns the default user-facing message for the code.
func (c ErrorCode) SafeMessage() string {
	if msg, ok := safeMessages[c]; ok {
		return msg
	}
	return safeMessages[CodeUnknown]
}

// GenerationError is a classified failure. Message is always safe to show to a
// user; Cause keeps the raw error for internal logging only.
type GenerationError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Provider  string
	// Exhausted marks a failure returned after all attempts and the fallback were used.
	Exhausted bool
	Cause     error
}

// NewGenerationError builds an error with the code's retryability. An empty
// message falls back to the code's safe message.
func NewGenerationError(code ErrorCode, message string, cause error) *GenerationError {
	if message == "" {
		message = code.SafeMessage()
	}
	return &GenerationError{
		Code:      code,
		Message:   message,
		Retryable: code.Retryable(),
		Cause:     cause,
	}
}

func (e *GenerationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// MarshalJSON exposes only the machine-readable code and the safe message.
func (e *GenerationError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Code      ErrorCode `json:"code"`
		Message   string    `json:"message"`
		Retryable bool      `json:"retryable"`
		Exhausted bool      `json:"exhausted,omitempty"`
	}{
		Code:      e.Code,
		Message:   e.Message,
		Retryable: e.Retryable,
		Exhausted: e.Exhausted,
	})
}

// AsGenerationError unwraps err into a *GenerationError when possible.
func AsGenerationError(err error) (*GenerationError, bool) {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr, true
	}
	return nil, false
}

// ProviderError is the common shape adapters use to report backend failures.
type ProviderError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.StatusCode > 0 && e.Code != "":
		return fmt.Sprintf("%s: status %d (%s): %s", e.Provider, e.StatusCode, e.Code, e.Message)
	case e.StatusCode > 0:
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Sentinel errors shared by adapters and stores.
var (
	// ErrCacheMiss indicates no cached entry was found.
	ErrCacheMiss = errors.New("cache miss")

	// ErrStorage wraps failures from the image store.
	ErrStorage = errors.New("image storage failed")

	// ErrIncompleteOutput means the backend returned fewer images than requested.
	ErrIncompleteOutput = errors.New("provider returned fewer images than requested")

	// ErrProviderNotFound means no provider is registered under the requested name.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrPricingNotFound means no price table is registered for a model.
	ErrPricingNotFound = errors.New("pricing not found")
)
