package provider

import (
	"errors"
	"fmt"
)

// ErrorCode classifies provider errors.
type ErrorCode string

const (
	// Service availability
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE" // backend temporarily unavailable
	ErrCodeModelNotFound      ErrorCode = "MODEL_NOT_FOUND"     // requested model not found

	// Network and request
	ErrCodeNetworkError    ErrorCode = "NETWORK_ERROR"    // connectivity issues
	ErrCodeInvalidRequest  ErrorCode = "INVALID_REQUEST"  // malformed request
	ErrCodeTimeout         ErrorCode = "TIMEOUT"          // request timeout
	ErrCodeInvalidResponse ErrorCode = "INVALID_RESPONSE" // response could not be decoded

	// Unknown
	ErrCodeUnknown ErrorCode = "UNKNOWN"
)

// ProviderError is a structured error for oracle operations.
type ProviderError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Provider  string    `json:"provider"`
	Retryable bool      `json:"retryable"`
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Code, e.Message)
}

// ShouldAutoRetry reports whether the error is transient and worth an
// automatic retry. Malformed responses and bad requests are never retried;
// re-sending the same payload cannot fix them.
func (e *ProviderError) ShouldAutoRetry() bool {
	switch e.Code {
	case ErrCodeServiceUnavailable, ErrCodeNetworkError, ErrCodeTimeout:
		return e.Retryable
	default:
		return false
	}
}

// NewProviderError creates a new ProviderError.
func NewProviderError(code ErrorCode, message, provider string, retryable bool) *ProviderError {
	return &ProviderError{
		Code:      code,
		Message:   message,
		Provider:  provider,
		Retryable: retryable,
	}
}

// IsRetryable checks if the error is a transient provider error that
// should be automatically retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.ShouldAutoRetry()
	}
	return false
}
