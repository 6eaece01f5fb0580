package llm

import (
	"errors"
	"fmt"
)

// ProviderError is the base error for failures reported by a provider
// backend. It is recoverable from the caller's point of view: callers decide
// whether to retry based on Retryable.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Retry      bool
	Cause      error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
	return e.Message
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// Retryable reports whether the failure is worth retrying.
func (e *ProviderError) Retryable() bool { return e.Retry }

// AuthError indicates an invalid or missing credential. Never retryable.
type AuthError struct{ ProviderError }

// RateLimitError indicates the provider throttled the request.
type RateLimitError struct{ ProviderError }

// ServerError indicates a 5xx-class provider failure.
type ServerError struct{ ProviderError }

// TimeoutError indicates the request timed out before completing.
type TimeoutError struct{ ProviderError }

// ContextLengthError indicates the request exceeded the model's context window.
type ContextLengthError struct{ ProviderError }

// ConfigError indicates invalid client or request configuration.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

// retryable is the probe interface errors can implement to signal retryability.
type retryable interface {
	Retryable() bool
}

// IsRetryable reports whether err (or anything it wraps) is worth retrying.
func IsRetryable(err error) bool {
	for err != nil {
		if r, ok := err.(retryable); ok {
			return r.Retryable()
		}
		err = errors.Unwrap(err)
	}
	return false
}

// ClassifyStatus converts an HTTP-style status code into a typed error.
func ClassifyStatus(provider string, code int, msg string) error {
	base := ProviderError{Provider: provider, StatusCode: code, Message: msg}
	switch {
	case code == 401 || code == 403:
		return &AuthError{base}
	case code == 413:
		return &ContextLengthError{base}
	case code == 429:
		base.Retry = true
		return &RateLimitError{base}
	case code == 408 || code == 504:
		base.Retry = true
		return &TimeoutError{base}
	case code >= 500:
		base.Retry = true
		return &ServerError{base}
	default:
		return &base
	}
}
