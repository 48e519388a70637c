// Package adapters implements provider adapters for GitHub, Jira and Trello.
//
// Each adapter validates an integration's configuration, fetches raw activity
// from the provider API within the configured window, and maps provider
// failures onto a small typed error taxonomy that drives retry decisions.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// ErrorKind classifies a sync failure for retry decisions
type ErrorKind string

const (
	// ErrKindConfig - the integration's configuration is invalid. Terminal:
	// retrying cannot help until the user edits the integration.
	ErrKindConfig ErrorKind = "config_error"

	// ErrKindAuth - credentials were rejected (401/403). Terminal.
	ErrKindAuth ErrorKind = "auth_error"

	// ErrKindRateLimit - the provider throttled us (429 or explicit rate
	// limit response). Retryable, with an optional reset hint.
	ErrKindRateLimit ErrorKind = "rate_limit_error"

	// ErrKindEmptyResource - the configured resource exists but has no
	// content (e.g., an empty git repository). Not a failure: the sync
	// produces a no-activity snapshot.
	ErrKindEmptyResource ErrorKind = "empty_resource_error"

	// ErrKindNetwork - transport failure, timeout or 5xx. Retryable.
	ErrKindNetwork ErrorKind = "network_error"
)

// SyncError is a classified provider failure
type SyncError struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Message    string
	RetryAfter time.Duration // rate-limit reset hint, zero when unknown
	Err        error
}

func (e *SyncError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (%s, status %d)", e.Provider, e.Message, e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Kind)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a later attempt could succeed
func (e *SyncError) Retryable() bool {
	switch e.Kind {
	case ErrKindRateLimit, ErrKindNetwork:
		return true
	}
	return false
}

// NewConfigError builds a terminal configuration error
func NewConfigError(provider, format string, args ...interface{}) *SyncError {
	return &SyncError{Kind: ErrKindConfig, Provider: provider, Message: fmt.Sprintf(format, args...)}
}

// NewAuthError builds a terminal authentication error
func NewAuthError(provider string, statusCode int, message string) *SyncError {
	return &SyncError{Kind: ErrKindAuth, Provider: provider, StatusCode: statusCode, Message: message}
}

// NewRateLimitError builds a retryable rate-limit error with reset hint
func NewRateLimitError(provider string, retryAfter time.Duration) *SyncError {
	return &SyncError{
		Kind:       ErrKindRateLimit,
		Provider:   provider,
		StatusCode: http.StatusTooManyRequests,
		Message:    "rate limit exceeded",
		RetryAfter: retryAfter,
	}
}

// NewEmptyResourceError marks a resource as valid but empty
func NewEmptyResourceError(provider, format string, args ...interface{}) *SyncError {
	return &SyncError{Kind: ErrKindEmptyResource, Provider: provider, Message: fmt.Sprintf(format, args...)}
}

// NewNetworkError wraps a transport failure
func NewNetworkError(provider string, err error) *SyncError {
	return &SyncError{Kind: ErrKindNetwork, Provider: provider, Message: err.Error(), Err: err}
}

// KindOf extracts the error kind, defaulting unknown errors to network
// so they stay retryable.
func KindOf(err error) ErrorKind {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Kind
	}
	return ErrKindNetwork
}

// IsRetryable reports whether the error admits another attempt.
// Unclassified errors are treated as transient.
func IsRetryable(err error) bool {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Retryable()
	}
	return true
}

// IsEmptyResource reports whether the error marks an empty-but-valid resource
func IsEmptyResource(err error) bool {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Kind == ErrKindEmptyResource
	}
	return false
}

// RetryAfterHint returns the provider's reset hint, or zero
func RetryAfterHint(err error) time.Duration {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.RetryAfter
	}
	return 0
}

// classifyHTTPStatus maps a provider HTTP status onto the taxonomy.
// Statuses below 400 return nil.
func classifyHTTPStatus(provider string, statusCode int, body string) *SyncError {
	switch {
	case statusCode < 400:
		return nil
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return NewAuthError(provider, statusCode, "authentication rejected - credentials expired or insufficient permissions")
	case statusCode == http.StatusNotFound:
		return &SyncError{
			Kind:       ErrKindConfig,
			Provider:   provider,
			StatusCode: statusCode,
			Message:    "configured resource not found",
		}
	case statusCode == http.StatusTooManyRequests:
		return NewRateLimitError(provider, 0)
	default:
		return &SyncError{
			Kind:       ErrKindNetwork,
			Provider:   provider,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("provider returned status %d: %s", statusCode, truncate(body, 200)),
		}
	}
}

// classifyTransportError maps transport-level failures (DNS, timeout,
// connection refused) onto the taxonomy.
func classifyTransportError(provider string, err error) *SyncError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &SyncError{Kind: ErrKindNetwork, Provider: provider, Message: "request timed out", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &SyncError{Kind: ErrKindNetwork, Provider: provider, Message: "request timed out", Err: err}
	}
	return NewNetworkError(provider, err)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
