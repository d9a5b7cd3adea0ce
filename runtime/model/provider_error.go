package model

import (
	"errors"
	"fmt"
)

// ProviderErrorKind classifies provider failures into the categories that
// drive retry and rate-limit decisions.
type ProviderErrorKind string

const (
	// ProviderErrorKindAuth marks authentication and authorization
	// failures.
	ProviderErrorKindAuth ProviderErrorKind = "auth"

	// ProviderErrorKindInvalidRequest marks requests the provider
	// rejected; retrying unchanged cannot succeed.
	ProviderErrorKindInvalidRequest ProviderErrorKind = "invalid_request"

	// ProviderErrorKindRateLimited marks provider throttling.
	ProviderErrorKindRateLimited ProviderErrorKind = "rate_limited"

	// ProviderErrorKindUnavailable marks transient provider failures
	// (5xx, network) where a retry may succeed.
	ProviderErrorKindUnavailable ProviderErrorKind = "unavailable"

	// ProviderErrorKindUnknown marks unclassified provider failures.
	ProviderErrorKindUnknown ProviderErrorKind = "unknown"
)

// ProviderError describes a failure returned by a model provider with
// enough structure for stable classification across package boundaries.
type ProviderError struct {
	provider  string
	operation string
	http      int
	kind      ProviderErrorKind
	code      string
	message   string
	requestID string
	cause     error
}

// NewProviderError constructs a ProviderError. provider and kind are
// required; cause preserves the SDK error chain when non-nil.
func NewProviderError(provider, operation string, httpStatus int, kind ProviderErrorKind, code, message, requestID string, cause error) *ProviderError {
	if provider == "" {
		panic("model: provider is required")
	}
	if kind == "" {
		panic("model: provider error kind is required")
	}
	return &ProviderError{
		provider:  provider,
		operation: operation,
		http:      httpStatus,
		kind:      kind,
		code:      code,
		message:   message,
		requestID: requestID,
		cause:     cause,
	}
}

// Provider returns the provider identifier, for example "anthropic".
func (e *ProviderError) Provider() string { return e.provider }

// Operation returns the provider operation when known, for example
// "messages.new".
func (e *ProviderError) Operation() string { return e.operation }

// HTTPStatus returns the HTTP status when available, otherwise 0.
func (e *ProviderError) HTTPStatus() int { return e.http }

// Kind returns the coarse-grained classification.
func (e *ProviderError) Kind() ProviderErrorKind { return e.kind }

// ErrorCode returns the provider-specific error code when available.
func (e *ProviderError) ErrorCode() string { return e.code }

// RequestID returns the provider request identifier when available.
func (e *ProviderError) RequestID() string { return e.requestID }

// Retryable reports whether retrying the call unchanged may succeed.
func (e *ProviderError) Retryable() bool {
	return e.kind == ProviderErrorKindRateLimited || e.kind == ProviderErrorKindUnavailable
}

func (e *ProviderError) Error() string {
	op := e.operation
	if op == "" {
		op = "request"
	}
	status := ""
	if e.http > 0 {
		status = fmt.Sprintf("%d ", e.http)
	}
	code := ""
	if e.code != "" {
		code = e.code + ": "
	}
	msg := e.message
	if msg == "" && e.cause != nil {
		msg = e.cause.Error()
	}
	if msg == "" {
		msg = "provider error"
	}
	return fmt.Sprintf("%s %s %s(%s): %s", e.provider, e.kind, status, op, code+msg)
}

// Unwrap returns the underlying SDK error.
func (e *ProviderError) Unwrap() error { return e.cause }

// AsProviderError returns the first ProviderError in err's chain, if any.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsThrottle reports whether err signals provider throttling. Adapters
// classify SDK errors into ProviderError; rate-limit middleware keys its
// backoff off this predicate.
func IsThrottle(err error) bool {
	if pe, ok := AsProviderError(err); ok {
		return pe.Kind() == ProviderErrorKindRateLimited
	}
	return false
}
