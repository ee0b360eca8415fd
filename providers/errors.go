package providers

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies a provider-adapter failure so the routing engine
// and gateway core can decide whether to retry, advance to the next
// candidate, or surface the error to the caller.
type ErrorCategory string

// Categories an adapter may attach to an error it returns from Complete,
// CompleteStream, Embed, or GenerateImage.
const (
	CategoryInvalidCredentials   ErrorCategory = "invalid_credentials"
	CategoryModelNotFound        ErrorCategory = "model_not_found"
	CategoryRateLimitedUpstream  ErrorCategory = "rate_limited_upstream"
	CategoryContextWindowExceed  ErrorCategory = "context_window_exceeded"
	CategoryTransient            ErrorCategory = "transient"
	CategoryPermanent            ErrorCategory = "permanent"
)

// AdapterError wraps an upstream failure with the category the gateway core
// needs to drive retry and fallback decisions.
type AdapterError struct {
	Category ErrorCategory
	Provider string
	Err      error
}

func (e *AdapterError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Category, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// NewAdapterError builds a categorised adapter error.
func NewAdapterError(provider string, category ErrorCategory, err error) *AdapterError {
	return &AdapterError{Category: category, Provider: provider, Err: err}
}

// IsRetryable reports whether a candidate should be retried once before the
// routing engine advances to the next candidate (spec: transient and
// rate-limited-upstream are retried; everything else either advances
// immediately or is a client-origin error that short-circuits).
func IsRetryable(err error) bool {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Category == CategoryTransient || ae.Category == CategoryRateLimitedUpstream
	}
	return false
}

// IsPermanent reports whether the error is non-retryable and client-origin:
// the candidate loop stops at the first such error and surfaces it without
// trying the remaining candidates.
func IsPermanent(err error) bool {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Category == CategoryPermanent || ae.Category == CategoryModelNotFound || ae.Category == CategoryInvalidCredentials
	}
	return false
}

// CategoryOf extracts the category from err, defaulting to permanent for
// uncategorised errors (fail closed — an unrecognised error should not be
// retried indefinitely).
func CategoryOf(err error) ErrorCategory {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Category
	}
	return CategoryPermanent
}
