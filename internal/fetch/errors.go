package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// TransientError marks a retryable failure: network errors, timeouts,
// rate limiting, and server-side errors.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a non-retryable failure: the unit is marked Failed
// immediately without consuming further attempts.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Permanent wraps err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsTransient reports whether err should be retried. Unclassified errors
// default to transient, except context cancellation, which signals shutdown
// rather than a unit fault.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var perm *PermanentError
	if errors.As(err, &perm) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// ClassifyStatus converts a non-success HTTP status into a classified error.
// Returns nil for 2xx.
func ClassifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound || code == http.StatusGone:
		return Permanent(fmt.Errorf("target missing: status %d", code))
	case code == http.StatusTooManyRequests:
		return Transient(fmt.Errorf("rate limited: status %d", code))
	case code >= 500:
		return Transient(fmt.Errorf("server error: status %d", code))
	case code >= 400:
		return Permanent(fmt.Errorf("client error: status %d", code))
	default:
		return Transient(fmt.Errorf("unexpected status %d", code))
	}
}
