package client

import (
	"errors"
	"fmt"
	"time"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// RemoteError represents a non-success response from the Plex server.
type RemoteError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error

	// RetryAfter is the server-requested wait parsed from a 429 response.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("plex %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("plex %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Transient reports whether the error class is retried by the client.
func (e *RemoteError) Transient() bool {
	return shouldRetry(e.ErrorClass)
}

// IsTransient reports whether err stems from a 429, a 5xx or a network
// failure. Such errors only surface once the retry budget is spent.
func IsTransient(err error) bool {
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.Transient()
	}
	return errors.Is(err, ErrRetryExhausted)
}

// StatusCode extracts the HTTP status code carried by err, or 0.
func StatusCode(err error) int {
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.StatusCode
	}
	return 0
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// Bad auth, not found and friends will not improve on retry
		return false
	case ErrorClassServer:
		return true
	case ErrorClassRateLimit:
		return true
	case ErrorClassNetwork:
		return true
	default:
		return false
	}
}
