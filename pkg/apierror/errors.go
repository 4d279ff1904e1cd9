// Package apierror defines the error types surfaced by the Amazon Ads client.
//
// Callers match them with errors.As:
//
//	var apiErr *apierror.APIError
//	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound { ... }
package apierror

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// maxBodyInMessage bounds how much of a response body is echoed in Error().
const maxBodyInMessage = 512

// AuthError reports that Login with Amazon rejected the credentials, or that the
// API kept answering 401 after a fresh token was obtained. Not retryable.
type AuthError struct {
	StatusCode  int
	Code        string // LWA "error" field, e.g. invalid_grant
	Description string // LWA "error_description"
	Body        []byte
}

func (e *AuthError) Error() string {
	switch {
	case e.Code != "" && e.Description != "":
		return fmt.Sprintf("ads auth: %d %s: %s", e.StatusCode, e.Code, e.Description)
	case e.Code != "":
		return fmt.Sprintf("ads auth: %d %s", e.StatusCode, e.Code)
	case len(e.Body) > 0:
		return fmt.Sprintf("ads auth: %d: %s", e.StatusCode, truncate(e.Body))
	default:
		return fmt.Sprintf("ads auth: %d", e.StatusCode)
	}
}

// TransientAuthError reports a token endpoint failure that may succeed on retry
// (network error, 429 or 5xx).
type TransientAuthError struct {
	StatusCode int // 0 for transport failures
	Err        error
}

func (e *TransientAuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ads auth: token endpoint returned %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("ads auth: token endpoint unreachable: %v", e.Err)
}

func (e *TransientAuthError) Unwrap() error { return e.Err }

// RateLimitExceededError reports that retries were exhausted while the API was
// still answering 429.
type RateLimitExceededError struct {
	Method     string
	Path       string
	Attempts   int
	RetryAfter time.Duration // last server-supplied hint, zero when absent
	Body       []byte
}

func (e *RateLimitExceededError) Error() string {
	msg := fmt.Sprintf("ads: rate limited on %s %s after %d attempts", e.Method, e.Path, e.Attempts)
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	return msg
}

// APIError is a terminal non-2xx response.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Attempts   int
	RequestID  string
	Body       []byte
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("ads: %s %s returned %d after %d attempts", e.Method, e.Path, e.StatusCode, e.Attempts)
	if len(e.Body) > 0 {
		msg += ": " + truncate(e.Body)
	}
	return msg
}

// TimeoutError reports that the per-call deadline elapsed.
type TimeoutError struct {
	Method   string
	Path     string
	Timeout  time.Duration
	Attempts int
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("ads: %s %s timed out after %s (%d attempts)", e.Method, e.Path, e.Timeout, e.Attempts)
}

func (e *TimeoutError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return context.DeadlineExceeded
}

// IsRetryable reports whether err is a condition the client retries on its own.
func IsRetryable(err error) bool {
	var transient *TransientAuthError
	if errors.As(err, &transient) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	var rl *RateLimitExceededError
	return errors.As(err, &rl)
}

func truncate(b []byte) string {
	if len(b) > maxBodyInMessage {
		return string(b[:maxBodyInMessage]) + "..."
	}
	return string(b)
}
