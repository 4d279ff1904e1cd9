package ads

import "github.com/Checker-Finance/ads-adapter/pkg/apierror"

// Error types returned by Client. See package apierror.
type (
	AuthError              = apierror.AuthError
	TransientAuthError     = apierror.TransientAuthError
	RateLimitExceededError = apierror.RateLimitExceededError
	APIError               = apierror.APIError
	TimeoutError           = apierror.TimeoutError
)

// IsRetryable reports whether err is a condition the client retries on its own.
func IsRetryable(err error) bool { return apierror.IsRetryable(err) }
