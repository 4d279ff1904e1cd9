package apierror

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAuthError_Message(t *testing.T) {
	err := &AuthError{StatusCode: 400, Code: "invalid_grant", Description: "The request has an invalid grant parameter"}
	assert.Equal(t, "ads auth: 400 invalid_grant: The request has an invalid grant parameter", err.Error())

	bare := &AuthError{StatusCode: 401, Body: []byte(`{"code":"UNAUTHORIZED"}`)}
	assert.Contains(t, bare.Error(), "UNAUTHORIZED")
}

func TestTransientAuthError_Unwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("refresh: %w", &TransientAuthError{Err: cause})

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "unreachable")
}

func TestAPIError_TruncatesBody(t *testing.T) {
	err := &APIError{StatusCode: 400, Method: "GET", Path: "/v2/profiles", Attempts: 1, Body: []byte(strings.Repeat("x", 2000))}
	msg := err.Error()

	assert.True(t, strings.HasSuffix(msg, "..."))
	assert.Less(t, len(msg), 700)
	assert.False(t, IsRetryable(err))
}

func TestTimeoutError_IsDeadlineExceeded(t *testing.T) {
	err := &TimeoutError{Method: "GET", Path: "/x", Timeout: time.Second, Attempts: 2}

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out after 1s")
}

func TestRateLimitExceededError_Message(t *testing.T) {
	err := &RateLimitExceededError{Method: "POST", Path: "/sp/campaigns/list", Attempts: 4, RetryAfter: 2 * time.Second}

	assert.Equal(t, "ads: rate limited on POST /sp/campaigns/list after 4 attempts (retry after 2s)", err.Error())
	assert.True(t, IsRetryable(err))
}
