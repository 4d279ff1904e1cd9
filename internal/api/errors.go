package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/Checker-Finance/ads-adapter/pkg/ads"
	"github.com/Checker-Finance/ads-adapter/pkg/secrets"
)

// classify maps a client error to a gateway status and a stable error code.
func classify(err error) (status int, code string, upstream int) {
	var (
		authErr      *ads.AuthError
		transientErr *ads.TransientAuthError
		rateErr      *ads.RateLimitExceededError
		timeoutErr   *ads.TimeoutError
		apiErr       *ads.APIError
	)
	switch {
	case errors.Is(err, secrets.ErrNotFound):
		return fiber.StatusNotFound, "unknown_tenant", 0
	case errors.As(err, &authErr):
		return fiber.StatusUnauthorized, "auth_failed", authErr.StatusCode
	case errors.As(err, &transientErr):
		return fiber.StatusServiceUnavailable, "auth_unavailable", transientErr.StatusCode
	case errors.As(err, &rateErr):
		return fiber.StatusTooManyRequests, "rate_limited", http.StatusTooManyRequests
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, "timeout", 0
	case errors.As(err, &apiErr):
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return apiErr.StatusCode, "upstream_rejected", apiErr.StatusCode
		}
		return fiber.StatusBadGateway, "upstream_error", apiErr.StatusCode
	case errors.Is(err, ads.ErrReportFailed):
		return fiber.StatusUnprocessableEntity, "report_failed", 0
	default:
		return fiber.StatusBadGateway, "upstream_error", 0
	}
}
