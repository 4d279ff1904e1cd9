package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// RegisterRoutes registers all HTTP routes on the Fiber app. store may be nil
// when no token store is configured.
func RegisterRoutes(app *fiber.App, logger *zap.Logger, store HealthChecker, h *AdsHandler) {
	app.Use(RequestID(logger))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/health", func(c *fiber.Ctx) error {
		checks := map[string]string{"token_store": "disabled"}
		status := "ok"
		code := fiber.StatusOK

		if store != nil {
			healthCtx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			defer cancel()
			if err := store.Ping(healthCtx); err != nil {
				checks["token_store"] = err.Error()
				status = "degraded"
				code = fiber.StatusServiceUnavailable
			} else {
				checks["token_store"] = "ok"
			}
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	})

	v1 := app.Group("/api/v1")
	v1.Get("/tenants", h.ListTenants)

	tenant := v1.Group("/tenants/:tenant")
	tenant.Get("/profiles", h.ListProfiles)

	profile := tenant.Group("/profiles/:profile")
	profile.Get("/campaigns", h.ListCampaigns)
	profile.Get("/campaigns/:campaignId", h.GetCampaign)
	profile.Post("/reports", h.CreateReport)
	profile.Get("/reports/:reportId", h.GetReport)
	profile.Get("/reports/:reportId/rows", h.GetReportRows)
}
