package api

import (
	"context"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/ads-adapter/pkg/ads"
)

// ClientProvider hands out per-tenant Amazon Ads clients.
type ClientProvider interface {
	Client(ctx context.Context, tenant, profileID string) (*ads.Client, error)
	Evict(tenant string)
}

// TenantLister discovers configured tenants.
type TenantLister interface {
	DiscoverTenants(ctx context.Context) ([]string, error)
}

// AdsHandler serves the tenant-scoped Amazon Ads routes.
type AdsHandler struct {
	logger  *zap.Logger
	clients ClientProvider
	tenants TenantLister
}

// NewAdsHandler creates a new AdsHandler. tenants may be nil.
func NewAdsHandler(logger *zap.Logger, clients ClientProvider, tenants TenantLister) *AdsHandler {
	return &AdsHandler{
		logger:  logger,
		clients: clients,
		tenants: tenants,
	}
}

// ListTenants returns the tenants that have credentials configured.
func (h *AdsHandler) ListTenants(c *fiber.Ctx) error {
	if h.tenants == nil {
		return c.JSON(fiber.Map{"tenants": []string{}})
	}
	tenants, err := h.tenants.DiscoverTenants(c.UserContext())
	if err != nil {
		return h.fail(c, "", err)
	}
	if tenants == nil {
		tenants = []string{}
	}
	return c.JSON(fiber.Map{"tenants": tenants})
}

// ListProfiles returns the advertising profiles of a tenant.
func (h *AdsHandler) ListProfiles(c *fiber.Ctx) error {
	tenant := c.Params("tenant")
	client, err := h.clients.Client(c.UserContext(), tenant, "")
	if err != nil {
		return h.fail(c, tenant, err)
	}

	profiles, err := client.ListProfiles(c.UserContext(), ads.ProfileFilter{
		APIProgram:  c.Query("apiProgram"),
		AccessLevel: c.Query("accessLevel"),
		ProfileType: c.Query("profileType"),
	})
	if err != nil {
		return h.fail(c, tenant, err)
	}
	if profiles == nil {
		profiles = []ads.Profile{}
	}
	return c.JSON(fiber.Map{"profiles": profiles})
}

// ListCampaigns lists Sponsored Products campaigns of one profile. With
// all=true every page is fetched.
func (h *AdsHandler) ListCampaigns(c *fiber.Ctx) error {
	tenant, profile := c.Params("tenant"), c.Params("profile")
	client, err := h.clients.Client(c.UserContext(), tenant, profile)
	if err != nil {
		return h.fail(c, tenant, err)
	}

	filter := ads.CampaignFilter{
		Name:      c.Query("name"),
		NextToken: c.Query("nextToken"),
	}
	if states := c.Query("state"); states != "" {
		filter.States = strings.Split(states, ",")
	}
	if raw := c.Query("maxResults"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error:     "maxResults must be between 1 and 100",
				RequestID: requestID(c),
			})
		}
		filter.MaxResults = n
	}

	if c.QueryBool("all") {
		campaigns, err := client.ListAllCampaigns(c.UserContext(), filter)
		if err != nil {
			return h.fail(c, tenant, err)
		}
		if campaigns == nil {
			campaigns = []ads.Campaign{}
		}
		return c.JSON(ads.CampaignPage{Campaigns: campaigns, TotalResults: len(campaigns)})
	}

	page, err := client.ListCampaigns(c.UserContext(), filter)
	if err != nil {
		return h.fail(c, tenant, err)
	}
	return c.JSON(page)
}

// GetCampaign returns a single campaign.
func (h *AdsHandler) GetCampaign(c *fiber.Ctx) error {
	tenant, profile := c.Params("tenant"), c.Params("profile")
	client, err := h.clients.Client(c.UserContext(), tenant, profile)
	if err != nil {
		return h.fail(c, tenant, err)
	}
	campaign, err := client.GetCampaign(c.UserContext(), c.Params("campaignId"))
	if err != nil {
		return h.fail(c, tenant, err)
	}
	return c.JSON(campaign)
}

// CreateReport requests an asynchronous report.
func (h *AdsHandler) CreateReport(c *fiber.Ctx) error {
	var req ReportCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error(), RequestID: requestID(c)})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error(), RequestID: requestID(c)})
	}

	tenant, profile := c.Params("tenant"), c.Params("profile")
	client, err := h.clients.Client(c.UserContext(), tenant, profile)
	if err != nil {
		return h.fail(c, tenant, err)
	}

	report, err := client.CreateReport(c.UserContext(), toReportRequest(req))
	if err != nil {
		return h.fail(c, tenant, err)
	}

	h.logger.Info("api.report_created",
		zap.String("request_id", requestID(c)),
		zap.String("tenant", tenant),
		zap.String("profile", profile),
		zap.String("report_id", report.ReportID),
		zap.String("report_type", req.ReportType))
	return c.Status(fiber.StatusAccepted).JSON(report)
}

// GetReport returns the status of a report.
func (h *AdsHandler) GetReport(c *fiber.Ctx) error {
	tenant, profile := c.Params("tenant"), c.Params("profile")
	client, err := h.clients.Client(c.UserContext(), tenant, profile)
	if err != nil {
		return h.fail(c, tenant, err)
	}
	report, err := client.GetReport(c.UserContext(), c.Params("reportId"))
	if err != nil {
		return h.fail(c, tenant, err)
	}
	return c.JSON(report)
}

// GetReportRows downloads the rows of a completed report.
func (h *AdsHandler) GetReportRows(c *fiber.Ctx) error {
	tenant, profile := c.Params("tenant"), c.Params("profile")
	client, err := h.clients.Client(c.UserContext(), tenant, profile)
	if err != nil {
		return h.fail(c, tenant, err)
	}
	report, err := client.GetReport(c.UserContext(), c.Params("reportId"))
	if err != nil {
		return h.fail(c, tenant, err)
	}
	if report.Status != ads.ReportCompleted {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"reportId": report.ReportID,
			"status":   report.Status,
		})
	}
	rows, err := client.DownloadReport(c.UserContext(), report)
	if err != nil {
		return h.fail(c, tenant, err)
	}
	return c.JSON(fiber.Map{"reportId": report.ReportID, "rows": rows})
}

// fail writes err as an ErrorResponse. Rejected credentials evict the tenant's
// client so a rotated secret is picked up on the next call.
func (h *AdsHandler) fail(c *fiber.Ctx, tenant string, err error) error {
	status, code, upstream := classify(err)
	if code == "auth_failed" && tenant != "" {
		h.clients.Evict(tenant)
	}

	log := h.logger.Warn
	if status >= fiber.StatusInternalServerError {
		log = h.logger.Error
	}
	log("api.request_failed",
		zap.String("request_id", requestID(c)),
		zap.String("tenant", tenant),
		zap.String("path", c.Path()),
		zap.Int("status", status),
		zap.String("code", code),
		zap.Error(err))

	return c.Status(status).JSON(ErrorResponse{
		Error:     err.Error(),
		Code:      code,
		RequestID: requestID(c),
		Upstream:  upstream,
	})
}

func toReportRequest(req ReportCreateRequest) ads.ReportRequest {
	out := ads.ReportRequest{
		Name:       req.Name,
		ReportType: req.ReportType,
		TimeUnit:   strings.ToUpper(req.TimeUnit),
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		Columns:    req.Columns,
		GroupBy:    req.GroupBy,
	}
	for _, f := range req.Filters {
		out.Filters = append(out.Filters, ads.ReportFilter{Field: f.Field, Values: f.Values})
	}
	return out
}
