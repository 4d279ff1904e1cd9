package ads

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Report processing states.
const (
	ReportPending    = "PENDING"
	ReportInProgress = "IN_PROGRESS"
	ReportCompleted  = "COMPLETED"
	ReportFailed     = "FAILED"
)

// DefaultPollInterval is the WaitForReport polling period.
const DefaultPollInterval = 10 * time.Second

// ErrReportFailed is returned by WaitForReport when the report ends in FAILED.
var ErrReportFailed = errors.New("ads: report failed")

var adProducts = map[string]string{
	"sp": "SPONSORED_PRODUCTS",
	"sb": "SPONSORED_BRANDS",
	"sd": "SPONSORED_DISPLAY",
}

// groupBy values accepted by each report type when the caller gives none.
var defaultGroupBy = map[string][]string{
	"spCampaigns":  {"campaign"},
	"spAdGroups":   {"adGroup"},
	"spKeywords":   {"adGroup"},
	"spTargeting":  {"targeting"},
	"spSearchTerm": {"searchTerm"},
	"sbCampaigns":  {"campaign"},
	"sbAdGroups":   {"adGroup"},
	"sbKeywords":   {"adGroup"},
	"sbTargets":    {"targeting"},
	"sdCampaigns":  {"campaign"},
	"sdAdGroups":   {"adGroup"},
	"sdTargets":    {"targeting"},
}

// ReportFilter restricts a report to matching rows.
type ReportFilter struct {
	Field  string   `json:"field"`
	Values []string `json:"values"`
}

// ReportRequest describes a v3 report.
type ReportRequest struct {
	Name       string         `json:"name,omitempty"`
	ReportType string         `json:"reportType"` // spCampaigns, sbAdGroups, ...
	TimeUnit   string         `json:"timeUnit"`   // SUMMARY or DAILY
	StartDate  string         `json:"startDate"`  // YYYY-MM-DD
	EndDate    string         `json:"endDate"`
	Columns    []string       `json:"columns"`
	GroupBy    []string       `json:"groupBy,omitempty"`
	Filters    []ReportFilter `json:"filters,omitempty"`
}

func (r ReportRequest) validate() error {
	var errs []error
	if r.ReportType == "" {
		errs = append(errs, errors.New("report type is required"))
	}
	if r.StartDate == "" || r.EndDate == "" {
		errs = append(errs, errors.New("start and end dates are required"))
	}
	if len(r.Columns) == 0 {
		errs = append(errs, errors.New("at least one column is required"))
	}
	return errors.Join(errs...)
}

type reportConfiguration struct {
	AdProduct    string         `json:"adProduct"`
	GroupBy      []string       `json:"groupBy"`
	Columns      []string       `json:"columns"`
	ReportTypeID string         `json:"reportTypeId"`
	TimeUnit     string         `json:"timeUnit"`
	Format       string         `json:"format"`
	Filters      []ReportFilter `json:"filters,omitempty"`
}

type createReportBody struct {
	Name          string              `json:"name,omitempty"`
	StartDate     string              `json:"startDate"`
	EndDate       string              `json:"endDate"`
	Configuration reportConfiguration `json:"configuration"`
}

func (r ReportRequest) body() createReportBody {
	product := "SPONSORED_PRODUCTS"
	if len(r.ReportType) >= 2 {
		if p, ok := adProducts[strings.ToLower(r.ReportType[:2])]; ok {
			product = p
		}
	}
	groupBy := r.GroupBy
	if len(groupBy) == 0 {
		groupBy = defaultGroupBy[r.ReportType]
		if len(groupBy) == 0 {
			groupBy = []string{"campaign"}
		}
	}
	timeUnit := r.TimeUnit
	if timeUnit == "" {
		timeUnit = "SUMMARY"
	}
	return createReportBody{
		Name:      r.Name,
		StartDate: r.StartDate,
		EndDate:   r.EndDate,
		Configuration: reportConfiguration{
			AdProduct:    product,
			GroupBy:      groupBy,
			Columns:      r.Columns,
			ReportTypeID: r.ReportType,
			TimeUnit:     timeUnit,
			Format:       "GZIP_JSON",
			Filters:      r.Filters,
		},
	}
}

// Report is the status of an asynchronous report.
type Report struct {
	ReportID      string     `json:"reportId"`
	Name          string     `json:"name,omitempty"`
	Status        string     `json:"status"`
	StartDate     string     `json:"startDate,omitempty"`
	EndDate       string     `json:"endDate,omitempty"`
	URL           string     `json:"url,omitempty"`
	URLExpiresAt  *time.Time `json:"urlExpiresAt,omitempty"`
	FileSize      int64      `json:"fileSize,omitempty"`
	FailureReason string     `json:"failureReason,omitempty"`
	CreatedAt     *time.Time `json:"createdAt,omitempty"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
}

// Done reports whether the report reached a final state.
func (r *Report) Done() bool {
	return r.Status == ReportCompleted || r.Status == ReportFailed
}

// CreateReport requests a report for the current profile.
func (c *Client) CreateReport(ctx context.Context, req ReportRequest) (*Report, error) {
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("ads: invalid report request: %w", err)
	}
	var out Report
	if err := c.PostJSON(ctx, "/reporting/reports", req.body(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetReport fetches the status of a report.
func (c *Client) GetReport(ctx context.Context, reportID string) (*Report, error) {
	var out Report
	if err := c.GetJSON(ctx, "/reporting/reports/"+url.PathEscape(reportID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteReport cancels a pending report or deletes a finished one.
func (c *Client) DeleteReport(ctx context.Context, reportID string) error {
	return c.Delete(ctx, "/reporting/reports/"+url.PathEscape(reportID), nil)
}

// WaitForReport polls until the report completes or fails, or ctx is done.
// A non-positive interval selects DefaultPollInterval.
func (c *Client) WaitForReport(ctx context.Context, reportID string, interval time.Duration) (*Report, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		report, err := c.GetReport(ctx, reportID)
		if err != nil {
			return nil, err
		}
		switch report.Status {
		case ReportCompleted:
			c.logger.Info("ads.report_completed", zap.String("report_id", reportID))
			return report, nil
		case ReportFailed:
			c.logger.Warn("ads.report_failed",
				zap.String("report_id", reportID),
				zap.String("reason", report.FailureReason))
			return report, fmt.Errorf("%w: %s %s", ErrReportFailed, reportID, report.FailureReason)
		}

		c.logger.Debug("ads.report_pending",
			zap.String("report_id", reportID),
			zap.String("status", report.Status))

		select {
		case <-ctx.Done():
			return report, fmt.Errorf("ads: waiting for report %s: %w", reportID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// DownloadReport fetches a completed report's rows. The download URL is
// presigned, so no API credentials are attached. The transfer is bounded by
// Config.Timeout like any other call and reports a *TimeoutError past it.
func (c *Client) DownloadReport(ctx context.Context, report *Report) ([]json.RawMessage, error) {
	if report == nil || report.Status != ReportCompleted {
		return nil, errors.New("ads: report is not completed")
	}
	if report.URL == "" {
		return nil, fmt.Errorf("ads: report %s has no download url", report.ReportID)
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	rows, err := c.download(ctx, report)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, &TimeoutError{
			Method:   http.MethodGet,
			Path:     "report download",
			Timeout:  c.cfg.Timeout,
			Attempts: 1,
			Err:      context.DeadlineExceeded,
		}
	}
	return rows, err
}

func (c *Client) download(ctx context.Context, report *Report) ([]json.RawMessage, error) {

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, report.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("ads: build download request: %w", err)
	}
	resp, err := c.downloader.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ads: download report %s: %w", report.ReportID, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Method:     http.MethodGet,
			Path:       "report download",
			Attempts:   1,
			Body:       body,
		}
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ads: decompress report %s: %w", report.ReportID, err)
	}
	defer gz.Close() //nolint:errcheck

	var rows []json.RawMessage
	if err := json.NewDecoder(gz).Decode(&rows); err != nil {
		return nil, fmt.Errorf("ads: decode report %s: %w", report.ReportID, err)
	}
	return rows, nil
}

// CreateAndDownloadReport creates a report, waits for it and returns its rows.
func (c *Client) CreateAndDownloadReport(ctx context.Context, req ReportRequest, interval time.Duration) ([]json.RawMessage, error) {
	report, err := c.CreateReport(ctx, req)
	if err != nil {
		return nil, err
	}
	c.logger.Info("ads.report_created",
		zap.String("report_id", report.ReportID),
		zap.String("report_type", req.ReportType))

	report, err = c.WaitForReport(ctx, report.ReportID, interval)
	if err != nil {
		return nil, err
	}
	return c.DownloadReport(ctx, report)
}
