package api

// ReportCreateRequest is the payload for requesting a report.
type ReportCreateRequest struct {
	Name       string         `json:"name"`
	ReportType string         `json:"reportType"`
	TimeUnit   string         `json:"timeUnit"`
	StartDate  string         `json:"startDate"`
	EndDate    string         `json:"endDate"`
	Columns    []string       `json:"columns"`
	GroupBy    []string       `json:"groupBy"`
	Filters    []ReportFilter `json:"filters"`
}

// ReportFilter restricts report rows.
type ReportFilter struct {
	Field  string   `json:"field"`
	Values []string `json:"values"`
}
