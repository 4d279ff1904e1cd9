package api

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Validate checks that ReportCreateRequest has all required fields.
func (r *ReportCreateRequest) Validate() error {
	if r.ReportType == "" {
		return fmt.Errorf("reportType is required")
	}
	switch strings.ToUpper(r.TimeUnit) {
	case "", "SUMMARY", "DAILY":
	default:
		return fmt.Errorf("timeUnit must be SUMMARY or DAILY")
	}
	start, err := time.Parse(dateLayout, r.StartDate)
	if err != nil {
		return fmt.Errorf("startDate must be YYYY-MM-DD")
	}
	end, err := time.Parse(dateLayout, r.EndDate)
	if err != nil {
		return fmt.Errorf("endDate must be YYYY-MM-DD")
	}
	if end.Before(start) {
		return fmt.Errorf("endDate must not precede startDate")
	}
	if len(r.Columns) == 0 {
		return fmt.Errorf("columns is required")
	}
	for i, f := range r.Filters {
		if f.Field == "" || len(f.Values) == 0 {
			return fmt.Errorf("filters[%d] needs a field and values", i)
		}
	}
	return nil
}
