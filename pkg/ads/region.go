package ads

import (
	"fmt"
	"strings"
)

// Region selects the Amazon Ads API endpoint.
type Region string

const (
	RegionNA Region = "NA" // North America
	RegionEU Region = "EU" // Europe, Middle East, India
	RegionFE Region = "FE" // Far East
)

var regionBaseURLs = map[Region]string{
	RegionNA: "https://advertising-api.amazon.com",
	RegionEU: "https://advertising-api-eu.amazon.com",
	RegionFE: "https://advertising-api-fe.amazon.com",
}

// BaseURL returns the API root for r, or "" for an unknown region.
func (r Region) BaseURL() string {
	return regionBaseURLs[r]
}

// Valid reports whether r is a known region.
func (r Region) Valid() bool {
	_, ok := regionBaseURLs[r]
	return ok
}

// ParseRegion parses a case-insensitive region name.
func ParseRegion(s string) (Region, error) {
	r := Region(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("ads: unknown region %q (want NA, EU or FE)", s)
	}
	return r, nil
}
