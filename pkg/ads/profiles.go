package ads

import (
	"context"
	"net/url"
)

// AccountInfo describes the advertiser account behind a profile.
type AccountInfo struct {
	MarketplaceStringID string `json:"marketplaceStringId"`
	ID                  string `json:"id"`
	Type                string `json:"type"` // seller, vendor or agency
	Name                string `json:"name"`
	ValidPaymentMethod  bool   `json:"validPaymentMethod"`
}

// Profile is an advertising account in one marketplace.
type Profile struct {
	ProfileID    int64       `json:"profileId"`
	CountryCode  string      `json:"countryCode"`
	CurrencyCode string      `json:"currencyCode"`
	DailyBudget  float64     `json:"dailyBudget,omitempty"`
	Timezone     string      `json:"timezone"`
	AccountInfo  AccountInfo `json:"accountInfo"`
}

// ProfileFilter narrows ListProfiles.
type ProfileFilter struct {
	APIProgram         string // campaign, billing, report, ...
	AccessLevel        string // edit or view
	ProfileType        string // comma-separated seller,vendor,agency
	ValidPaymentMethod string // "true" or "false"
}

func (f ProfileFilter) query() url.Values {
	q := url.Values{}
	if f.APIProgram != "" {
		q.Set("apiProgram", f.APIProgram)
	}
	if f.AccessLevel != "" {
		q.Set("accessLevel", f.AccessLevel)
	}
	if f.ProfileType != "" {
		q.Set("profileTypeFilter", f.ProfileType)
	}
	if f.ValidPaymentMethod != "" {
		q.Set("validPaymentMethodFilter", f.ValidPaymentMethod)
	}
	return q
}

// ListProfiles returns the profiles the credentials can access. Profiles are
// not scoped, so no profile header is needed.
func (c *Client) ListProfiles(ctx context.Context, filter ProfileFilter) ([]Profile, error) {
	var out []Profile
	if err := c.GetJSON(ctx, "/v2/profiles", filter.query(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetProfile fetches a single profile.
func (c *Client) GetProfile(ctx context.Context, profileID string) (*Profile, error) {
	var out Profile
	if err := c.GetJSON(ctx, "/v2/profiles/"+url.PathEscape(profileID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
