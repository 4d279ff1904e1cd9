package ads

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// ContentTypeSPCampaign is the media type of the Sponsored Products v3 campaign API.
const ContentTypeSPCampaign = "application/vnd.spCampaign.v3+json"

const maxCampaignPage = 100

// CampaignBudget is the daily budget of a campaign.
type CampaignBudget struct {
	Budget     float64 `json:"budget"`
	BudgetType string  `json:"budgetType"` // DAILY
}

// Campaign is a Sponsored Products campaign.
type Campaign struct {
	CampaignID     string            `json:"campaignId,omitempty"`
	PortfolioID    string            `json:"portfolioId,omitempty"`
	Name           string            `json:"name,omitempty"`
	State          string            `json:"state,omitempty"`         // ENABLED, PAUSED, ARCHIVED
	TargetingType  string            `json:"targetingType,omitempty"` // MANUAL or AUTO
	StartDate      string            `json:"startDate,omitempty"`
	EndDate        string            `json:"endDate,omitempty"`
	Budget         *CampaignBudget   `json:"budget,omitempty"`
	DynamicBidding json.RawMessage   `json:"dynamicBidding,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
}

// CampaignFilter narrows ListCampaigns.
type CampaignFilter struct {
	States       []string
	Name         string // broad match
	CampaignIDs  []string
	PortfolioIDs []string
	MaxResults   int // 1-100, defaults to 100
	NextToken    string
	ExtendedData bool
}

type includeFilter struct {
	Include []string `json:"include"`
}

type nameFilter struct {
	QueryTermMatchType string   `json:"queryTermMatchType"`
	Include            []string `json:"include"`
}

type listCampaignsBody struct {
	MaxResults        int            `json:"maxResults"`
	NextToken         string         `json:"nextToken,omitempty"`
	StateFilter       *includeFilter `json:"stateFilter,omitempty"`
	NameFilter        *nameFilter    `json:"nameFilter,omitempty"`
	CampaignIDFilter  *includeFilter `json:"campaignIdFilter,omitempty"`
	PortfolioIDFilter *includeFilter `json:"portfolioIdFilter,omitempty"`
	ExtendedData      bool           `json:"includeExtendedDataFields,omitempty"`
}

func (f CampaignFilter) body() listCampaignsBody {
	b := listCampaignsBody{
		MaxResults:   f.MaxResults,
		NextToken:    f.NextToken,
		ExtendedData: f.ExtendedData,
	}
	if b.MaxResults <= 0 || b.MaxResults > maxCampaignPage {
		b.MaxResults = maxCampaignPage
	}
	if len(f.States) > 0 {
		states := make([]string, len(f.States))
		for i, s := range f.States {
			states[i] = strings.ToUpper(s)
		}
		b.StateFilter = &includeFilter{Include: states}
	}
	if f.Name != "" {
		b.NameFilter = &nameFilter{QueryTermMatchType: "BROAD_MATCH", Include: []string{f.Name}}
	}
	if len(f.CampaignIDs) > 0 {
		b.CampaignIDFilter = &includeFilter{Include: f.CampaignIDs}
	}
	if len(f.PortfolioIDs) > 0 {
		b.PortfolioIDFilter = &includeFilter{Include: f.PortfolioIDs}
	}
	return b
}

// CampaignPage is one page of ListCampaigns.
type CampaignPage struct {
	Campaigns    []Campaign `json:"campaigns"`
	NextToken    string     `json:"nextToken,omitempty"`
	TotalResults int        `json:"totalResults,omitempty"`
}

// CampaignSuccess is a successful item of a multi-status response.
type CampaignSuccess struct {
	CampaignID string    `json:"campaignId"`
	Index      int       `json:"index"`
	Campaign   *Campaign `json:"campaign,omitempty"`
}

// CampaignFailure is a rejected item of a multi-status response.
type CampaignFailure struct {
	Index  int               `json:"index"`
	Errors []json.RawMessage `json:"errors"`
}

// CampaignMutation is the per-item outcome of create, update and delete.
type CampaignMutation struct {
	Success []CampaignSuccess `json:"success"`
	Error   []CampaignFailure `json:"error"`
}

type campaignMutationResponse struct {
	Campaigns CampaignMutation `json:"campaigns"`
}

func (c *Client) campaignRequest(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.Do(ctx, &Request{
		Method:      method,
		Path:        path,
		Body:        body,
		ContentType: ContentTypeSPCampaign,
	})
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// ListCampaigns returns one page of campaigns of the current profile.
func (c *Client) ListCampaigns(ctx context.Context, filter CampaignFilter) (*CampaignPage, error) {
	var page CampaignPage
	if err := c.campaignRequest(ctx, http.MethodPost, "/sp/campaigns/list", filter.body(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListAllCampaigns follows nextToken until every matching campaign is read.
func (c *Client) ListAllCampaigns(ctx context.Context, filter CampaignFilter) ([]Campaign, error) {
	filter.MaxResults = maxCampaignPage
	filter.NextToken = ""

	var all []Campaign
	for {
		page, err := c.ListCampaigns(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Campaigns...)
		if page.NextToken == "" {
			return all, nil
		}
		filter.NextToken = page.NextToken
	}
}

// GetCampaign fetches one campaign by id.
func (c *Client) GetCampaign(ctx context.Context, campaignID string) (*Campaign, error) {
	var out Campaign
	if err := c.campaignRequest(ctx, http.MethodGet, "/sp/campaigns/"+url.PathEscape(campaignID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateCampaigns creates campaigns in one batch.
func (c *Client) CreateCampaigns(ctx context.Context, campaigns []Campaign) (*CampaignMutation, error) {
	return c.mutateCampaigns(ctx, http.MethodPost, "/sp/campaigns", map[string]any{"campaigns": campaigns})
}

// UpdateCampaigns applies partial updates; each campaign must carry its id.
func (c *Client) UpdateCampaigns(ctx context.Context, campaigns []Campaign) (*CampaignMutation, error) {
	return c.mutateCampaigns(ctx, http.MethodPut, "/sp/campaigns", map[string]any{"campaigns": campaigns})
}

// DeleteCampaigns archives the given campaigns.
func (c *Client) DeleteCampaigns(ctx context.Context, campaignIDs []string) (*CampaignMutation, error) {
	body := map[string]any{"campaignIdFilter": includeFilter{Include: campaignIDs}}
	return c.mutateCampaigns(ctx, http.MethodPost, "/sp/campaigns/delete", body)
}

func (c *Client) mutateCampaigns(ctx context.Context, method, path string, body any) (*CampaignMutation, error) {
	var out campaignMutationResponse
	if err := c.campaignRequest(ctx, method, path, body, &out); err != nil {
		return nil, err
	}
	return &out.Campaigns, nil
}
