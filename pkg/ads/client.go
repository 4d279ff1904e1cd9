// Package ads is a client for the Amazon Ads REST API.
//
// A Client owns one credential set and its access token. Requests are
// authenticated, retried with exponential backoff on throttling and server
// errors, and re-authenticated once when the API answers 401. Concurrent
// callers that find the token expired share a single refresh.
package ads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Checker-Finance/ads-adapter/internal/auth"
	"github.com/Checker-Finance/ads-adapter/internal/httpclient"
	"github.com/Checker-Finance/ads-adapter/internal/rate"
	"github.com/Checker-Finance/ads-adapter/pkg/utils"
)

const (
	HeaderClientID = "Amazon-Advertising-API-ClientId"
	HeaderScope    = "Amazon-Advertising-API-Scope"

	contentTypeJSON = "application/json"
	defaultLimitKey = "default"
)

// Request is one API call.
type Request struct {
	Method string
	Path   string // relative to the base URL, e.g. /v2/profiles
	Query  url.Values

	// ProfileID overrides the client's profile scope for this call.
	ProfileID string

	// Body is sent as-is when it is a []byte or json.RawMessage and
	// JSON-encoded otherwise. nil sends no body.
	Body any

	Header      http.Header
	ContentType string // defaults to application/json
	Accept      string // defaults to ContentType
}

// Response is a successful (2xx) API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int
}

// Decode unmarshals the JSON body into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 || v == nil {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("ads: decode response: %w", err)
	}
	return nil
}

// Client is safe for concurrent use.
type Client struct {
	logger     *zap.Logger
	cfg        Config
	tokens     *auth.TokenManager
	exec       *httpclient.Executor
	downloader *http.Client

	mu      sync.RWMutex
	profile string
}

// New validates cfg and creates a Client.
func New(logger *zap.Logger, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("ads: invalid config: %w", err)
	}
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	tokens := auth.NewTokenManager(logger, cfg.Credentials, auth.Options{
		TokenURL:     cfg.TokenURL,
		HTTPClient:   httpClient,
		ExpiryBuffer: cfg.ExpiryBuffer,
		Store:        cfg.TokenStore,
	})
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	})
	exec := httpclient.New(logger, httpClient, tokens, rateMgr, cfg.policy())

	logger.Debug("ads.client_created",
		zap.String("client_id", utils.MaskSecret(cfg.ClientID)),
		zap.String("base_url", cfg.BaseURL),
		zap.String("profile_id", cfg.ProfileID),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("timeout", cfg.Timeout))

	return &Client{
		logger:     logger,
		cfg:        cfg,
		tokens:     tokens,
		exec:       exec,
		downloader: httpClient,
		profile:    cfg.ProfileID,
	}, nil
}

// Authenticate exchanges the refresh token for a fresh access token, even if
// the cached one is still valid.
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := c.tokens.Authenticate(ctx)
	return err
}

// Token returns a copy of the cached access token, valid or not.
func (c *Client) Token() Token {
	return c.tokens.Snapshot()
}

// BaseURL returns the API root this client talks to.
func (c *Client) BaseURL() string { return c.cfg.BaseURL }

// ProfileID returns the current profile scope.
func (c *Client) ProfileID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.profile
}

// SetProfile changes the profile scope for subsequent calls.
func (c *Client) SetProfile(profileID string) {
	c.mu.Lock()
	c.profile = profileID
	c.mu.Unlock()
}

// WithProfile returns a client scoped to profileID that shares this client's
// credentials, token and rate limits.
func (c *Client) WithProfile(profileID string) *Client {
	return &Client{
		logger:     c.logger,
		cfg:        c.cfg,
		tokens:     c.tokens,
		exec:       c.exec,
		downloader: c.downloader,
		profile:    profileID,
	}
}

// Do sends req. Non-2xx outcomes are returned as one of the error types of
// this package.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	profile := req.ProfileID
	if profile == "" {
		profile = c.ProfileID()
	}

	res, err := c.exec.Do(ctx, &httpclient.Call{
		Method:       method,
		URL:          c.url(req.Path, req.Query),
		Path:         req.Path,
		Header:       c.headers(req, profile),
		Body:         body,
		RateLimitKey: limitKey(profile),
	})
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       res.Body,
		Attempts:   res.Attempts,
	}, nil
}

// GetJSON issues a GET and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.doJSON(ctx, &Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

// PostJSON issues a POST with a JSON body and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, &Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

// PutJSON issues a PUT with a JSON body and decodes the response into out.
func (c *Client) PutJSON(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, &Request{Method: http.MethodPut, Path: path, Body: body}, out)
}

// Delete issues a DELETE and decodes the response, if any, into out.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, &Request{Method: http.MethodDelete, Path: path}, out)
}

func (c *Client) doJSON(ctx context.Context, req *Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

func (c *Client) url(path string, query url.Values) string {
	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) headers(req *Request, profile string) http.Header {
	h := make(http.Header, len(req.Header)+4)
	for k, v := range req.Header {
		h[k] = append([]string(nil), v...)
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = contentTypeJSON
	}
	accept := req.Accept
	if accept == "" {
		accept = contentType
	}
	if req.Body != nil {
		h.Set("Content-Type", contentType)
	}
	h.Set("Accept", accept)
	h.Set(HeaderClientID, c.cfg.ClientID)
	if profile != "" {
		h.Set(HeaderScope, profile)
	}
	return h
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("ads: encode request body: %w", err)
		}
		return data, nil
	}
}

func limitKey(profile string) string {
	if profile == "" {
		return defaultLimitKey
	}
	return profile
}
