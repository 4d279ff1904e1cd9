package ads

import (
	"errors"
	"net/http"
	"time"

	"github.com/Checker-Finance/ads-adapter/internal/auth"
	"github.com/Checker-Finance/ads-adapter/internal/httpclient"
)

const (
	// DefaultMaxRetries is the number of re-sends after the first attempt.
	DefaultMaxRetries = 3
	// DefaultTimeout bounds one call, backoff waits included.
	DefaultTimeout = 30 * time.Second
	// NoRetries disables retries when assigned to Config.MaxRetries.
	NoRetries = -1
)

// Credentials identify one advertiser authorization.
type Credentials = auth.Credentials

// Token is a short-lived access token.
type Token = auth.Token

// TokenStore persists access tokens across processes. See auth.RedisStore.
type TokenStore = auth.Store

// Backoff configures the retry delay. Zero fields select defaults
// (500ms base, factor 2, 30s cap, ±20% jitter).
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64
}

// Config configures a Client. Only Credentials are required.
type Config struct {
	Credentials

	Region    Region // defaults to NA
	ProfileID string // sent as Amazon-Advertising-API-Scope

	// MaxRetries counts re-sends after the first attempt. Zero selects
	// DefaultMaxRetries; use NoRetries for a single attempt.
	MaxRetries int
	Timeout    time.Duration

	BaseURL  string // overrides Region
	TokenURL string // overrides the Login with Amazon endpoint

	Backoff Backoff

	// Client-side throttle per profile. Zero RequestsPerSecond means unlimited.
	RequestsPerSecond float64
	Burst             int

	ExpiryBuffer time.Duration
	TokenStore   TokenStore
	HTTPClient   *http.Client
}

func (c Config) validate() error {
	var errs []error
	if c.ClientID == "" {
		errs = append(errs, errors.New("client id is required"))
	}
	if c.ClientSecret == "" {
		errs = append(errs, errors.New("client secret is required"))
	}
	if c.RefreshToken == "" {
		errs = append(errs, errors.New("refresh token is required"))
	}
	if c.BaseURL == "" && c.Region != "" && !c.Region.Valid() {
		errs = append(errs, errors.New("unknown region "+string(c.Region)))
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("timeout must not be negative"))
	}
	if c.MaxRetries < NoRetries {
		errs = append(errs, errors.New("max retries must be >= 0, or NoRetries (-1) for a single attempt"))
	}
	return errors.Join(errs...)
}

func (c Config) withDefaults() Config {
	if c.Region == "" {
		c.Region = RegionNA
	}
	if c.BaseURL == "" {
		c.BaseURL = c.Region.BaseURL()
	}
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = DefaultMaxRetries
	case c.MaxRetries == NoRetries:
		c.MaxRetries = 0
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	return c
}

func (c Config) policy() httpclient.Policy {
	b := httpclient.DefaultBackoff()
	if c.Backoff.Base > 0 {
		b.Base = c.Backoff.Base
	}
	if c.Backoff.Max > 0 {
		b.Max = c.Backoff.Max
	}
	if c.Backoff.Factor > 0 {
		b.Factor = c.Backoff.Factor
	}
	if c.Backoff.Jitter > 0 {
		b.Jitter = c.Backoff.Jitter
	}
	return httpclient.Policy{
		MaxRetries: c.MaxRetries,
		Timeout:    c.Timeout,
		Backoff:    b,
	}
}
