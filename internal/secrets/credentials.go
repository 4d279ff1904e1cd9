package secrets

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/Checker-Finance/ads-adapter/pkg/ads"
	pkgsecrets "github.com/Checker-Finance/ads-adapter/pkg/secrets"
)

// Venue is the last segment of every Amazon Ads tenant secret name.
const Venue = "amazon-ads"

// TenantConfig is what a tenant secret holds.
type TenantConfig struct {
	Credentials ads.Credentials
	Region      ads.Region // empty keeps the service default
	ProfileID   string
	MaxRetries  int // zero keeps the service default
}

// CredentialResolver resolves Amazon Ads tenant configuration.
type CredentialResolver = Resolver[TenantConfig]

// NewCredentialResolver builds a resolver for secrets named {env}/{tenant}/amazon-ads.
func NewCredentialResolver(
	logger *zap.Logger,
	env string,
	provider pkgsecrets.Provider,
	cache *pkgsecrets.Cache[TenantConfig],
) *CredentialResolver {
	return NewResolver(logger, env, Venue, provider, cache, parseTenantConfig)
}

func parseTenantConfig(m map[string]string) (TenantConfig, error) {
	cfg := TenantConfig{
		Credentials: ads.Credentials{
			ClientID:     m["client_id"],
			ClientSecret: m["client_secret"],
			RefreshToken: m["refresh_token"],
		},
		ProfileID: m["profile_id"],
	}
	if cfg.Credentials.ClientID == "" {
		return TenantConfig{}, fmt.Errorf("missing required field: client_id")
	}
	if cfg.Credentials.ClientSecret == "" {
		return TenantConfig{}, fmt.Errorf("missing required field: client_secret")
	}
	if cfg.Credentials.RefreshToken == "" {
		return TenantConfig{}, fmt.Errorf("missing required field: refresh_token")
	}

	if raw := m["region"]; raw != "" {
		region, err := ads.ParseRegion(raw)
		if err != nil {
			return TenantConfig{}, err
		}
		cfg.Region = region
	}

	if raw := m["max_retries"]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return TenantConfig{}, fmt.Errorf("invalid max_retries %q", raw)
		}
		cfg.MaxRetries = n
		if n == 0 {
			cfg.MaxRetries = ads.NoRetries
		}
	}
	return cfg, nil
}
