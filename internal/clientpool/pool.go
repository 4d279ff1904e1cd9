// Package clientpool keeps one Amazon Ads client per tenant.
package clientpool

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Checker-Finance/ads-adapter/internal/secrets"
	"github.com/Checker-Finance/ads-adapter/pkg/ads"
	"github.com/Checker-Finance/ads-adapter/pkg/utils"
)

// ConfigResolver returns a tenant's credentials and settings.
type ConfigResolver interface {
	Resolve(ctx context.Context, tenant string) (secrets.TenantConfig, error)
	Invalidate(tenant string)
}

// Pool lazily builds and caches clients. Every profile of a tenant shares the
// tenant's client, and so its token.
type Pool struct {
	logger   *zap.Logger
	resolver ConfigResolver
	base     ads.Config

	mu      sync.RWMutex
	clients map[string]*ads.Client
}

// New creates a pool. base supplies the settings common to all tenants
// (timeouts, retries, token store); credentials come from resolver.
func New(logger *zap.Logger, resolver ConfigResolver, base ads.Config) *Pool {
	return &Pool{
		logger:   logger,
		resolver: resolver,
		base:     base,
		clients:  make(map[string]*ads.Client),
	}
}

// Client returns the tenant's client scoped to profileID. An empty profileID
// keeps the profile from the tenant secret.
func (p *Pool) Client(ctx context.Context, tenant, profileID string) (*ads.Client, error) {
	c, err := p.tenantClient(ctx, tenant)
	if err != nil {
		return nil, err
	}
	if profileID != "" && profileID != c.ProfileID() {
		return c.WithProfile(profileID), nil
	}
	return c, nil
}

func (p *Pool) tenantClient(ctx context.Context, tenant string) (*ads.Client, error) {
	tenant = strings.ToLower(tenant)
	p.mu.RLock()
	c, ok := p.clients[tenant]
	p.mu.RUnlock()
	if ok {
		return c, nil
	}

	tc, err := p.resolver.Resolve(ctx, tenant)
	if err != nil {
		return nil, err
	}

	cfg := p.base
	cfg.Credentials = tc.Credentials
	if tc.Region != "" {
		cfg.Region = tc.Region
	}
	cfg.ProfileID = tc.ProfileID
	if tc.MaxRetries != 0 {
		cfg.MaxRetries = tc.MaxRetries
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[tenant]; ok {
		return c, nil
	}
	c, err = ads.New(p.logger.With(zap.String("tenant", tenant)), cfg)
	if err != nil {
		return nil, fmt.Errorf("tenant %q: %w", tenant, err)
	}
	p.clients[tenant] = c

	p.logger.Info("clientpool.client_created",
		zap.String("tenant", tenant),
		zap.String("region", string(cfg.Region)),
		zap.String("client_id", utils.MaskSecret(cfg.ClientID)))
	return c, nil
}

// Evict drops the tenant's client and cached secret, e.g. after its
// credentials were rejected, so the next call picks up rotated values.
func (p *Pool) Evict(tenant string) {
	tenant = strings.ToLower(tenant)
	p.mu.Lock()
	delete(p.clients, tenant)
	p.mu.Unlock()
	p.resolver.Invalidate(tenant)
	p.logger.Info("clientpool.client_evicted", zap.String("tenant", tenant))
}

// Tenants returns the tenants with a live client.
func (p *Pool) Tenants() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.clients))
	for t := range p.clients {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Warm builds clients and authenticates each tenant up front. Failures are
// logged and returned per tenant; they do not stop the others.
func (p *Pool) Warm(ctx context.Context, tenants []string, concurrency int) map[string]error {
	tasks := make([]ads.Task[struct{}], len(tenants))
	for i, tenant := range tenants {
		tasks[i] = func(ctx context.Context) (struct{}, error) {
			c, err := p.tenantClient(ctx, tenant)
			if err != nil {
				return struct{}{}, err
			}
			return struct{}{}, c.Authenticate(ctx)
		}
	}

	failed := map[string]error{}
	for i, out := range ads.Parallel(ctx, concurrency, tasks) {
		if out.Err != nil {
			failed[tenants[i]] = out.Err
			p.logger.Warn("clientpool.warm_failed",
				zap.String("tenant", tenants[i]),
				zap.Error(out.Err))
		}
	}
	return failed
}
