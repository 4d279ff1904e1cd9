package secrets

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	pkgsecrets "github.com/Checker-Finance/ads-adapter/pkg/secrets"
)

// Resolver resolves per-tenant configuration from a secrets provider and
// caches the parsed result. It is generic over the parsed type T.
//
// Secret naming convention: {env}/{tenant}/{venue}
type Resolver[T any] struct {
	logger   *zap.Logger
	env      string
	venue    string
	provider pkgsecrets.Provider
	cache    *pkgsecrets.Cache[T]
	parse    func(map[string]string) (T, error)
}

// NewResolver constructs a multi-tenant resolver. parse validates and converts
// the raw secret map.
func NewResolver[T any](
	logger *zap.Logger,
	env string,
	venue string,
	provider pkgsecrets.Provider,
	cache *pkgsecrets.Cache[T],
	parse func(map[string]string) (T, error),
) *Resolver[T] {
	return &Resolver[T]{
		logger:   logger,
		env:      env,
		venue:    venue,
		provider: provider,
		cache:    cache,
		parse:    parse,
	}
}

func (r *Resolver[T]) cacheKey(tenant string) string {
	return strings.ToLower(tenant + "|" + r.venue)
}

// SecretName returns the secret that holds tenant's configuration.
func (r *Resolver[T]) SecretName(tenant string) string {
	return strings.ToLower(fmt.Sprintf("%s/%s/%s", r.env, tenant, r.venue))
}

// Resolve returns the cached config for tenant, fetching it on a miss.
func (r *Resolver[T]) Resolve(ctx context.Context, tenant string) (T, error) {
	var zero T
	if tenant == "" {
		return zero, fmt.Errorf("resolve: tenant is required")
	}
	key := r.cacheKey(tenant)
	if cfg, ok := r.cache.Get(key); ok {
		return cfg, nil
	}

	name := r.SecretName(tenant)
	raw, err := r.provider.GetSecret(ctx, name)
	if err != nil {
		r.logger.Warn("secrets.fetch_failed",
			zap.String("key", name),
			zap.Error(err))
		return zero, fmt.Errorf("resolve config for tenant %q: %w", tenant, err)
	}

	cfg, err := r.parse(raw)
	if err != nil {
		return zero, fmt.Errorf("parse secret %q: %w", name, err)
	}
	r.cache.Put(key, cfg)

	r.logger.Info("secrets.tenant_config_resolved",
		zap.String("tenant", tenant),
		zap.String("venue", r.venue))
	return cfg, nil
}

// Invalidate drops the cached config, forcing the next Resolve to refetch.
func (r *Resolver[T]) Invalidate(tenant string) {
	r.cache.Bust(r.cacheKey(tenant))
}

// DiscoverTenants lists the tenants that have a secret for this venue.
func (r *Resolver[T]) DiscoverTenants(ctx context.Context) ([]string, error) {
	prefix := strings.ToLower(r.env + "/")
	suffix := "/" + strings.ToLower(r.venue)

	names, err := r.provider.ListSecrets(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("discover tenants: %w", err)
	}

	var tenants []string
	for _, name := range names {
		lower := strings.ToLower(name)
		if !strings.HasPrefix(lower, prefix) || !strings.HasSuffix(lower, suffix) {
			continue
		}
		tenant := strings.TrimSuffix(strings.TrimPrefix(lower, prefix), suffix)
		if tenant != "" && !strings.Contains(tenant, "/") {
			tenants = append(tenants, tenant)
		}
	}

	r.logger.Info("secrets.tenants_discovered",
		zap.Int("count", len(tenants)),
		zap.Strings("tenants", tenants))
	return tenants, nil
}
