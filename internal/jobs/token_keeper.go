package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// TenantSource lists the tenants whose credentials are configured.
type TenantSource interface {
	DiscoverTenants(ctx context.Context) ([]string, error)
}

// Warmer authenticates tenants ahead of traffic and reports per-tenant failures.
type Warmer interface {
	Warm(ctx context.Context, tenants []string, concurrency int) map[string]error
}

// TokenKeeper periodically rediscovers tenants and re-authenticates them so
// newly provisioned secrets get a client and a token before the first request.
type TokenKeeper struct {
	logger      *zap.Logger
	tenants     TenantSource
	warmer      Warmer
	interval    time.Duration
	concurrency int
	stopCh      chan struct{}
}

// NewTokenKeeper constructs a background job that runs every interval.
func NewTokenKeeper(logger *zap.Logger, tenants TenantSource, warmer Warmer, interval time.Duration, concurrency int) *TokenKeeper {
	return &TokenKeeper{
		logger:      logger,
		tenants:     tenants,
		warmer:      warmer,
		interval:    interval,
		concurrency: concurrency,
		stopCh:      make(chan struct{}),
	}
}

// Start runs one cycle immediately, then one per interval, until ctx is done
// or Stop is called.
func (k *TokenKeeper) Start(ctx context.Context) {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	k.logger.Info("token_keeper.started", zap.Duration("interval", k.interval))
	k.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			k.RunOnce(ctx)
		case <-k.stopCh:
			k.logger.Info("token_keeper.stopped (manual stop)")
			return
		case <-ctx.Done():
			k.logger.Info("token_keeper.stopped (context canceled)")
			return
		}
	}
}

// Stop halts the keeper. It must be called at most once.
func (k *TokenKeeper) Stop() {
	close(k.stopCh)
}

// RunOnce executes one discover-and-warm cycle and returns the number of
// tenants that failed to authenticate.
func (k *TokenKeeper) RunOnce(ctx context.Context) int {
	start := time.Now()

	tenants, err := k.tenants.DiscoverTenants(ctx)
	if err != nil {
		k.logger.Warn("token_keeper.discover_failed", zap.Error(err))
		return 0
	}
	if len(tenants) == 0 {
		k.logger.Debug("token_keeper.no_tenants")
		return 0
	}

	failed := k.warmer.Warm(ctx, tenants, k.concurrency)

	k.logger.Info("token_keeper.cycle_done",
		zap.Int("tenants", len(tenants)),
		zap.Int("failed", len(failed)),
		zap.Duration("duration", time.Since(start)))
	return len(failed)
}
