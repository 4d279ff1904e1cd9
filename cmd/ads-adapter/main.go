package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Checker-Finance/ads-adapter/internal/api"
	"github.com/Checker-Finance/ads-adapter/internal/auth"
	"github.com/Checker-Finance/ads-adapter/internal/clientpool"
	"github.com/Checker-Finance/ads-adapter/internal/jobs"
	internalsecrets "github.com/Checker-Finance/ads-adapter/internal/secrets"
	"github.com/Checker-Finance/ads-adapter/pkg/ads"
	"github.com/Checker-Finance/ads-adapter/pkg/config"
	"github.com/Checker-Finance/ads-adapter/pkg/logger"
	"github.com/Checker-Finance/ads-adapter/pkg/secrets"
	"github.com/Checker-Finance/ads-adapter/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Infow("starting ["+cfg.ServiceName+"]...", "venue", cfg.Venue)

	// --- Secrets provider ---
	var provider secrets.Provider
	switch cfg.SecretsSource {
	case "env":
		p, err := secrets.NewEnvProvider("ADS_SECRETS_JSON")
		if err != nil {
			logg.Fatalw("failed to load secrets from environment", "error", err)
		}
		provider = p
	default:
		p, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
		if err != nil {
			logg.Fatalw("failed to create AWS Secrets Manager provider", "error", err)
		}
		provider = p
	}

	// --- Per-tenant config resolver (secrets cached in-memory) ---
	configCache := secrets.NewCache[internalsecrets.TenantConfig](cfg.CacheTTL)
	go configCache.StartCleaner(ctx, cfg.CleanupFreq)

	resolver := internalsecrets.NewCredentialResolver(logg.Desugar(), cfg.Env, provider, configCache)

	tenants, err := resolver.DiscoverTenants(ctx)
	if err != nil {
		logg.Warnw("failed to discover tenants", "error", err)
	} else {
		logg.Infow("discovered Amazon Ads tenants", "count", len(tenants), "tenants", tenants)
	}

	// --- Shared token store (optional) ---
	var (
		rdb    *redis.Client
		health api.HealthChecker
		store  ads.TokenStore
	)
	if cfg.RedisAddr != "" {
		opts, err := auth.RedisOptions(cfg.RedisAddr, cfg.RedisDB, cfg.RedisPass)
		if err != nil {
			logg.Fatalw("invalid REDIS_ADDR", "addr", utils.MaskDSN(cfg.RedisAddr), "error", err)
		}
		rdb = redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logg.Warnw("redis unreachable, tokens fall back to the exchange", "addr", utils.MaskDSN(cfg.RedisAddr), "error", err)
		} else {
			logg.Infow("token store connected", "addr", utils.MaskDSN(cfg.RedisAddr))
		}
		cancel()
		rs := auth.NewRedisStore(rdb)
		store, health = rs, rs
	}

	// --- Base client settings ---
	region, err := ads.ParseRegion(cfg.AdsRegion)
	if err != nil {
		logg.Fatalw("invalid ADS_REGION", "error", err)
	}
	maxRetries := cfg.AdsMaxRetries
	if maxRetries == 0 {
		maxRetries = ads.NoRetries
	}
	base := ads.Config{
		Region:     region,
		MaxRetries: maxRetries,
		Timeout:    cfg.AdsTimeout,
		TokenURL:   cfg.AdsTokenURL,
		Backoff: ads.Backoff{
			Base: cfg.AdsBaseDelay,
			Max:  cfg.AdsMaxDelay,
		},
		RequestsPerSecond: cfg.AdsRequestsPerSec,
		Burst:             cfg.AdsBurst,
		TokenStore:        store,
	}

	pool := clientpool.New(logg.Desugar(), resolver, base)

	// --- Token keeper ---
	var keeper *jobs.TokenKeeper
	if cfg.TokenKeepInterval > 0 {
		keeper = jobs.NewTokenKeeper(logg.Desugar(), resolver, pool, cfg.TokenKeepInterval, cfg.WarmConcurrency)
		go keeper.Start(ctx)
	} else if len(tenants) > 0 {
		go pool.Warm(ctx, tenants, cfg.WarmConcurrency)
	}

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
	})

	adsHandler := api.NewAdsHandler(logg.Desugar(), pool, resolver)
	api.RegisterRoutes(app, logg.Desugar(), health, adsHandler)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	logg.Infow("["+cfg.ServiceName+"] running",
		"env", cfg.Env,
		"venue", cfg.Venue,
		"region", region,
		"secrets_source", cfg.SecretsSource,
		"token_store", rdb != nil,
		"discovered_tenants", len(tenants))

	<-ctx.Done()
	logg.Infof("shutting down [%s]...", cfg.ServiceName)

	if keeper != nil {
		keeper.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			logg.Warnw("redis.close_failed", "error", err)
		}
	}
}
