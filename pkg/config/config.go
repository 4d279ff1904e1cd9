package config

import (
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime configuration for the ads-adapter gateway.
type Config struct {
	ServiceName string
	Env         string
	Venue       string
	LogLevel    string
	Port        int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	HTTPBodyLimit    int

	// SecretsSource selects where tenant credentials come from: "aws" or "env".
	SecretsSource string
	AWSRegion     string
	CacheTTL      time.Duration
	CleanupFreq   time.Duration

	// RedisAddr enables the shared token store when non-empty.
	RedisAddr string
	RedisDB   int
	RedisPass string

	// Amazon Ads client defaults applied to every tenant client.
	AdsRegion         string
	AdsMaxRetries     int
	AdsTimeout        time.Duration
	AdsBaseDelay      time.Duration
	AdsMaxDelay       time.Duration
	AdsRequestsPerSec float64
	AdsBurst          int
	AdsTokenURL       string

	// TokenKeepInterval re-authenticates every discovered tenant on this
	// period. Zero disables the job.
	TokenKeepInterval time.Duration
	WarmConcurrency   int
}

// Load loads configuration from environment variables and optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServiceName:       GetEnv("SERVICE_NAME", "ads-adapter"),
		Env:               GetEnv("ENV", "dev"),
		Venue:             "amazon-ads",
		LogLevel:          GetEnv("LOG_LEVEL", "info"),
		Port:              GetEnvInt("ADS_PORT", 9040),
		HTTPReadTimeout:   GetEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second),
		HTTPWriteTimeout:  GetEnvDuration("HTTP_WRITE_TIMEOUT", 60*time.Second),
		HTTPIdleTimeout:   GetEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		HTTPBodyLimit:     GetEnvInt("HTTP_BODY_LIMIT", 1*1024*1024),
		SecretsSource:     GetEnv("SECRETS_SOURCE", "aws"),
		AWSRegion:         GetEnv("AWS_REGION", "us-east-2"),
		CacheTTL:          GetEnvDuration("CACHE_TTL", 1*time.Hour),
		CleanupFreq:       GetEnvDuration("CACHE_CLEANUP_FREQ", 10*time.Minute),
		RedisAddr:         GetEnv("REDIS_ADDR", ""),
		RedisDB:           GetEnvInt("REDIS_DB", 0),
		RedisPass:         GetEnv("REDIS_PASS", ""),
		AdsRegion:         GetEnv("ADS_REGION", "NA"),
		AdsMaxRetries:     GetEnvInt("ADS_MAX_RETRIES", 3),
		AdsTimeout:        GetEnvDuration("ADS_TIMEOUT", 30*time.Second),
		AdsBaseDelay:      GetEnvDuration("ADS_BACKOFF_BASE", 500*time.Millisecond),
		AdsMaxDelay:       GetEnvDuration("ADS_BACKOFF_MAX", 30*time.Second),
		AdsRequestsPerSec: GetEnvFloat("ADS_REQUESTS_PER_SECOND", 0),
		AdsBurst:          GetEnvInt("ADS_BURST", 5),
		AdsTokenURL:       GetEnv("ADS_TOKEN_URL", ""),
		TokenKeepInterval: GetEnvDuration("ADS_TOKEN_KEEP_INTERVAL", 45*time.Minute),
		WarmConcurrency:   GetEnvInt("ADS_WARM_CONCURRENCY", 4),
	}
}
