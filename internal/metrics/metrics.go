package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AdsRequestsTotal tracks every HTTP attempt sent to the Amazon Ads API.
	AdsRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ads_api_requests_total",
			Help: "Total number of Amazon Ads API attempts (by method and status).",
		},
		[]string{"method", "status"},
	)

	// AdsRequestDuration measures the latency of individual attempts.
	AdsRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ads_api_request_duration_seconds",
			Help:    "Duration of Amazon Ads API attempts in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms → ~40s
		},
		[]string{"method"},
	)

	// AdsRetriesTotal counts retries by the condition that caused them.
	AdsRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ads_api_retries_total",
			Help: "Number of Amazon Ads API retries by reason.",
		},
		[]string{"reason"},
	)

	// TokenRefreshTotal counts Login with Amazon token exchanges by outcome.
	TokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ads_token_refresh_total",
			Help: "Number of access token refreshes by result.",
		},
		[]string{"result"},
	)
)

// ObserveAttempt records one HTTP attempt. status 0 means the request never got a response.
func ObserveAttempt(method string, status int, start time.Time) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	AdsRequestsTotal.WithLabelValues(method, label).Inc()
	AdsRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// IncRetry increments the retry counter for the given reason.
func IncRetry(reason string) {
	AdsRetriesTotal.WithLabelValues(reason).Inc()
}

// IncTokenRefresh increments the token refresh counter for the given result.
func IncTokenRefresh(result string) {
	TokenRefreshTotal.WithLabelValues(result).Inc()
}
