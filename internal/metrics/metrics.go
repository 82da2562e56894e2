package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpstreamCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sapweather_upstream_calls_total",
			Help: "Total weather provider API calls",
		},
		[]string{"provider", "status"},
	)

	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sapweather_upstream_latency_seconds",
			Help:    "Weather provider API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	WeatherCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sapweather_weather_cache_lookups_total",
			Help: "Weather cache point lookups by result (hit, miss, stale)",
		},
		[]string{"result"},
	)

	CorrelationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sapweather_correlation_requests_total",
			Help: "Correlation requests by how they were served (cached, shared, computed, failed)",
		},
		[]string{"served"},
	)

	RegressionFits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sapweather_regression_fits_total",
			Help: "Regression fits by model tier (full, minimal, failed)",
		},
		[]string{"tier"},
	)
)
