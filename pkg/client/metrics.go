package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for Bungie client operations.
var (
	bungieRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bungie_requests_total",
		Help: "Total Bungie API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	bungieRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bungie_request_duration_seconds",
		Help:    "Bungie API request duration in seconds by endpoint, retries included",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	bungieErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bungie_errors_total",
		Help: "Total Bungie API errors by class",
	}, []string{"class"})

	bungieRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bungie_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	bungieRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bungie_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30},
	}, []string{"error_class"})

	bungieRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bungie_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)
