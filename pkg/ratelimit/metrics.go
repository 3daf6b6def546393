package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	spacerWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bungie_ratelimit_wait_seconds",
		Help:    "Time callers spent waiting for their dispatch slot",
		Buckets: []float64{0, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	spacerThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bungie_ratelimit_throttles_total",
		Help: "Total number of upstream ThrottleSeconds hints applied",
	})
)
