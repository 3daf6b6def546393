package raidhub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for RaidHub operations.
var (
	raidhubRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "raidhub_requests_total",
		Help: "Total RaidHub API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	raidhubRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "raidhub_request_duration_seconds",
		Help:    "RaidHub API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	raidhubLeaderboardRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "raidhub_leaderboard_requests_total",
		Help: "Leaderboard lookups by source (cache, live, stale)",
	}, []string{"source"})
)
