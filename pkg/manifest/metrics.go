package manifest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// manifestRefreshesTotal counts update checks by outcome:
	// "downloaded", "current", "stale" or "failed".
	manifestRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "manifest_refreshes_total",
			Help: "Total number of manifest update checks by result",
		},
		[]string{"result"},
	)

	manifestItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "manifest_items",
			Help: "Number of item definitions currently served",
		},
	)

	manifestSearchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "manifest_searches_total",
			Help: "Total number of item name searches",
		},
	)
)
