package collection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beagle",
		Subsystem: "collection",
		Name:      "cache_lookups_total",
		Help:      "Page cache lookups by result (hit, miss).",
	}, []string{"result"})

	cacheClears = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "beagle",
		Subsystem: "collection",
		Name:      "cache_clears_total",
		Help:      "Whole-cache invalidations.",
	})

	fetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beagle",
		Subsystem: "collection",
		Name:      "page_fetches_total",
		Help:      "Page fetches by outcome (ok, error, stale, superseded).",
	}, []string{"outcome"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "beagle",
		Subsystem: "collection",
		Name:      "page_fetch_duration_seconds",
		Help:      "Latency of remote page fetches.",
		Buckets:   prometheus.DefBuckets,
	})

	detailFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beagle",
		Subsystem: "collection",
		Name:      "detail_fetches_total",
		Help:      "Row detail fetches by outcome (ok, error).",
	}, []string{"outcome"})
)
