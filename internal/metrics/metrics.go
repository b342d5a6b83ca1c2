package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erpquery_queries_total",
			Help: "Total number of natural-language queries processed",
		},
		[]string{"command", "outcome"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "erpquery_query_duration_seconds",
			Help:    "End-to-end query processing time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	RemoteFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "erpquery_remote_fetch_duration_seconds",
			Help:    "Duration of OData fetches in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"service"},
	)

	RemoteFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erpquery_remote_fetch_errors_total",
			Help: "Total number of failed OData fetches",
		},
		[]string{"service", "error_code"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erpquery_cache_lookups_total",
			Help: "Cache lookups by cache name and result",
		},
		[]string{"cache", "result"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "erpquery_active_sessions",
			Help: "Number of conversation sessions currently held",
		},
	)
)

// ObserveCache records a cache hit or miss.
func ObserveCache(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(cache, result).Inc()
}
