package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GatewayRequests counts upstream API calls by endpoint and outcome.
	GatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diary",
		Subsystem: "gateway",
		Name:      "requests_total",
		Help:      "Upstream diary API requests by endpoint and result.",
	}, []string{"endpoint", "result"})

	// GatewayLatency observes upstream request durations.
	GatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "diary",
		Subsystem: "gateway",
		Name:      "request_duration_seconds",
		Help:      "Upstream diary API request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint"})

	// CacheLookups counts cache hits and misses per cache.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diary",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Schedule and lesson-detail cache lookups.",
	}, []string{"cache", "result"})

	// AnalysisJobs counts processed analysis jobs by type and status.
	AnalysisJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diary",
		Subsystem: "analysis",
		Name:      "jobs_total",
		Help:      "Analysis jobs processed by the worker.",
	}, []string{"type", "status"})
)

// CacheHit records a hit on the named cache.
func CacheHit(cache string) { CacheLookups.WithLabelValues(cache, "hit").Inc() }

// CacheMiss records a miss on the named cache.
func CacheMiss(cache string) { CacheLookups.WithLabelValues(cache, "miss").Inc() }
