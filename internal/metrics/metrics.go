// Package metrics holds the Prometheus collectors shared by the
// resolver, cache, and daemon: query counts by transport, decision
// kinds, cache hit/miss/eviction counters, and daemon availability.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Queries counts every query the resolver issues, labeled by the
	// transport it went out on.
	Queries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dnsiter_queries_total", Help: "Queries sent by transport"},
		[]string{"transport"},
	)

	// Decisions counts each classification outcome of a parsed reply.
	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dnsiter_decisions_total", Help: "Classification decisions by kind"},
		[]string{"kind"},
	)

	// ResolveDuration observes end-to-end Resolve call latency.
	ResolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "dnsiter_resolve_duration_seconds", Help: "Resolve call latency", Buckets: prometheus.DefBuckets},
		[]string{"result"},
	)

	// CacheHits / CacheMisses / CacheEvictions mirror the cache's own
	// Stats counters as Prometheus series. Hits and evictions are
	// labeled by entry kind; misses carry no label.
	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dnsiter_cache_hits_total", Help: "Local cache hits"},
		[]string{"kind"},
	)
	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "dnsiter_cache_misses_total", Help: "Local cache misses"},
	)
	CacheEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dnsiter_cache_evictions_total", Help: "Local cache evictions by kind"},
		[]string{"kind"},
	)

	// DaemonAvailable is 1 while the sidecar connection is usable, 0
	// once it has dropped to unavailable.
	DaemonAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "dnsiter_daemon_available", Help: "Whether the cache sidecar connection is usable"},
	)
)

func init() {
	prometheus.MustRegister(Queries, Decisions, ResolveDuration, CacheHits, CacheMisses, CacheEvictions, DaemonAvailable)
}
