package service

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"net/http"

	"github.com/canopy-project/canopy/internal/feedback"
)

// Metrics owns the service's Prometheus registry and a small in-memory
// mirror of per-route request counts, so the JSON /metrics response can report
// current values without scraping the registry's wire format.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	mu     sync.Mutex
	counts map[string]map[int]int64
}

// NewMetrics registers the service's Prometheus collectors on a dedicated
// registry (not the global default, so tests can construct independent
// instances).
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "canopy",
			Subsystem: "service",
			Name:      "requests_total",
			Help:      "HTTP requests served, by route and status code.",
		}, []string{"route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "canopy",
			Subsystem: "service",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency, by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "canopy",
			Subsystem: "service",
			Name:      "query_cache_hits_total",
			Help:      "Query cache hits across all repos.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "canopy",
			Subsystem: "service",
			Name:      "query_cache_misses_total",
			Help:      "Query cache misses across all repos.",
		}),
		counts: make(map[string]map[int]int64),
	}

	registry.MustRegister(m.requestsTotal, m.requestDuration, m.cacheHits, m.cacheMisses)
	return m
}

// ObserveRequest records one completed HTTP request against both the
// Prometheus registry and the JSON snapshot mirror.
func (m *Metrics) ObserveRequest(route string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(route, statusLabel(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	byStatus, ok := m.counts[route]
	if !ok {
		byStatus = make(map[int]int64)
		m.counts[route] = byStatus
	}
	byStatus[status]++
}

// ObserveCache records a query-cache hit or miss.
func (m *Metrics) ObserveCache(hit bool) {
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// PromHandler exposes the registry in Prometheus text exposition format, for
// scrapers that want it alongside the JSON analytics payload served at
// GET /metrics.
func (m *Metrics) PromHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RouteCounts snapshots per-route, per-status request counts.
func (m *Metrics) RouteCounts() map[string]map[int]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]map[int]int64, len(m.counts))
	for route, byStatus := range m.counts {
		cp := make(map[int]int64, len(byStatus))
		for status, n := range byStatus {
			cp[status] = n
		}
		out[route] = cp
	}
	return out
}

func statusLabel(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// GlobEvidence is one glob's score, for the /metrics evidence block.
type GlobEvidence struct {
	Glob  string  `json:"glob"`
	Score float64 `json:"score"`
}

// NodeTypeEvidence is one node type's expand-acceptance prior.
type NodeTypeEvidence struct {
	NodeType string  `json:"node_type"`
	Score    float64 `json:"score"`
}

// Evidence is the top-N feedback-derived ranking signal for one repo,
// matching the original implementation's evidence ranking.
type Evidence struct {
	TopGlobs     []GlobEvidence     `json:"top_globs,omitempty"`
	TopNodeTypes []NodeTypeEvidence `json:"top_node_types,omitempty"`
}

// evidenceFromFeedback builds the top-N globs/node-types evidence block for
// one repo's feedback store. n <= 0 means unlimited.
func evidenceFromFeedback(fb *feedback.Store, n int) Evidence {
	var ev Evidence
	if fb == nil {
		return ev
	}

	recentGlobs := fb.RecentGlobs(n)
	if len(recentGlobs) > 0 {
		scores := fb.GlobScores(recentGlobs, feedback.DefaultHalfLifeDays)
		for glob, score := range scores {
			ev.TopGlobs = append(ev.TopGlobs, GlobEvidence{Glob: glob, Score: score})
		}
		sort.Slice(ev.TopGlobs, func(i, j int) bool { return ev.TopGlobs[i].Score > ev.TopGlobs[j].Score })
		if n > 0 && len(ev.TopGlobs) > n {
			ev.TopGlobs = ev.TopGlobs[:n]
		}
	}

	priors := fb.NodeTypePriors()
	for nt, score := range priors {
		ev.TopNodeTypes = append(ev.TopNodeTypes, NodeTypeEvidence{NodeType: nt.String(), Score: score})
	}
	sort.Slice(ev.TopNodeTypes, func(i, j int) bool { return ev.TopNodeTypes[i].Score > ev.TopNodeTypes[j].Score })
	if n > 0 && len(ev.TopNodeTypes) > n {
		ev.TopNodeTypes = ev.TopNodeTypes[:n]
	}

	return ev
}
