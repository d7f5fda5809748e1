// Package observability exposes Prometheus metrics for the HTTP layer and
// the graph overlay.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the server's collectors on a private registry, so tests
// can create as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	DocumentsWritten *prometheus.CounterVec
	DocumentsDeleted *prometheus.CounterVec

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	GraphNodes      prometheus.Gauge
	GraphEdges      prometheus.Gauge
	QueriesTotal    *prometheus.CounterVec
	NodesTraversed  prometheus.Counter
	ActiveSessions  prometheus.Gauge
}

// New creates a metrics set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rserv_http_requests_total",
			Help: "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rserv_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		DocumentsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rserv_documents_written_total",
			Help: "Document creates and updates by entity.",
		}, []string{"entity"}),
		DocumentsDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rserv_documents_deleted_total",
			Help: "Document deletes by entity, cascades included.",
		}, []string{"entity"}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "rserv_cache_hits_total",
			Help: "Read cache hits.",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "rserv_cache_misses_total",
			Help: "Read cache misses.",
		}),
		GraphNodes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rserv_graph_nodes",
			Help: "Nodes currently in the graph overlay.",
		}),
		GraphEdges: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rserv_graph_edges",
			Help: "Forward edges currently in the graph overlay.",
		}),
		QueriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rserv_graph_queries_total",
			Help: "Submitted graph queries by final status.",
		}, []string{"status"}),
		NodesTraversed: factory.NewCounter(prometheus.CounterOpts{
			Name: "rserv_graph_nodes_traversed_total",
			Help: "Nodes visited across all graph query executions.",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rserv_graph_query_sessions",
			Help: "Query sessions currently retained.",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
