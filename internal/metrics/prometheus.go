// Package metrics exposes real Prometheus text exposition at /metrics.
// The teacher's own /api/v1/metrics hand-rolls a JSON blob; this uses
// prometheus/client_golang instead, the way pronitdas-poker-platform-b2b
// in the example pack wires it for its own real-time scoring service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fraudmesh/fraudmesh/internal/risk"
)

// Prometheus implements risk.Metrics.
type Prometheus struct {
	eventsTotal     *prometheus.CounterVec
	eventLatencyMS  prometheus.Histogram
	graphNodes      prometheus.Gauge
	graphEdges      prometheus.Gauge
	cacheHitsTotal  prometheus.Counter
	cacheMissTotal  prometheus.Counter
}

// NewPrometheus registers the fraud engine's metric family on reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	factory := promauto.With(reg)
	return &Prometheus{
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fraudmesh_events_total",
			Help: "Transaction events processed, by final risk category.",
		}, []string{"category"}),
		eventLatencyMS: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fraudmesh_event_latency_ms",
			Help:    "End-to-end per-event processing latency in milliseconds.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		graphNodes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fraudmesh_graph_nodes",
			Help: "Current node count in the in-process entity graph.",
		}),
		graphEdges: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fraudmesh_graph_edges",
			Help: "Current edge count in the in-process entity graph.",
		}),
		cacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "fraudmesh_cache_hits_total",
			Help: "Hot-result cache hits.",
		}),
		cacheMissTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "fraudmesh_cache_misses_total",
			Help: "Hot-result cache misses.",
		}),
	}
}

func (p *Prometheus) ObserveEvent(latency time.Duration, category risk.Category) {
	p.eventsTotal.WithLabelValues(string(category)).Inc()
	p.eventLatencyMS.Observe(float64(latency.Microseconds()) / 1000.0)
}

func (p *Prometheus) ObserveCache(hit bool) {
	if hit {
		p.cacheHitsTotal.Inc()
		return
	}
	p.cacheMissTotal.Inc()
}

func (p *Prometheus) SetGraphSize(nodes, edges int) {
	p.graphNodes.Set(float64(nodes))
	p.graphEdges.Set(float64(edges))
}
