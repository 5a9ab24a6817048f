package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kiesman99/posterize/internal/download"
)

// Metrics are the prometheus collectors of the render API.
type Metrics struct {
	tiles    *prometheus.CounterVec
	renders  *prometheus.CounterVec
	duration prometheus.Histogram
	gatherer prometheus.Gatherer
}

// NewMetrics registers the collectors with reg. A nil reg uses a fresh
// registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		tiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "posterize",
			Name:      "tiles_total",
			Help:      "Tiles resolved by source (network, cache, hole).",
		}, []string{"source"}),
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "posterize",
			Name:      "renders_total",
			Help:      "Render requests by result (complete, partial, failed).",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "posterize",
			Name:      "render_duration_seconds",
			Help:      "Time spent rendering a poster map.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		gatherer: reg,
	}
	reg.MustRegister(m.tiles, m.renders, m.duration)
	return m
}

// Handler serves the metrics in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) observeReport(r *download.Report) {
	holes := len(r.Holes())
	m.tiles.WithLabelValues("network").Add(float64(r.Fetched))
	m.tiles.WithLabelValues("cache").Add(float64(r.CacheHits))
	m.tiles.WithLabelValues("hole").Add(float64(holes))
	if holes > 0 {
		m.renders.WithLabelValues("partial").Inc()
	} else {
		m.renders.WithLabelValues("complete").Inc()
	}
}

func (m *Metrics) renderFailed() {
	m.renders.WithLabelValues("failed").Inc()
}
