// Package metrics exposes the store's telemetry surface. Collection is
// done here; scraping and shipping belong to an external collector.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Set holds the quartz collectors on a private registry, so tests and
// multiple stores in one process never collide on the default registry.
type Set struct {
	Entries    prometheus.Gauge
	Partitions prometheus.Gauge
	Crystals   prometheus.Counter
	Reclaimed  prometheus.Counter
	TierSize   *prometheus.GaugeVec

	registry *prometheus.Registry
}

// New creates a Set with all collectors registered.
func New() *Set {
	s := &Set{
		Entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quartz_entries",
			Help: "Number of live memory entries.",
		}),
		Partitions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quartz_partitions",
			Help: "Number of partitions across all groups.",
		}),
		Crystals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quartz_crystals_total",
			Help: "Crystals created (single-entry and cluster promotions).",
		}),
		Reclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quartz_reclaimed_total",
			Help: "Entries reclaimed by decay sweeps.",
		}),
		TierSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quartz_tier_entries",
			Help: "Entries per storage tier.",
		}, []string{"tier"}),
		registry: prometheus.NewRegistry(),
	}

	s.registry.MustRegister(s.Entries, s.Partitions, s.Crystals, s.Reclaimed, s.TierSize)
	return s
}

// Handler returns the scrape endpoint for this Set.
func (s *Set) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}
