// Package metrics exposes frame-loop counters through a Prometheus registry.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the watcher's counters. Updated from the run loop with
// atomics, scraped through the /metrics handler.
type Metrics struct {
	FramesRead     atomic.Uint64
	FramesDropped  atomic.Uint64
	Detections     atomic.Uint64
	SnapshotsSaved atomic.Uint64
	EventsRecorded atomic.Uint64
	InferenceMs    atomic.Uint64

	registry *prometheus.Registry
}

// New creates a Metrics instance with its collectors registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerCollectors()
	return m
}

func (m *Metrics) registerCollectors() {
	gauges := []struct {
		name string
		help string
		load func() uint64
	}{
		{"camwatch_frames_read_total", "Total frames read from the camera stream", m.FramesRead.Load},
		{"camwatch_frames_dropped_total", "Total frame reads that failed and were retried", m.FramesDropped.Load},
		{"camwatch_detections_total", "Total objects detected across all frames", m.Detections.Load},
		{"camwatch_snapshots_saved_total", "Total snapshots saved via keypress", m.SnapshotsSaved.Load},
		{"camwatch_events_recorded_total", "Total detection events persisted", m.EventsRecorded.Load},
		{"camwatch_inference_ms", "Most recent inference time in milliseconds", m.InferenceMs.Load},
	}

	for _, g := range gauges {
		load := g.load
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			func() float64 { return float64(load()) },
		))
	}
}

// Handler returns the HTTP handler serving the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
