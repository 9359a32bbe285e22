package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// engineMetrics collects pipeline counters into a per-engine registry so
// the debug server can expose them without global state.
type engineMetrics struct {
	registry *prometheus.Registry

	frames        prometheus.Counter
	frameErrors   prometheus.Counter
	phaseDuration *prometheus.HistogramVec
	rebuilds      prometheus.Counter
	layouts       prometheus.Counter
	paints        prometheus.Counter
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	liveNodes     prometheus.Gauge
}

func newEngineMetrics() *engineMetrics {
	m := &engineMetrics{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reflow",
			Name:      "frames_total",
			Help:      "Frames rendered since engine start.",
		}),
		frameErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reflow",
			Name:      "frame_errors_total",
			Help:      "Frames that failed with an error.",
		}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reflow",
			Name:      "frame_phase_duration_seconds",
			Help:      "Time spent per frame phase.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}, []string{"phase"}),
		rebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reflow",
			Name:      "node_rebuilds_total",
			Help:      "Node rebuilds performed across all frames.",
		}),
		layouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reflow",
			Name:      "node_layouts_total",
			Help:      "Layout computations performed across all frames.",
		}),
		paints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reflow",
			Name:      "node_paints_total",
			Help:      "Display list recordings performed across all frames.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reflow",
			Name:      "layout_cache_hits_total",
			Help:      "Layout cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reflow",
			Name:      "layout_cache_misses_total",
			Help:      "Layout cache misses.",
		}),
		liveNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reflow",
			Name:      "live_nodes",
			Help:      "Nodes currently mounted in the tree.",
		}),
	}
	m.registry.MustRegister(
		m.frames, m.frameErrors, m.phaseDuration,
		m.rebuilds, m.layouts, m.paints,
		m.cacheHits, m.cacheMisses, m.liveNodes,
	)
	return m
}
