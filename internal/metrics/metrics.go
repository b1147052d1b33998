// Package metrics exposes the seat pipeline counters in Prometheus format.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all pipeline metrics. A nil *Metrics is valid and records
// nothing, so components can run without a registry in tests.
type Metrics struct {
	// Frame processing counters
	FramesRead      atomic.Uint64
	FramesSkipped   atomic.Uint64
	ReadErrors      atomic.Uint64
	DetectionErrors atomic.Uint64

	// Scan counters
	LostItemScans atomic.Uint64

	// Notification counters
	NotifySent     atomic.Uint64
	NotifyFailures atomic.Uint64

	// Events applied by the consumer, by type
	events *prometheus.CounterVec

	// Events dropped because the seat is unknown
	EventsDiscarded atomic.Uint64

	registry *prometheus.Registry
}

// New creates a new Metrics instance with its own Prometheus registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seatvision_events_applied_total",
				Help: "Seat events applied by the occupancy consumer",
			},
			[]string{"event_type"},
		),
	}

	m.registerPrometheusMetrics()

	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	m.registry.MustRegister(m.events)

	counters := []struct {
		name, help string
		v          *atomic.Uint64
	}{
		{"seatvision_frames_read_total", "Total frames read from capture sources", &m.FramesRead},
		{"seatvision_frames_skipped_total", "Frames whose presence result was reused by the motion gate", &m.FramesSkipped},
		{"seatvision_read_errors_total", "Total capture read errors", &m.ReadErrors},
		{"seatvision_detection_errors_total", "Total detection adapter errors", &m.DetectionErrors},
		{"seatvision_lost_item_scans_total", "Lost-item scans executed", &m.LostItemScans},
		{"seatvision_notify_sent_total", "Checkout notifications delivered", &m.NotifySent},
		{"seatvision_notify_failures_total", "Checkout notifications abandoned", &m.NotifyFailures},
		{"seatvision_events_discarded_total", "Events dropped for unknown seats", &m.EventsDiscarded},
	}
	for _, c := range counters {
		v := c.v
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: c.name, Help: c.help},
			func() float64 { return float64(v.Load()) },
		))
	}
}

// TrackBacklog registers a gauge sampling queueLen on every scrape.
// It must be called at most once.
func (m *Metrics) TrackBacklog(queueLen func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "seatvision_event_queue_backlog",
			Help: "Events waiting for the occupancy consumer",
		},
		func() float64 { return float64(queueLen()) },
	))
}

// Inc adds one to c when m is non-nil.
func (m *Metrics) Inc(c func(*Metrics) *atomic.Uint64) {
	if m == nil {
		return
	}
	c(m).Add(1)
}

// EventApplied counts one consumed event of the given type.
func (m *Metrics) EventApplied(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Field selectors for Inc.
var (
	FramesRead      = func(m *Metrics) *atomic.Uint64 { return &m.FramesRead }
	FramesSkipped   = func(m *Metrics) *atomic.Uint64 { return &m.FramesSkipped }
	ReadErrors      = func(m *Metrics) *atomic.Uint64 { return &m.ReadErrors }
	DetectionErrors = func(m *Metrics) *atomic.Uint64 { return &m.DetectionErrors }
	LostItemScans   = func(m *Metrics) *atomic.Uint64 { return &m.LostItemScans }
	NotifySent      = func(m *Metrics) *atomic.Uint64 { return &m.NotifySent }
	NotifyFailures  = func(m *Metrics) *atomic.Uint64 { return &m.NotifyFailures }
	EventsDiscarded = func(m *Metrics) *atomic.Uint64 { return &m.EventsDiscarded }
)
