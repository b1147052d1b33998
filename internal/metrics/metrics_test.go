package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetrics_Handler(t *testing.T) {
	backlog := 3
	m := New()
	m.TrackBacklog(func() int { return backlog })

	m.Inc(FramesRead)
	m.Inc(FramesRead)
	m.Inc(NotifyFailures)
	m.EventApplied("CHECK_OUT")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	want := []string{
		"seatvision_frames_read_total 2",
		"seatvision_notify_failures_total 1",
		`seatvision_events_applied_total{event_type="CHECK_OUT"} 1`,
		"seatvision_event_queue_backlog 3",
	}
	for _, w := range want {
		if !strings.Contains(text, w) {
			t.Errorf("metrics output missing %q", w)
		}
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	// Must not panic
	m.Inc(ReadErrors)
	m.EventApplied("CHECK_IN")
}

func TestMetrics_NoQueueGauge(t *testing.T) {
	m := New()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if strings.Contains(rec.Body.String(), "seatvision_event_queue_backlog") {
		t.Error("backlog gauge should not be registered without a queue")
	}
}
