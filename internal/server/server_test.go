package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nitz7155/HiSmartStudy/internal/camera"
	"github.com/nitz7155/HiSmartStudy/internal/occupancy"
	"github.com/nitz7155/HiSmartStudy/internal/seat"
)

type stubSeats struct {
	states  map[int]occupancy.Status
	backlog int
}

func (s *stubSeats) HandleCheckin(seatID int, usageID int64) error  { return nil }
func (s *stubSeats) HandleCheckout(seatID int, usageID int64) error { return nil }
func (s *stubSeats) LostItemResult(usageID int64) (occupancy.LostItemResult, bool) {
	return occupancy.LostItemResult{}, false
}
func (s *stubSeats) SeatStates() map[int]occupancy.Status { return s.states }
func (s *stubSeats) QueueLen() int                        { return s.backlog }

type stubCameras []camera.Status

func (c stubCameras) Status() []camera.Status { return c }

func TestServer_Health(t *testing.T) {
	s := New(Config{
		Seats:   &stubSeats{backlog: 3},
		Cameras: stubCameras{{CameraID: "cam-1", Source: "0", Healthy: true}},
	})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		contentType := rec.Header().Get("Content-Type")
		if contentType != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", contentType)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response["status"] != "ok" || response["camera_server"] != "running" {
			t.Errorf("unexpected health payload %v", response)
		}
		if response["event_queue_backlog"] != float64(3) {
			t.Errorf("event_queue_backlog = %v, want 3", response["event_queue_backlog"])
		}

		cams, ok := response["cameras"].([]interface{})
		if !ok || len(cams) != 1 {
			t.Fatalf("cameras = %v", response["cameras"])
		}
		cam := cams[0].(map[string]interface{})
		if cam["cam_id"] != "cam-1" || cam["status"] != true {
			t.Errorf("camera entry = %v", cam)
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}

		for _, method := range methods {
			req := httptest.NewRequest(method, "/health", nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_HealthWithoutCollaborators(t *testing.T) {
	s := New(Config{})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var response map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if cams, ok := response["cameras"].([]interface{}); !ok || len(cams) != 0 {
		t.Errorf("cameras = %v, want empty list", response["cameras"])
	}
}

func TestServer_SeatStates(t *testing.T) {
	usage := int64(777)
	in := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := New(Config{Seats: &stubSeats{states: map[int]occupancy.Status{
		5: {Status: seat.StateOccupied, UsageID: &usage, CheckInAt: &in, LastUpdate: in},
	}}})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/seat_states", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var states map[string]map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&states); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	st, ok := states["5"]
	if !ok {
		t.Fatalf("seat 5 missing from %v", states)
	}
	if st["status"] != "OCCUPIED" || st["usage_id"] != float64(777) {
		t.Errorf("seat 5 = %v", st)
	}
}

func TestServer_NotFound(t *testing.T) {
	s := New(Config{})

	paths := []string{"/api/nonexistent", "/camera/checkin", "/camera/events", "/metrics"}
	for _, p := range paths {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, p, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s: expected status %d, got %d", p, http.StatusNotFound, rec.Code)
		}
	}
}

func TestServer_Metrics(t *testing.T) {
	s := New(Config{Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("seatvision_frames_read_total 1\n"))
	})})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || rec.Body.Len() == 0 {
		t.Errorf("metrics status = %d, body %q", rec.Code, rec.Body.String())
	}
}

func TestServer_StaticFiles(t *testing.T) {
	tmpDir := t.TempDir()

	testContent := "<html><body>Seats</body></html>"
	if err := os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte(testContent), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	s := New(Config{StaticDir: tmpDir})

	t.Run("serves index.html at root path", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if rec.Body.String() != testContent {
			t.Errorf("expected body %q, got %q", testContent, rec.Body.String())
		}
	})

	t.Run("returns 404 for non-existent static files", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nonexistent.html", nil))

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestNew(t *testing.T) {
	t.Run("creates server with config", func(t *testing.T) {
		cfg := Config{StaticDir: "/some/path"}
		s := New(cfg)

		if s == nil {
			t.Fatal("expected non-nil server")
		}
		if s.config.StaticDir != cfg.StaticDir {
			t.Errorf("expected StaticDir %s, got %s", cfg.StaticDir, s.config.StaticDir)
		}
	})

	t.Run("server implements http.Handler", func(t *testing.T) {
		var _ http.Handler = New(Config{})
	})
}

func TestNewHTTPServer(t *testing.T) {
	srv := NewHTTPServer(":0", New(Config{}))
	if srv.Addr != ":0" || srv.ReadHeaderTimeout == 0 {
		t.Errorf("http.Server = %+v", srv)
	}
	if srv.WriteTimeout != 0 {
		t.Error("write timeout would cut websocket streams")
	}
}
