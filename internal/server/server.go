// Package server provides the HTTP server for the seat vision service.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/nitz7155/HiSmartStudy/internal/camera"
	"github.com/nitz7155/HiSmartStudy/internal/notify"
	"github.com/nitz7155/HiSmartStudy/internal/occupancy"
	"github.com/nitz7155/HiSmartStudy/internal/server/api"
)

// Seats is the occupancy surface the server exposes.
type Seats interface {
	api.SeatService
	SeatStates() map[int]occupancy.Status
	QueueLen() int
}

// Cameras reports per-camera health.
type Cameras interface {
	Status() []camera.Status
}

// Config holds the server configuration. Routes whose collaborator is nil
// are not registered.
type Config struct {
	StaticDir     string
	Seats         Seats
	Cameras       Cameras
	Notifier      notify.Notifier
	NotifyTimeout time.Duration
	Journal       api.EventLister
	Hub           *Hub
	Metrics       http.Handler
	Logger        *slog.Logger
}

// Server represents the HTTP server.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		logger: logger,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)

	if s.config.Seats != nil {
		seatHandler := api.NewSeatHandler(s.config.Seats, s.config.Notifier, s.config.NotifyTimeout, s.logger)
		s.mux.Handle("/camera/checkin", seatHandler)
		s.mux.Handle("/camera/checkout", seatHandler)
		s.mux.Handle("/camera/event", seatHandler)
		s.mux.Handle("/camera/lost-item/result/", seatHandler)
		s.mux.HandleFunc("/health/seat_states", s.handleSeatStates)
	}

	if s.config.Journal != nil {
		s.mux.Handle("/camera/history/", api.NewHistoryHandler(s.config.Journal))
	}

	if s.config.Hub != nil {
		s.mux.Handle("/camera/events", s.config.Hub)
	}

	if s.config.Metrics != nil {
		s.mux.Handle("/metrics", s.config.Metrics)
	}

	// Operator dashboard
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type healthResponse struct {
	Status            string          `json:"status"`
	CameraServer      string          `json:"camera_server"`
	Uptime            string          `json:"uptime"`
	Cameras           []camera.Status `json:"cameras"`
	EventQueueBacklog int             `json:"event_queue_backlog"`
}

// handleHealth handles GET requests to /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := healthResponse{
		Status:       "ok",
		CameraServer: "running",
		Uptime:       time.Since(s.start).String(),
		Cameras:      []camera.Status{},
	}
	if s.config.Cameras != nil {
		response.Cameras = s.config.Cameras.Status()
	}
	if s.config.Seats != nil {
		response.EventQueueBacklog = s.config.Seats.QueueLen()
	}

	writeJSON(w, response)
}

// handleSeatStates handles GET requests to /health/seat_states.
func (s *Server) handleSeatStates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.config.Seats.SeatStates())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// NewHTTPServer wraps h in an http.Server with conservative timeouts.
// WriteTimeout is left unset so websocket streams stay open.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
