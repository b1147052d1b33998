package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nitz7155/HiSmartStudy/internal/camera"
	"github.com/nitz7155/HiSmartStudy/internal/notify"
	"github.com/nitz7155/HiSmartStudy/internal/occupancy"
	"github.com/nitz7155/HiSmartStudy/internal/seat"
)

// SeatService is the part of occupancy.Manager the seat handler drives.
type SeatService interface {
	HandleCheckin(seatID int, usageID int64) error
	HandleCheckout(seatID int, usageID int64) error
	LostItemResult(usageID int64) (occupancy.LostItemResult, bool)
}

// SeatHandler serves the /camera endpoints the booking backend calls.
type SeatHandler struct {
	seats    SeatService
	notifier notify.Notifier
	timeout  time.Duration
	logger   *slog.Logger
}

// NewSeatHandler creates a SeatHandler. notifier may be nil, in which case
// manual event relays are rejected.
func NewSeatHandler(seats SeatService, notifier notify.Notifier, timeout time.Duration, logger *slog.Logger) *SeatHandler {
	if timeout <= 0 {
		timeout = occupancy.DefaultNotifyTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SeatHandler{seats: seats, notifier: notifier, timeout: timeout, logger: logger}
}

type seatRequest struct {
	SeatID  *int   `json:"seat_id"`
	UsageID *int64 `json:"usage_id"`
}

type commandResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	JobID   *int64 `json:"job_id,omitempty"`
}

type resultResponse struct {
	Status bool                     `json:"status"`
	Result occupancy.LostItemResult `json:"result"`
}

// ServeHTTP routes /camera/checkin, /camera/checkout, /camera/event and
// /camera/lost-item/result/{job_id}.
func (h *SeatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/camera")

	switch {
	case path == "/checkin":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.checkin(w, r)
	case path == "/checkout":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.checkout(w, r)
	case path == "/event":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.relayEvent(w, r)
	case strings.HasPrefix(path, "/lost-item/result/"):
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.result(w, r, strings.TrimPrefix(path, "/lost-item/result/"))
	default:
		http.NotFound(w, r)
	}
}

func decodeSeatRequest(r *http.Request) (int, int64, error) {
	var req seatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return 0, 0, errors.New("invalid JSON")
	}
	if req.SeatID == nil || req.UsageID == nil {
		return 0, 0, errors.New("seat_id and usage_id are required")
	}
	if *req.UsageID <= 0 {
		return 0, 0, errors.New("usage_id must be a positive integer")
	}
	return *req.SeatID, *req.UsageID, nil
}

// checkin handles POST /camera/checkin.
func (h *SeatHandler) checkin(w http.ResponseWriter, r *http.Request) {
	seatID, usageID, err := decodeSeatRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.seats.HandleCheckin(seatID, usageID); err != nil {
		h.commandError(w, seatID, err)
		return
	}

	writeJSON(w, http.StatusOK, commandResponse{
		Status:  true,
		Message: fmt.Sprintf("seat %d tracking started", seatID),
	})
}

// checkout handles POST /camera/checkout. The job id to poll is the usage id.
func (h *SeatHandler) checkout(w http.ResponseWriter, r *http.Request) {
	seatID, usageID, err := decodeSeatRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.seats.HandleCheckout(seatID, usageID); err != nil {
		h.commandError(w, seatID, err)
		return
	}

	writeJSON(w, http.StatusAccepted, commandResponse{
		Status:  true,
		Message: fmt.Sprintf("seat %d lost-item scan started", seatID),
		JobID:   &usageID,
	})
}

func (h *SeatHandler) commandError(w http.ResponseWriter, seatID int, err error) {
	if errors.Is(err, camera.ErrNoCameraForSeat) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("no camera for seat %d", seatID))
		return
	}
	if errors.Is(err, occupancy.ErrInvalidUsageID) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Error("seat command failed", "seat_id", seatID, "error", err)
	writeError(w, http.StatusInternalServerError, "Failed to dispatch seat command")
}

// result handles GET /camera/lost-item/result/{job_id}.
func (h *SeatHandler) result(w http.ResponseWriter, r *http.Request, jobID string) {
	usageID, err := strconv.ParseInt(jobID, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "job_id must be an integer")
		return
	}

	res, ok := h.seats.LostItemResult(usageID)
	if !ok {
		writeError(w, http.StatusNotFound, "usage_id not found")
		return
	}

	writeJSON(w, http.StatusOK, resultResponse{Status: true, Result: res})
}

// relayEvent handles POST /camera/event: a CHECK_OUT event posted by an
// operator tool is forwarded to the booking backend. Other event types are
// acknowledged and ignored.
func (h *SeatHandler) relayEvent(w http.ResponseWriter, r *http.Request) {
	var ev seat.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if !ev.Type.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid event_type")
		return
	}

	if ev.Type != seat.EventCheckOut {
		writeJSON(w, http.StatusOK, commandResponse{Status: true, Message: "ignored, not a checkout"})
		return
	}
	if h.notifier == nil {
		writeError(w, http.StatusServiceUnavailable, "no booking backend configured")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.notifier.NotifyCheckout(ctx, notify.FromEvent(ev)); err != nil {
		h.logger.Warn("checkout relay failed", "seat_id", ev.SeatID, "error", err)
		writeError(w, http.StatusBadGateway, fmt.Sprintf("booking backend unreachable: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, commandResponse{Status: true, Message: "Success"})
}
