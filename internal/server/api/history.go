package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/nitz7155/HiSmartStudy/internal/seat"
)

// DefaultHistoryLimit caps a history response when no limit is given.
const DefaultHistoryLimit = 50

// EventLister reads the event journal. store.EventRepository implements it.
type EventLister interface {
	ListBySeat(seatID, limit int) ([]seat.Event, error)
}

// HistoryHandler serves GET /camera/history/{seat_id}.
type HistoryHandler struct {
	events EventLister
}

// NewHistoryHandler creates a HistoryHandler backed by events.
func NewHistoryHandler(events EventLister) *HistoryHandler {
	return &HistoryHandler{events: events}
}

type historyResponse struct {
	SeatID int          `json:"seat_id"`
	Events []seat.Event `json:"events"`
}

func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	seatID, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/camera/history/"))
	if err != nil || seatID <= 0 {
		writeError(w, http.StatusBadRequest, "seat_id must be a positive integer")
		return
	}

	limit := DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
	}

	events, err := h.events.ListBySeat(seatID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read event history")
		return
	}
	if events == nil {
		events = []seat.Event{}
	}

	writeJSON(w, http.StatusOK, historyResponse{SeatID: seatID, Events: events})
}
