// Package seat provides the per-seat occupancy state machine and the event
// records it emits.
package seat

import (
	"time"

	"github.com/google/uuid"

	"github.com/nitz7155/HiSmartStudy/internal/roi"
)

// EventType identifies what a seat event reports.
type EventType string

const (
	// EventCheckIn is emitted when a person has been present for the full
	// stabilization window.
	EventCheckIn EventType = "CHECK_IN"
	// EventCheckOut is emitted when a seat has been vacant for the full
	// stabilization window.
	EventCheckOut EventType = "CHECK_OUT"
	// EventLostItem carries the result of a one-shot lost-item scan.
	EventLostItem EventType = "LOST_ITEM"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventCheckIn, EventCheckOut, EventLostItem:
		return true
	}
	return false
}

// Event is an immutable seat observation. It travels by value from a camera
// worker through the occupancy queue.
type Event struct {
	ID          string     `json:"id"`
	SeatID      int        `json:"seat_id"`
	Type        EventType  `json:"event_type"`
	DetectedAt  time.Time  `json:"detected_at"`
	UsageID     *int64     `json:"usage_id,omitempty"`
	CameraID    string     `json:"camera_id,omitempty"`
	Minutes     *int       `json:"minutes,omitempty"`
	Items       []roi.Item `json:"items,omitempty"`
	ImageBase64 string     `json:"image_base64,omitempty"`
}

// NewEvent creates an event with a fresh ID.
func NewEvent(seatID int, typ EventType, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		SeatID:     seatID,
		Type:       typ,
		DetectedAt: at,
	}
}

// WithSource returns a copy of e tagged with the camera that produced it and
// the booking session it belongs to. A zero usage id leaves the event untagged.
func (e Event) WithSource(cameraID string, usageID int64) Event {
	e.CameraID = cameraID
	if usageID != 0 {
		id := usageID
		e.UsageID = &id
	}
	return e
}

// WithMinutes returns a copy of e carrying the elapsed dwell minutes.
func (e Event) WithMinutes(minutes int) Event {
	m := minutes
	e.Minutes = &m
	return e
}

// Usage returns the usage id and whether the event carries one.
func (e Event) Usage() (int64, bool) {
	if e.UsageID == nil {
		return 0, false
	}
	return *e.UsageID, true
}
