package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/nitz7155/HiSmartStudy/internal/roi"
	"github.com/nitz7155/HiSmartStudy/internal/seat"
)

// EventRepository provides access to the seat event journal.
type EventRepository struct {
	db *sql.DB
}

// Events returns an EventRepository for journal operations.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// RecordEvent journals ev.
func (s *Store) RecordEvent(ev seat.Event) error {
	return s.Events().Create(ev)
}

// Create inserts an event. Images are not journaled; the lost-item result
// keeps the latest one per session.
func (r *EventRepository) Create(ev seat.Event) error {
	items, err := marshalItems(ev.Items)
	if err != nil {
		return err
	}

	var usage, minutes sql.NullInt64
	if ev.UsageID != nil {
		usage = sql.NullInt64{Int64: *ev.UsageID, Valid: true}
	}
	if ev.Minutes != nil {
		minutes = sql.NullInt64{Int64: int64(*ev.Minutes), Valid: true}
	}

	_, err = r.db.Exec(
		`INSERT INTO seat_events (id, seat_id, event_type, detected_at, usage_id, camera_id, minutes, items)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.SeatID, string(ev.Type), ev.DetectedAt.UTC(), usage, ev.CameraID, minutes, items,
	)
	return err
}

// ListBySeat returns the most recent events for a seat, newest first.
// A limit of zero or less returns every event.
func (r *EventRepository) ListBySeat(seatID, limit int) ([]seat.Event, error) {
	if limit <= 0 {
		limit = -1
	}
	return r.query(
		`SELECT id, seat_id, event_type, detected_at, usage_id, camera_id, minutes, items
		 FROM seat_events WHERE seat_id = ? ORDER BY detected_at DESC, created_at DESC LIMIT ?`,
		seatID, limit,
	)
}

// ListByUsage returns every event of one booking session in the order they
// were detected.
func (r *EventRepository) ListByUsage(usageID int64) ([]seat.Event, error) {
	return r.query(
		`SELECT id, seat_id, event_type, detected_at, usage_id, camera_id, minutes, items
		 FROM seat_events WHERE usage_id = ? ORDER BY detected_at ASC, created_at ASC`,
		usageID,
	)
}

func (r *EventRepository) query(q string, args ...any) ([]seat.Event, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []seat.Event
	for rows.Next() {
		var (
			ev        seat.Event
			eventType string
			usage     sql.NullInt64
			minutes   sql.NullInt64
			items     string
		)
		if err := rows.Scan(&ev.ID, &ev.SeatID, &eventType, &ev.DetectedAt, &usage, &ev.CameraID, &minutes, &items); err != nil {
			return nil, err
		}

		ev.Type = seat.EventType(eventType)
		if usage.Valid {
			id := usage.Int64
			ev.UsageID = &id
		}
		if minutes.Valid {
			m := int(minutes.Int64)
			ev.Minutes = &m
		}
		if ev.Items, err = unmarshalItems(items); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

func marshalItems(items []roi.Item) (string, error) {
	if items == nil {
		items = []roi.Item{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("marshal items: %w", err)
	}
	return string(b), nil
}

func unmarshalItems(s string) ([]roi.Item, error) {
	items := []roi.Item{}
	if s == "" {
		return items, nil
	}
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	return items, nil
}
