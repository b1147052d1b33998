// Package notify delivers checkout notifications to the booking backend and
// optional message brokers.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nitz7155/HiSmartStudy/internal/seat"
)

// Checkout is the payload sent when a camera confirms a seat was vacated.
type Checkout struct {
	SeatID     int       `json:"seat_id"`
	EventType  string    `json:"event_type"`
	DetectedAt time.Time `json:"detected_at"`
	Minutes    int       `json:"minutes"`
	UsageID    *int64    `json:"usage_id"`
}

// FromEvent builds the payload for a CHECK_OUT event.
func FromEvent(ev seat.Event) Checkout {
	c := Checkout{
		SeatID:     ev.SeatID,
		EventType:  string(ev.Type),
		DetectedAt: ev.DetectedAt,
		UsageID:    ev.UsageID,
	}
	if ev.Minutes != nil {
		c.Minutes = *ev.Minutes
	}
	return c
}

// Notifier delivers a checkout notification. Implementations must honor the
// context deadline.
type Notifier interface {
	NotifyCheckout(ctx context.Context, c Checkout) error
}

// Multi sends every notification to all of its notifiers and joins their
// errors.
type Multi []Notifier

// NotifyCheckout calls every notifier in order, even after a failure.
func (m Multi) NotifyCheckout(ctx context.Context, c Checkout) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyCheckout(ctx, c); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", n, err))
		}
	}
	return errors.Join(errs...)
}
