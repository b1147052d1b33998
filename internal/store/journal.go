package store

import (
	"context"
	"log/slog"

	"github.com/nitz7155/HiSmartStudy/internal/occupancy"
	"github.com/nitz7155/HiSmartStudy/internal/seat"
)

// journalBacklog is how many applied events may wait for a database write
// before new ones are dropped.
const journalBacklog = 1024

// Journal writes applied events and completed lost-item results on its own
// goroutine, so database contention never stalls the event consumer.
type Journal struct {
	store  *Store
	events chan seat.Event
	logger *slog.Logger
}

// NewJournal creates a Journal writing to s.
func NewJournal(s *Store, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{
		store:  s,
		events: make(chan seat.Event, journalBacklog),
		logger: logger,
	}
}

// Handle queues ev. It never blocks; it is meant to be registered with
// occupancy.Manager.Observe.
func (j *Journal) Handle(ev seat.Event) {
	select {
	case j.events <- ev:
	default:
		j.logger.Warn("journal backlog full, event dropped", "event_id", ev.ID, "seat_id", ev.SeatID)
	}
}

// Pending returns the number of events waiting to be written.
func (j *Journal) Pending() int {
	return len(j.events)
}

// Run writes events until ctx is done, then flushes what is already queued.
func (j *Journal) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev := <-j.events:
					j.write(ev)
				default:
					return nil
				}
			}
		case ev := <-j.events:
			j.write(ev)
		}
	}
}

func (j *Journal) write(ev seat.Event) {
	if err := j.store.RecordEvent(ev); err != nil {
		j.logger.Warn("failed to record event", "event_id", ev.ID, "error", err)
	}

	res, ok := occupancy.ResultFromEvent(ev)
	if !ok {
		return
	}
	if err := j.store.SaveLostItemResult(res); err != nil {
		j.logger.Warn("failed to persist lost-item result", "usage_id", res.UsageID, "error", err)
	}
}
