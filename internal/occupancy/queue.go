package occupancy

import (
	"context"
	"sync"

	"github.com/nitz7155/HiSmartStudy/internal/seat"
)

// eventQueue is an unbounded multi-producer, single-consumer FIFO. Push
// never blocks; pop waits until an event is available or ctx ends.
type eventQueue struct {
	mu    sync.Mutex
	items []seat.Event
	ready chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{ready: make(chan struct{}, 1)}
}

func (q *eventQueue) push(ev seat.Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *eventQueue) pop(ctx context.Context) (seat.Event, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items[0] = seat.Event{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return ev, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return seat.Event{}, false
		case <-q.ready:
		}
	}
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
