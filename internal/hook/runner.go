package hook

import (
	"context"
	"log/slog"

	"github.com/nitz7155/HiSmartStudy/internal/seat"
)

// backlog is how many events may wait for hook execution before new ones
// are dropped.
const backlog = 256

// Runner executes matching hooks for applied events on its own goroutine so
// the event consumer never waits on a hook.
type Runner struct {
	manager  *Manager
	executor *Executor
	events   chan seat.Event
	logger   *slog.Logger
}

// NewRunner creates a Runner over the hooks in manager.
func NewRunner(manager *Manager, executor *Executor, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		manager:  manager,
		executor: executor,
		events:   make(chan seat.Event, backlog),
		logger:   logger,
	}
}

// Handle queues ev. It never blocks; it is meant to be registered with
// occupancy.Manager.Observe.
func (r *Runner) Handle(ev seat.Event) {
	ev.ImageBase64 = ""
	select {
	case r.events <- ev:
	default:
		r.logger.Warn("hook backlog full, event dropped", "event_id", ev.ID, "seat_id", ev.SeatID)
	}
}

// Run executes hooks until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-r.events:
			r.dispatch(ctx, ev)
		}
	}
}

func (r *Runner) dispatch(ctx context.Context, ev seat.Event) {
	for _, h := range r.manager.For(ev.Type) {
		resp, err := r.executor.Execute(ctx, h, &Request{Event: ev, Config: h.Manifest.Config})
		if err != nil {
			r.logger.Warn("hook failed", "hook", h.Manifest.Name, "event_id", ev.ID, "error", err)
			continue
		}
		if !resp.Success {
			r.logger.Warn("hook reported failure", "hook", h.Manifest.Name, "event_id", ev.ID, "error", resp.Error)
			continue
		}
		r.logger.Debug("hook ran", "hook", h.Manifest.Name, "event_id", ev.ID)
	}
}
