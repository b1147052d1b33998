// Package occupancy is the single authority over seat status. It applies
// operator commands optimistically, consumes camera events in arrival order
// and keeps the lost-item scan results callers poll for.
package occupancy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/nitz7155/HiSmartStudy/internal/camera"
	"github.com/nitz7155/HiSmartStudy/internal/metrics"
	"github.com/nitz7155/HiSmartStudy/internal/notify"
	"github.com/nitz7155/HiSmartStudy/internal/roi"
	"github.com/nitz7155/HiSmartStudy/internal/seat"
)

// DefaultNotifyTimeout bounds one checkout notification.
const DefaultNotifyTimeout = 3 * time.Second

// ErrInvalidUsageID is returned for commands without a positive usage id.
var ErrInvalidUsageID = errors.New("usage id must be positive")

// Dispatcher arms camera workers. camera.Manager implements it.
type Dispatcher interface {
	StartTracking(seatID int, usageID int64) error
	StartLostItemCheck(seatID int, usageID int64) error
	Owns(seatID int) bool
}

// Recorder persists lost-item results. Applied events reach durable storage
// through an observer, off the consumer goroutine.
type Recorder interface {
	SaveLostItemResult(r LostItemResult) error
	LoadLostItemResult(usageID int64) (LostItemResult, bool, error)
}

// Status is the canonical record of one seat.
type Status struct {
	Status     seat.State `json:"status"`
	UsageID    *int64     `json:"usage_id"`
	CheckInAt  *time.Time `json:"check_in_at"`
	CheckOutAt *time.Time `json:"check_out_at"`
	LastUpdate time.Time  `json:"last_update"`
}

// active reports whether a booking session holds the seat.
func (s Status) active() bool {
	return s.Status == seat.StateOccupied || s.UsageID != nil
}

// LostItemResult is the outcome of a lost-item scan, keyed by usage id.
type LostItemResult struct {
	Done        bool       `json:"done"`
	SeatID      int        `json:"seat_id"`
	UsageID     int64      `json:"usage_id"`
	Items       []roi.Item `json:"items"`
	ImageBase64 string     `json:"image_base64,omitempty"`
	DetectedAt  *time.Time `json:"detected_at"`
}

// inTime is the provisional check-in time of the session that produced it.
type inTime struct {
	usageID int64
	at      time.Time
}

// Config holds the collaborators of a Manager. Only Dispatcher is required,
// and it may be supplied later with SetDispatcher.
type Config struct {
	Dispatcher    Dispatcher
	Notifier      notify.Notifier
	NotifyTimeout time.Duration
	Recorder      Recorder
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
	Now           func() time.Time
}

// Manager owns the canonical seat table, the inbound event queue and the
// lost-item result store.
type Manager struct {
	dispatcher    Dispatcher
	notifier      notify.Notifier
	notifyTimeout time.Duration
	recorder      Recorder
	metrics       *metrics.Metrics
	logger        *slog.Logger
	now           func() time.Time

	queue *eventQueue

	mu     sync.Mutex
	states map[int]*Status

	resultMu sync.Mutex
	results  map[int64]*LostItemResult

	// Owned by the consumer.
	inTimes map[int]inTime

	observerMu sync.RWMutex
	observers  []func(seat.Event)
}

// New creates a Manager. Call Run to start consuming events.
func New(cfg Config) *Manager {
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = DefaultNotifyTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{
		dispatcher:    cfg.Dispatcher,
		notifier:      cfg.Notifier,
		notifyTimeout: cfg.NotifyTimeout,
		recorder:      cfg.Recorder,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		now:           cfg.Now,
		queue:         newEventQueue(),
		states:        make(map[int]*Status),
		results:       make(map[int64]*LostItemResult),
		inTimes:       make(map[int]inTime),
	}
}

// SetDispatcher installs the camera dispatcher. It must be called before
// the first command.
func (m *Manager) SetDispatcher(d Dispatcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatcher = d
}

// Observe registers fn to be called with every applied event. fn runs on
// the consumer goroutine and must not block.
func (m *Manager) Observe(fn func(seat.Event)) {
	m.observerMu.Lock()
	defer m.observerMu.Unlock()
	m.observers = append(m.observers, fn)
}

// HandleCheckin marks a seat occupied for usageID and arms tracking. A seat
// that already holds a session is left untouched.
func (m *Manager) HandleCheckin(seatID int, usageID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.routable(seatID); err != nil {
		return err
	}
	if usageID <= 0 {
		return fmt.Errorf("check-in seat %d: %w", seatID, ErrInvalidUsageID)
	}

	if st, ok := m.states[seatID]; ok && st.active() {
		m.logger.Debug("check-in ignored, seat already occupied", "seat_id", seatID, "usage_id", usageID)
		return nil
	}

	id := usageID
	m.states[seatID] = &Status{
		Status:     seat.StateOccupied,
		UsageID:    &id,
		LastUpdate: m.now(),
	}

	if err := m.dispatcher.StartTracking(seatID, usageID); err != nil {
		return fmt.Errorf("start tracking: %w", err)
	}

	m.logger.Info("seat checked in", "seat_id", seatID, "usage_id", usageID)
	return nil
}

// HandleCheckout registers a pending lost-item result for usageID, arms the
// scan and releases the seat. A seat with no session is left untouched.
func (m *Manager) HandleCheckout(seatID int, usageID int64) error {
	m.mu.Lock()

	if err := m.routable(seatID); err != nil {
		m.mu.Unlock()
		return err
	}
	if usageID <= 0 {
		m.mu.Unlock()
		return fmt.Errorf("checkout seat %d: %w", seatID, ErrInvalidUsageID)
	}

	st, ok := m.states[seatID]
	if !ok || !st.active() {
		m.mu.Unlock()
		m.logger.Debug("checkout ignored, seat already empty", "seat_id", seatID, "usage_id", usageID)
		return nil
	}

	pending := LostItemResult{SeatID: seatID, UsageID: usageID, Items: []roi.Item{}}
	m.resultMu.Lock()
	m.results[usageID] = &pending
	m.resultMu.Unlock()

	err := m.dispatcher.StartLostItemCheck(seatID, usageID)

	m.states[seatID] = &Status{
		Status:     seat.StateEmpty,
		LastUpdate: m.now(),
	}
	m.mu.Unlock()

	if err != nil {
		return fmt.Errorf("start lost-item check: %w", err)
	}

	if m.recorder != nil {
		if err := m.recorder.SaveLostItemResult(pending); err != nil {
			m.logger.Warn("failed to persist pending lost-item result", "usage_id", usageID, "error", err)
		}
	}

	m.logger.Info("seat checked out", "seat_id", seatID, "usage_id", usageID)
	return nil
}

// routable must be called with m.mu held.
func (m *Manager) routable(seatID int) error {
	if m.dispatcher == nil {
		return fmt.Errorf("occupancy: no camera dispatcher configured")
	}
	if !m.dispatcher.Owns(seatID) {
		return fmt.Errorf("seat %d: %w", seatID, camera.ErrNoCameraForSeat)
	}
	return nil
}

// PushEvent enqueues an event from a camera worker. It never blocks.
func (m *Manager) PushEvent(ev seat.Event) {
	m.queue.push(ev)
}

// QueueLen returns the number of events waiting for the consumer.
func (m *Manager) QueueLen() int {
	return m.queue.len()
}

// SeatStates returns a copy of the canonical table.
func (m *Manager) SeatStates() map[int]Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[int]Status, len(m.states))
	for id, st := range m.states {
		out[id] = *st
	}
	return out
}

// LostItemResult returns the scan result for usageID. The result is pending
// (Done false) until the scan event is consumed. Results missing from memory
// are looked up in the recorder.
func (m *Manager) LostItemResult(usageID int64) (LostItemResult, bool) {
	m.resultMu.Lock()
	r, ok := m.results[usageID]
	var out LostItemResult
	if ok {
		out = *r
	}
	m.resultMu.Unlock()

	if ok || m.recorder == nil {
		return out, ok
	}

	stored, found, err := m.recorder.LoadLostItemResult(usageID)
	if err != nil {
		m.logger.Warn("failed to load lost-item result", "usage_id", usageID, "error", err)
		return LostItemResult{}, false
	}
	return stored, found
}

// Run consumes events until ctx is done. Events are applied one at a time
// in arrival order.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("event consumer started")
	for {
		ev, ok := m.queue.pop(ctx)
		if !ok {
			m.logger.Info("event consumer stopped", "backlog", m.queue.len())
			return nil
		}
		m.process(ctx, ev)
	}
}

// process applies one event, containing any failure to that event.
func (m *Manager) process(ctx context.Context, ev seat.Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("panic while applying event", "event_id", ev.ID, "seat_id", ev.SeatID, "panic", r)
		}
	}()

	applied, ok := m.apply(ctx, ev)
	if !ok {
		m.metrics.Inc(metrics.EventsDiscarded)
		return
	}
	m.metrics.EventApplied(string(applied.Type))

	m.observerMu.RLock()
	observers := m.observers
	m.observerMu.RUnlock()
	for _, fn := range observers {
		fn(applied)
	}
}

// apply updates state for one event. It reports false when the event is
// discarded.
func (m *Manager) apply(ctx context.Context, ev seat.Event) (seat.Event, bool) {
	if !ev.Type.Valid() {
		m.logger.Warn("discarding event with unknown type", "event_type", ev.Type, "seat_id", ev.SeatID)
		return ev, false
	}

	m.mu.Lock()
	st, ok := m.states[ev.SeatID]
	if !ok {
		m.mu.Unlock()
		m.logger.Debug("discarding event for unknown seat", "seat_id", ev.SeatID, "event_type", ev.Type)
		return ev, false
	}

	if ev.Type != seat.EventLostItem && stale(st, ev) {
		m.mu.Unlock()
		m.logger.Debug("discarding event from an ended session", "seat_id", ev.SeatID, "event_type", ev.Type)
		return ev, false
	}

	st.LastUpdate = ev.DetectedAt
	at := ev.DetectedAt
	switch ev.Type {
	case seat.EventCheckIn:
		st.Status = seat.StateOccupied
		st.CheckInAt = &at
	case seat.EventCheckOut:
		st.Status = seat.StateEmpty
		st.CheckOutAt = &at
	}
	m.mu.Unlock()

	switch ev.Type {
	case seat.EventCheckIn:
		usage, _ := ev.Usage()
		m.inTimes[ev.SeatID] = inTime{usageID: usage, at: ev.DetectedAt}

	case seat.EventCheckOut:
		in, ok := m.inTimes[ev.SeatID]
		delete(m.inTimes, ev.SeatID)
		if ok {
			ev = ev.WithMinutes(elapsedMinutes(in.at, ev.DetectedAt))
			m.notifyCheckout(ctx, ev)
		}

	case seat.EventLostItem:
		// A scan may land after the next session has checked in.
		if usage, ok := ev.Usage(); ok {
			if in, found := m.inTimes[ev.SeatID]; found && in.usageID == usage {
				delete(m.inTimes, ev.SeatID)
			}
		}
		m.completeLostItem(ev)
	}

	return ev, true
}

// stale reports whether a tracking event belongs to a session other than
// the seat's current one. Untagged events are never stale.
func stale(st *Status, ev seat.Event) bool {
	usage, ok := ev.Usage()
	if !ok {
		return false
	}
	return st.UsageID == nil || *st.UsageID != usage
}

// ResultFromEvent builds the completed result carried by a LOST_ITEM event.
// It reports false for events without a usage id.
func ResultFromEvent(ev seat.Event) (LostItemResult, bool) {
	usageID, ok := ev.Usage()
	if !ok || ev.Type != seat.EventLostItem {
		return LostItemResult{}, false
	}

	items := ev.Items
	if items == nil {
		items = []roi.Item{}
	}
	at := ev.DetectedAt
	return LostItemResult{
		Done:        true,
		SeatID:      ev.SeatID,
		UsageID:     usageID,
		Items:       items,
		ImageBase64: ev.ImageBase64,
		DetectedAt:  &at,
	}, true
}

func (m *Manager) completeLostItem(ev seat.Event) {
	result, ok := ResultFromEvent(ev)
	if !ok {
		m.logger.Warn("lost-item event without usage id", "seat_id", ev.SeatID)
		return
	}

	m.resultMu.Lock()
	if r, ok := m.results[result.UsageID]; ok && r.Done {
		m.resultMu.Unlock()
		m.logger.Debug("lost-item result already complete", "usage_id", result.UsageID)
		return
	}
	m.results[result.UsageID] = &result
	m.resultMu.Unlock()

	m.logger.Info("lost-item result ready", "seat_id", ev.SeatID, "usage_id", result.UsageID, "items", len(result.Items))
}

// notifyCheckout delivers one checkout notification. Failures are logged
// and counted, never retried.
func (m *Manager) notifyCheckout(ctx context.Context, ev seat.Event) {
	if m.notifier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, m.notifyTimeout)
	defer cancel()

	if err := m.notifier.NotifyCheckout(ctx, notify.FromEvent(ev)); err != nil {
		m.metrics.Inc(metrics.NotifyFailures)
		m.logger.Error("checkout notification failed", "seat_id", ev.SeatID, "error", err)
		return
	}
	m.metrics.Inc(metrics.NotifySent)
}

// elapsedMinutes returns the whole minutes between from and to, rounded up.
func elapsedMinutes(from, to time.Time) int {
	d := to.Sub(from)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds() / 60))
}
