// Package camera runs one capture and inference loop per camera and routes
// seat commands to the camera that can see the seat.
package camera

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/nitz7155/HiSmartStudy/internal/capture"
	"github.com/nitz7155/HiSmartStudy/internal/detector"
	"github.com/nitz7155/HiSmartStudy/internal/metrics"
	"github.com/nitz7155/HiSmartStudy/internal/roi"
	"github.com/nitz7155/HiSmartStudy/internal/seat"
)

// Loop timing constants.
const (
	// ReopenInterval is how long a worker waits between attempts to reopen
	// a closed capture source.
	ReopenInterval = time.Second
	// MaxReadFailures is the number of consecutive failed reads after which
	// the source is closed and reopened.
	MaxReadFailures = 50
	// MaxScanAttempts bounds how many frames a lost-item scan may fail on
	// before an empty result is reported.
	MaxScanAttempts = 3
)

// ErrNoCameraForSeat is returned when a command names a seat that no
// configured camera covers.
var ErrNoCameraForSeat = errors.New("no camera for seat")

// EventSink receives the events produced by camera workers. Implementations
// must not block.
type EventSink interface {
	PushEvent(ev seat.Event)
}

// Status is the health of one camera.
type Status struct {
	CameraID string `json:"cam_id"`
	Source   string `json:"source"`
	Healthy  bool   `json:"status"`
}

// WorkerConfig holds the collaborators and settings for one camera worker.
type WorkerConfig struct {
	CameraID string
	Camera   capture.Camera

	// Regions maps seat id to its configured rectangle, normalized or in
	// pixels.
	Regions map[int]roi.Rect

	// Threshold is the stabilization window for every seat without an
	// entry in SeatThresholds.
	Threshold      int
	SeatThresholds map[int]int

	Persons detector.PresenceDetector
	Items   detector.ItemDetector
	Sink    EventSink

	// Motion, when enabled, lets the worker reuse the previous presence
	// result on frames that did not change.
	Motion *capture.MotionGate

	// FPS paces the loop; zero selects capture.DefaultFPS.
	FPS int

	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

type commandKind int

const (
	cmdTrack commandKind = iota
	cmdLostItem
)

type command struct {
	kind    commandKind
	seatID  int
	usageID int64
}

// scan is a pending one-shot lost-item check.
type scan struct {
	seatID   int
	usageID  int64
	attempts int
}

// seatSlot is the per-seat mode record. It is touched only by the loop.
type seatSlot struct {
	configured roi.Rect
	region     roi.Rect
	machine    *seat.StateMachine
	tracking   bool
	usageID    int64
}

// Worker owns one capture source and the state machines of every seat it
// sees. Commands are queued in a mailbox and applied by the loop, so the
// mode record has a single writer.
type Worker struct {
	id      string
	cam     capture.Camera
	persons detector.PresenceDetector
	items   detector.ItemDetector
	sink    EventSink
	motion  *capture.MotionGate
	fps     int
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	// Owned by the loop.
	seats     map[int]*seatSlot
	order     []int
	scans     []scan
	lastBoxes []roi.Rect
	haveBoxes bool
	failures  int
	lastOpen  time.Time

	mu      sync.Mutex
	pending []command
}

// NewWorker creates a worker. The capture source is opened by Run.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.CameraID == "" {
		return nil, fmt.Errorf("camera: worker requires a camera id")
	}
	if cfg.Camera == nil {
		return nil, fmt.Errorf("camera %s: capture source is required", cfg.CameraID)
	}
	if cfg.Persons == nil || cfg.Items == nil {
		return nil, fmt.Errorf("camera %s: detectors are required", cfg.CameraID)
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("camera %s: event sink is required", cfg.CameraID)
	}
	if cfg.FPS <= 0 {
		cfg.FPS = capture.DefaultFPS
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	w := &Worker{
		id:      cfg.CameraID,
		cam:     cfg.Camera,
		persons: cfg.Persons,
		items:   cfg.Items,
		sink:    cfg.Sink,
		motion:  cfg.Motion,
		fps:     cfg.FPS,
		metrics: cfg.Metrics,
		logger:  cfg.Logger.With("camera_id", cfg.CameraID),
		now:     cfg.Now,
		seats:   make(map[int]*seatSlot, len(cfg.Regions)),
	}

	for seatID, rect := range cfg.Regions {
		threshold := cfg.Threshold
		if t, ok := cfg.SeatThresholds[seatID]; ok {
			threshold = t
		}
		m := seat.NewStateMachine(seatID, threshold)
		m.SetClock(cfg.Now)
		w.seats[seatID] = &seatSlot{configured: rect, region: rect, machine: m}
		w.order = append(w.order, seatID)
	}
	sort.Ints(w.order)

	return w, nil
}

// ID returns the camera id.
func (w *Worker) ID() string { return w.id }

// SeatIDs returns the seats this camera covers in ascending order.
func (w *Worker) SeatIDs() []int {
	return append([]int(nil), w.order...)
}

// Owns reports whether the camera covers seatID.
func (w *Worker) Owns(seatID int) bool {
	_, ok := w.seats[seatID]
	return ok
}

// StartTracking arms continuous presence tracking for a seat. Arming a seat
// that is already tracked only updates its usage id.
func (w *Worker) StartTracking(seatID int, usageID int64) error {
	return w.enqueue(command{kind: cmdTrack, seatID: seatID, usageID: usageID})
}

// StartLostItemCheck disarms tracking for a seat and queues a one-shot scan
// of its region.
func (w *Worker) StartLostItemCheck(seatID int, usageID int64) error {
	return w.enqueue(command{kind: cmdLostItem, seatID: seatID, usageID: usageID})
}

func (w *Worker) enqueue(c command) error {
	if !w.Owns(c.seatID) {
		return fmt.Errorf("camera %s: seat %d: %w", w.id, c.seatID, ErrNoCameraForSeat)
	}
	w.mu.Lock()
	w.pending = append(w.pending, c)
	w.mu.Unlock()
	return nil
}

// Status reports whether the capture source is open.
func (w *Worker) Status() Status {
	return Status{
		CameraID: w.id,
		Source:   w.cam.Source(),
		Healthy:  w.cam.IsOpen(),
	}
}

// Run drives the capture loop until ctx is done. Capture and detection
// faults never end the loop.
func (w *Worker) Run(ctx context.Context) error {
	w.open()
	w.resolveRegions()
	defer w.cam.Close()
	if w.motion != nil {
		defer w.motion.Close()
	}

	ticker := time.NewTicker(time.Second / time.Duration(w.fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.tick()
		}
	}
}

// tick runs one loop iteration.
func (w *Worker) tick() {
	w.applyCommands()

	if !w.cam.IsOpen() {
		if time.Since(w.lastOpen) >= ReopenInterval {
			if w.open() {
				w.resolveRegions()
			}
		}
		return
	}

	frame, err := w.cam.ReadFrame()
	if err != nil {
		w.metrics.Inc(metrics.ReadErrors)
		w.failures++
		if w.failures >= MaxReadFailures {
			w.logger.Warn("capture source stalled, reopening", "failures", w.failures, "error", err)
			w.cam.Close()
			w.failures = 0
		}
		return
	}
	defer frame.Close()

	w.failures = 0
	w.metrics.Inc(metrics.FramesRead)
	w.processFrame(frame)
}

func (w *Worker) open() bool {
	w.lastOpen = time.Now()
	if err := w.cam.Open(); err != nil {
		w.logger.Warn("failed to open capture source", "source", w.cam.Source(), "error", err)
		return false
	}
	w.logger.Info("capture source opened", "source", w.cam.Source())
	return true
}

// resolveRegions converts normalized regions to pixels using the current
// source size.
func (w *Worker) resolveRegions() {
	width, height := w.cam.Size()
	for _, slot := range w.seats {
		slot.region = slot.configured.ToPixel(width, height)
	}
}

func (w *Worker) applyCommands() {
	w.mu.Lock()
	cmds := w.pending
	w.pending = nil
	w.mu.Unlock()

	for _, c := range cmds {
		slot := w.seats[c.seatID]
		switch c.kind {
		case cmdTrack:
			if !slot.tracking {
				slot.machine.Reset()
				slot.tracking = true
			}
			slot.usageID = c.usageID
			w.logger.Info("tracking armed", "seat_id", c.seatID, "usage_id", c.usageID)

		case cmdLostItem:
			slot.tracking = false
			slot.usageID = c.usageID
			w.scans = append(w.scans, scan{seatID: c.seatID, usageID: c.usageID})
			w.logger.Info("lost-item scan armed", "seat_id", c.seatID, "usage_id", c.usageID)
		}
	}
}

// processFrame runs presence tracking for armed seats and at most one pending
// lost-item scan.
func (w *Worker) processFrame(frame *gocv.Mat) {
	if w.anyTracking() {
		w.track(frame)
	} else {
		w.haveBoxes = false
	}

	if len(w.scans) > 0 {
		w.runScan(frame)
	}
}

func (w *Worker) anyTracking() bool {
	for _, slot := range w.seats {
		if slot.tracking {
			return true
		}
	}
	return false
}

func (w *Worker) track(frame *gocv.Mat) {
	boxes, ok := w.presence(frame)
	if !ok {
		return
	}

	for _, seatID := range w.order {
		slot := w.seats[seatID]
		if !slot.tracking {
			continue
		}
		present := roi.AnyIntersects(slot.region, boxes)
		if ev, fired := slot.machine.Update(present); fired {
			ev = ev.WithSource(w.id, slot.usageID)
			w.logger.Info("seat transition", "seat_id", seatID, "event_type", ev.Type)
			w.sink.PushEvent(ev)
		}
	}
}

// presence returns this frame's person boxes. When the motion gate reports
// a static scene the previous boxes are reused.
func (w *Worker) presence(frame *gocv.Mat) ([]roi.Rect, bool) {
	if w.motion.Enabled() {
		changed, _ := w.motion.Changed(frame)
		if !changed && w.haveBoxes {
			w.metrics.Inc(metrics.FramesSkipped)
			return w.lastBoxes, true
		}
	}

	boxes, err := w.persons.DetectPersons(frame)
	if err != nil {
		w.metrics.Inc(metrics.DetectionErrors)
		w.logger.Error("person detection failed", "error", err)
		w.haveBoxes = false
		if w.motion.Enabled() {
			w.motion.Reset()
		}
		return nil, false
	}

	w.lastBoxes = boxes
	w.haveBoxes = true
	return boxes, true
}

// runScan executes the scan at the head of the queue against frame.
func (w *Worker) runScan(frame *gocv.Mat) {
	s := &w.scans[0]
	slot := w.seats[s.seatID]

	ev := seat.NewEvent(s.seatID, seat.EventLostItem, w.now()).WithSource(w.id, s.usageID)

	rect := slot.region.Clamp(frame.Cols(), frame.Rows())
	if rect.Empty() {
		w.logger.Warn("seat region outside frame", "seat_id", s.seatID, "region", slot.region)
		w.finishScan(ev)
		return
	}

	view := frame.Region(rect)
	crop := view.Clone()
	view.Close()
	defer crop.Close()

	items, err := w.items.DetectItems(&crop)
	if err != nil {
		w.metrics.Inc(metrics.DetectionErrors)
		s.attempts++
		w.logger.Error("item detection failed", "seat_id", s.seatID, "attempt", s.attempts, "error", err)
		if s.attempts < MaxScanAttempts {
			return
		}
		w.finishScan(ev)
		return
	}

	dx, dy := float64(rect.Min.X), float64(rect.Min.Y)
	for i := range items {
		items[i].Box = items[i].Box.Offset(dx, dy)
	}
	ev.Items = items

	if len(items) > 0 {
		img, err := encodeJPEG(&crop)
		if err != nil {
			w.logger.Warn("failed to encode scan image", "seat_id", s.seatID, "error", err)
		}
		ev.ImageBase64 = img
	}

	w.finishScan(ev)
}

func (w *Worker) finishScan(ev seat.Event) {
	w.scans = w.scans[1:]
	w.metrics.Inc(metrics.LostItemScans)
	w.logger.Info("lost-item scan finished", "seat_id", ev.SeatID, "items", len(ev.Items))
	w.sink.PushEvent(ev)
}

func encodeJPEG(img *gocv.Mat) (string, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *img)
	if err != nil {
		return "", err
	}
	defer buf.Close()
	return base64.StdEncoding.EncodeToString(buf.GetBytes()), nil
}
