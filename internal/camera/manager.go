package camera

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nitz7155/HiSmartStudy/internal/capture"
	"github.com/nitz7155/HiSmartStudy/internal/detector"
	"github.com/nitz7155/HiSmartStudy/internal/metrics"
)

// Manager routes seat commands to the worker whose camera covers the seat.
// The routing table is built once and never changes.
type Manager struct {
	workers []*Worker
	bySeat  map[int]*Worker
	logger  *slog.Logger
}

// NewManager builds the seat to camera routing table. A seat covered by
// more than one camera is a configuration error.
func NewManager(workers []*Worker, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		workers: workers,
		bySeat:  make(map[int]*Worker),
		logger:  logger,
	}

	ids := make(map[string]bool, len(workers))
	for _, w := range workers {
		if ids[w.ID()] {
			return nil, fmt.Errorf("camera: duplicate camera id %q", w.ID())
		}
		ids[w.ID()] = true

		for _, seatID := range w.SeatIDs() {
			if other, ok := m.bySeat[seatID]; ok {
				return nil, fmt.Errorf("camera: seat %d assigned to both %s and %s", seatID, other.ID(), w.ID())
			}
			m.bySeat[seatID] = w
		}
	}

	return m, nil
}

// Owns reports whether some camera covers seatID.
func (m *Manager) Owns(seatID int) bool {
	_, ok := m.bySeat[seatID]
	return ok
}

// StartTracking forwards to the worker covering seatID.
func (m *Manager) StartTracking(seatID int, usageID int64) error {
	w, err := m.route(seatID)
	if err != nil {
		return err
	}
	return w.StartTracking(seatID, usageID)
}

// StartLostItemCheck forwards to the worker covering seatID.
func (m *Manager) StartLostItemCheck(seatID int, usageID int64) error {
	w, err := m.route(seatID)
	if err != nil {
		return err
	}
	return w.StartLostItemCheck(seatID, usageID)
}

func (m *Manager) route(seatID int) (*Worker, error) {
	w, ok := m.bySeat[seatID]
	if !ok {
		return nil, fmt.Errorf("seat %d: %w", seatID, ErrNoCameraForSeat)
	}
	return w, nil
}

// Status returns the health of every camera in configuration order.
func (m *Manager) Status() []Status {
	out := make([]Status, len(m.workers))
	for i, w := range m.workers {
		out[i] = w.Status()
	}
	return out
}

// Run runs every worker loop and returns once they have all stopped.
func (m *Manager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range m.workers {
		w := w
		g.Go(func() error {
			m.logger.Info("camera worker started", "camera_id", w.ID(), "seats", w.SeatIDs())
			return w.Run(ctx)
		})
	}
	return g.Wait()
}

// Options are the shared collaborators used to build workers from a
// registry.
type Options struct {
	// NewCamera creates the capture source for a descriptor; nil selects
	// capture.NewCamera.
	NewCamera func(source string) capture.Camera

	Persons detector.PresenceDetector
	Items   detector.ItemDetector
	Sink    EventSink

	// Threshold is the stabilization window for cameras that do not set
	// their own.
	Threshold int

	// MotionThreshold enables the per-camera motion gate when positive.
	MotionThreshold float64

	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// NewManagerFromRegistry builds one worker per configured camera.
func NewManagerFromRegistry(reg *Registry, opts Options) (*Manager, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	if opts.NewCamera == nil {
		opts.NewCamera = capture.NewCamera
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	workers := make([]*Worker, 0, len(reg.Cameras))
	for _, c := range reg.Cameras {
		regions, err := c.Regions()
		if err != nil {
			return nil, err
		}
		thresholds, err := c.Thresholds()
		if err != nil {
			return nil, err
		}

		threshold := c.Threshold
		if threshold <= 0 {
			threshold = opts.Threshold
		}

		var gate *capture.MotionGate
		if opts.MotionThreshold > 0 {
			gate = capture.NewMotionGate(opts.MotionThreshold, 0)
		}

		w, err := NewWorker(WorkerConfig{
			CameraID:       c.CameraID,
			Camera:         opts.NewCamera(c.Source),
			Regions:        regions,
			Threshold:      threshold,
			SeatThresholds: thresholds,
			Persons:        opts.Persons,
			Items:          opts.Items,
			Sink:           opts.Sink,
			Motion:         gate,
			FPS:            c.FPS,
			Metrics:        opts.Metrics,
			Logger:         opts.Logger,
			Now:            opts.Now,
		})
		if err != nil {
			return nil, err
		}
		workers = append(workers, w)
	}

	return NewManager(workers, opts.Logger)
}
