// Package app wires the seat vision service together and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nitz7155/HiSmartStudy/internal/camera"
	"github.com/nitz7155/HiSmartStudy/internal/capture"
	"github.com/nitz7155/HiSmartStudy/internal/config"
	"github.com/nitz7155/HiSmartStudy/internal/detector"
	"github.com/nitz7155/HiSmartStudy/internal/hook"
	"github.com/nitz7155/HiSmartStudy/internal/metrics"
	"github.com/nitz7155/HiSmartStudy/internal/notify"
	"github.com/nitz7155/HiSmartStudy/internal/occupancy"
	"github.com/nitz7155/HiSmartStudy/internal/server"
	"github.com/nitz7155/HiSmartStudy/internal/store"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// Config holds the service settings and optional overrides. Nil overrides
// are built from Service.
type Config struct {
	Service *config.Config

	// Registry replaces the file at Service.Cameras.RegistryPath.
	Registry *camera.Registry
	// NewCamera creates capture sources; nil selects capture.NewCamera.
	NewCamera func(source string) capture.Camera
	Persons   detector.PresenceDetector
	Items     detector.ItemDetector
	Store     *store.Store
	// Notifier replaces the notifiers built from Service.
	Notifier  notify.Notifier
	StaticDir string

	Logger *slog.Logger
	Now    func() time.Time
}

// App is the assembled service.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	metrics *metrics.Metrics
	seats   *occupancy.Manager
	cameras *camera.Manager
	journal *store.Journal
	hub     *server.Hub
	hooks   *hook.Runner
	server  *server.Server

	// Released by Close in reverse order.
	closers []func() error
}

// New builds every component. Call Run to start them and Close afterwards.
func New(ctx context.Context, cfg Config) (*App, error) {
	const op = "app.New"

	if cfg.Service == nil {
		return nil, fmt.Errorf("%s: missing service config", op)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{cfg: cfg.Service, logger: logger}

	if err := a.build(ctx, cfg); err != nil {
		a.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg Config) error {
	svc := cfg.Service

	st := cfg.Store
	if st == nil {
		if err := os.MkdirAll(filepath.Dir(svc.DBPath), 0755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
		var err error
		st, err = store.New(svc.DBPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		a.closers = append(a.closers, st.Close)
	}
	a.store = st

	// Scans still pending from a previous run will never complete.
	if pending, err := st.LostItems().ListPending(); err != nil {
		a.logger.Warn("failed to list pending lost-item scans", "error", err)
	} else if len(pending) > 0 {
		a.logger.Warn("lost-item scans interrupted by restart", "usage_ids", pending)
	}

	reg := cfg.Registry
	if reg == nil {
		var err error
		reg, err = camera.LoadRegistry(svc.Cameras.RegistryPath)
		if err != nil {
			return err
		}
	}
	a.logger.Info("camera registry loaded", "cameras", len(reg.Cameras), "seats", reg.SeatIDs())

	a.metrics = metrics.New()

	notifier := cfg.Notifier
	if notifier == nil {
		var err error
		notifier, err = a.buildNotifier(ctx)
		if err != nil {
			return err
		}
	}

	a.seats = occupancy.New(occupancy.Config{
		Notifier:      notifier,
		NotifyTimeout: svc.Notify.Timeout,
		Recorder:      st,
		Metrics:       a.metrics,
		Logger:        a.logger.With("component", "occupancy"),
		Now:           cfg.Now,
	})
	a.metrics.TrackBacklog(a.seats.QueueLen)

	persons, items := cfg.Persons, cfg.Items
	if persons == nil {
		persons = a.presenceDetector()
	}
	if items == nil {
		items = a.itemDetector()
	}

	cameras, err := camera.NewManagerFromRegistry(reg, camera.Options{
		NewCamera:       cfg.NewCamera,
		Persons:         persons,
		Items:           items,
		Sink:            a.seats,
		Threshold:       svc.Cameras.StabilizeFrames,
		MotionThreshold: svc.Cameras.MotionThreshold,
		Metrics:         a.metrics,
		Logger:          a.logger.With("component", "camera"),
		Now:             cfg.Now,
	})
	if err != nil {
		return err
	}
	a.cameras = cameras
	a.seats.SetDispatcher(cameras)

	a.journal = store.NewJournal(st, a.logger.With("component", "journal"))
	a.seats.Observe(a.journal.Handle)

	a.hub = server.NewHub(a.logger.With("component", "events"))
	a.seats.Observe(a.hub.Broadcast)

	if svc.Hooks.Dir != "" {
		hooks := hook.NewManager(svc.Hooks.Dir)
		if err := hooks.Discover(); err != nil {
			return fmt.Errorf("discover hooks: %w", err)
		}
		a.logger.Info("event hooks loaded", "dir", svc.Hooks.Dir, "count", len(hooks.List()))
		a.hooks = hook.NewRunner(hooks, hook.NewExecutor(svc.Hooks.Timeout), a.logger.With("component", "hook"))
		a.seats.Observe(a.hooks.Handle)
	}

	a.server = server.New(server.Config{
		StaticDir:     cfg.StaticDir,
		Seats:         a.seats,
		Cameras:       a.cameras,
		Notifier:      notifier,
		NotifyTimeout: svc.Notify.Timeout,
		Journal:       st.Events(),
		Hub:           a.hub,
		Metrics:       a.metrics.Handler(),
		Logger:        a.logger.With("component", "server"),
	})
	return nil
}

// buildNotifier fans checkout notifications out to the booking backend and
// to whichever brokers are configured.
func (a *App) buildNotifier(ctx context.Context) (notify.Notifier, error) {
	svc := a.cfg
	var multi notify.Multi

	if svc.Notify.BackendURL != "" {
		multi = append(multi, notify.NewHTTPNotifier(svc.Notify.BackendURL, nil))
	}
	if svc.AMQP.URL != "" {
		multi = append(multi, notify.NewAMQPPublisher(svc.AMQP.URL, svc.AMQP.Queue))
		a.logger.Info("checkout notifications published to RabbitMQ", "queue", svc.AMQP.Queue)
	}
	if svc.Redis.Addr != "" {
		rdb, err := notify.NewRedisClient(ctx, notify.RedisConfig{
			Addr:     svc.Redis.Addr,
			Password: svc.Redis.Password,
			DB:       svc.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
		multi = append(multi, notify.NewRedisPublisher(rdb))
		a.logger.Info("checkout notifications published to Redis", "channel", notify.ChannelCheckout())
	}

	if len(multi) == 0 {
		a.logger.Warn("no checkout notifier configured")
		return nil, nil
	}
	return multi, nil
}

// presenceDetector tries the YOLO service first and falls back to the mock.
func (a *App) presenceDetector() detector.PresenceDetector {
	dc := detector.PersonConfig(a.cfg.Detector.PersonModel)
	dc.ScriptPath = a.cfg.Detector.ScriptPath
	dc.PythonPath = a.cfg.Detector.PythonPath

	d, err := detector.NewYOLODetector(dc)
	if err != nil {
		a.logger.Warn("YOLO person detection not available, using mock detector", "error", err)
		return detector.NewMockDetector()
	}
	a.closers = append(a.closers, d.Close)
	a.logger.Info("using YOLO person detection", "model", dc.ModelPath)
	return d
}

func (a *App) itemDetector() detector.ItemDetector {
	dc := detector.ItemConfig(a.cfg.Detector.ItemModel)
	dc.ScriptPath = a.cfg.Detector.ScriptPath
	dc.PythonPath = a.cfg.Detector.PythonPath

	d, err := detector.NewYOLODetector(dc)
	if err != nil {
		a.logger.Warn("YOLO item detection not available, using mock detector", "error", err)
		return detector.NewMockDetector()
	}
	a.closers = append(a.closers, d.Close)
	a.logger.Info("using YOLO item detection", "model", dc.ModelPath)
	return d
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler { return a.server }

// Seats returns the occupancy manager.
func (a *App) Seats() *occupancy.Manager { return a.seats }

// Cameras returns the camera manager.
func (a *App) Cameras() *camera.Manager { return a.cameras }

// Store returns the database.
func (a *App) Store() *store.Store { return a.store }

// Metrics returns the pipeline counters.
func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// Run starts every background component plus the HTTP server on addr, and
// blocks until ctx is done or one of them fails. An empty addr skips the
// HTTP listener.
func (a *App) Run(ctx context.Context, addr string) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.cameras.Run(ctx) })
	g.Go(func() error { return a.seats.Run(ctx) })
	g.Go(func() error { return a.journal.Run(ctx) })
	if a.hooks != nil {
		g.Go(func() error { return a.hooks.Run(ctx) })
	}

	if addr != "" {
		srv := server.NewHTTPServer(addr, a.server)

		g.Go(func() error {
			a.logger.Info("http server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			a.hub.Close()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases detectors, broker clients and the store.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
