package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"dynq/internal/config"
	"dynq/internal/events"
	"dynq/internal/logging"
	"dynq/internal/queue"
	"dynq/internal/recovery"
	"dynq/internal/scheduler"
	"dynq/internal/telemetry"
	"dynq/internal/transport"
)

// ErrNotRunning is returned for queue commands while the daemon is stopped.
var ErrNotRunning = errors.New("daemon is not running")

// Daemon owns the scheduler lifecycle and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	provider transport.Provider
	bus      *events.Bus

	lockPath string
	lock     *flock.Flock

	lifecycle sync.Mutex

	mu             sync.Mutex
	sched          *scheduler.Scheduler
	api            *apiServer
	shutdownTracer func()
	recovered      recovery.Report

	running atomic.Bool
}

// Option customizes daemon construction.
type Option func(*Daemon)

// WithProvider overrides the transport provider built from configuration.
func WithProvider(provider transport.Provider) Option {
	return func(d *Daemon) {
		if provider != nil {
			d.provider = provider
		}
	}
}

// WithSinks attaches additional completion event sinks.
func WithSinks(sinks ...events.Sink) Option {
	return func(d *Daemon) {
		for _, sink := range sinks {
			d.bus.AddSink(sink)
		}
	}
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	QueueDBPath  string
	LockFilePath string
	SocketPath   string
	Environments []string
	Scheduler    *scheduler.Snapshot
	Recovered    int
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		provider: transport.NewProvider(cfg, logger),
		bus:      events.NewBus(logger),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, sink := range buildSinks(cfg) {
		d.bus.AddSink(sink)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start acquires the instance lock, reconciles interrupted work, and launches
// the scheduler and API server. Auto-dispatch starts off.
func (d *Daemon) Start(ctx context.Context) error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another dynq daemon instance is already running")
	}

	shutdownTracer, err := telemetry.InitTracer(ctx, d.cfg.Telemetry.ServiceName, d.cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		d.logger.Warn("tracer initialization failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "tracer_init_failed"),
			logging.String(logging.FieldErrorHint, "check telemetry.otlp_endpoint"),
			logging.String(logging.FieldImpact, "execution spans will not be exported"),
		)
		shutdownTracer = func() {}
	}

	report, err := recovery.Reconcile(ctx, d.store, d.logger, time.Now().UTC())
	if err != nil {
		shutdownTracer()
		_ = d.lock.Unlock()
		return fmt.Errorf("recover queue: %w", err)
	}

	settings, stored, err := d.store.LoadSettings(ctx, queue.DefaultSettings(d.cfg.Queue.MaxConcurrent))
	if err != nil {
		d.logger.Warn("queue settings unavailable; using defaults",
			logging.Error(err),
			logging.String(logging.FieldEventType, "queue_settings_load_failed"),
			logging.String(logging.FieldImpact, "filter, sort, and concurrency revert to config defaults"),
		)
		settings = queue.DefaultSettings(d.cfg.Queue.MaxConcurrent)
	}

	sched := scheduler.New(scheduler.Options{
		MaxConcurrent: settings.MaxConcurrent,
		PriorityTiers: d.cfg.Queue.PriorityTiers,
	}, d.store, d.provider, d.bus, d.logger)
	if err := sched.Start(ctx, report.Items, settings); err != nil {
		shutdownTracer()
		_ = d.lock.Unlock()
		return fmt.Errorf("start scheduler: %w", err)
	}

	api, err := newAPIServer(d.cfg, d, sched, d.logger)
	if err == nil {
		err = api.start(ctx)
	}
	if err != nil {
		sched.Stop()
		shutdownTracer()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api server: %w", err)
	}

	d.mu.Lock()
	d.sched = sched
	d.api = api
	d.shutdownTracer = shutdownTracer
	d.recovered = report
	d.mu.Unlock()
	d.running.Store(true)
	d.logger.Info("dynq daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("items", len(report.Items)),
		logging.Int("interrupted", len(report.Interrupted)),
		logging.Bool("stored_settings", stored),
	)
	return nil
}

// Stop halts dispatch, waits for in-flight attempts, and releases the lock.
func (d *Daemon) Stop() {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()
	if !d.running.Load() {
		return
	}

	d.mu.Lock()
	api, sched, shutdownTracer := d.api, d.sched, d.shutdownTracer
	d.api, d.sched, d.shutdownTracer = nil, nil, nil
	d.mu.Unlock()
	d.running.Store(false)

	api.stop()
	sched.Stop()
	if shutdownTracer != nil {
		shutdownTracer()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_lock_release_failed"),
		)
	}
	d.logger.Info("dynq daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if err := d.bus.Close(); err != nil {
		d.logger.Warn("event sink close failed", logging.Error(err))
	}
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Scheduler returns the live scheduler, or ErrNotRunning.
func (d *Daemon) Scheduler() (*scheduler.Scheduler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sched == nil {
		return nil, ErrNotRunning
	}
	return d.sched, nil
}

// Events exposes the completion event bus for in-process subscribers.
func (d *Daemon) Events() *events.Bus {
	return d.bus
}

// AddBatch builds queue items from a batch request and appends them.
func (d *Daemon) AddBatch(ctx context.Context, req queue.BuildRequest) ([]*queue.Item, error) {
	sched, err := d.Scheduler()
	if err != nil {
		return nil, err
	}
	if _, ok := d.cfg.Environment(req.Environment); !ok {
		return nil, fmt.Errorf("unknown environment %q", req.Environment)
	}
	if req.BatchSize == 0 {
		req.BatchSize = d.cfg.Queue.BatchSize
	}
	items, err := queue.BuildItems(req)
	if err != nil {
		return nil, err
	}
	if err := sched.AddItems(ctx, items); err != nil {
		return nil, err
	}
	d.logger.Info("batch queued",
		logging.Environment(req.Environment),
		logging.String("label", req.Label),
		logging.Int("items", len(items)),
	)
	return items, nil
}

// Ready reports whether the scheduler loop is responsive.
func (d *Daemon) Ready(ctx context.Context) error {
	sched, err := d.Scheduler()
	if err != nil {
		return err
	}
	_, err = sched.Snapshot(ctx)
	return err
}

// QueueHealth returns aggregate queue diagnostics from the database.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		SocketPath:   d.cfg.SocketPath(),
	}
	for _, env := range d.cfg.Environments {
		status.Environments = append(status.Environments, env.Name)
	}
	d.mu.Lock()
	sched := d.sched
	status.Recovered = len(d.recovered.Interrupted)
	d.mu.Unlock()
	if sched != nil {
		if snap, err := sched.Snapshot(ctx); err == nil {
			status.Scheduler = &snap
		}
	}
	return status
}
