package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"reqtrack/internal/config"
	"reqtrack/internal/credentials"
	"reqtrack/internal/library"
	"reqtrack/internal/logging"
	"reqtrack/internal/notifications"
	"reqtrack/internal/preflight"
	"reqtrack/internal/reconcile"
	"reqtrack/internal/requests"
	"reqtrack/internal/services/jellyfin"
)

// Daemon owns the request store, the reconciliation loop, and the HTTP API,
// and enforces single-instance execution per data directory.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *requests.Store
	library    *jellyfin.Client
	selector   *credentials.Selector
	reconciler *reconcile.Reconciler
	api        *apiServer
	notifier   notifications.Service
	notifyWG   sync.WaitGroup

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running          bool                   `json:"running"`
	ReconcileEnabled bool                   `json:"reconcile_enabled"`
	ReconcileRunning bool                   `json:"reconcile_running"`
	ReconcileEvery   string                 `json:"reconcile_interval"`
	LastPass         *reconcile.PassSummary `json:"last_pass,omitempty"`
	DatabasePath     string                 `json:"database_path"`
	LockFilePath     string                 `json:"lock_path"`
	APIAddress       string                 `json:"api_address,omitempty"`
}

type options struct {
	jellyfinOpts  []jellyfin.Option
	reconcileOpts []reconcile.Option
	notifier      notifications.Service
}

// Option customizes daemon construction.
type Option func(*options)

// WithJellyfinOptions forwards options to the Jellyfin client.
func WithJellyfinOptions(opts ...jellyfin.Option) Option {
	return func(o *options) {
		o.jellyfinOpts = append(o.jellyfinOpts, opts...)
	}
}

// WithReconcileOptions forwards options to the reconciler.
func WithReconcileOptions(opts ...reconcile.Option) Option {
	return func(o *options) {
		o.reconcileOpts = append(o.reconcileOpts, opts...)
	}
}

// WithNotifier replaces the notification service built from configuration.
func WithNotifier(service notifications.Service) Option {
	return func(o *options) {
		o.notifier = service
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *requests.Store, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	client := jellyfin.NewConfiguredClient(cfg, o.jellyfinOpts...)
	selector := credentials.NewSelector(store)
	matcher := library.NewMatcher(cfg, client, logger)

	notifier := o.notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		library:  client,
		selector: selector,
		notifier: notifier,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	reconcileOpts := append([]reconcile.Option{reconcile.WithPassHook(d.notifyPass)}, o.reconcileOpts...)
	d.reconciler = reconcile.New(cfg, store, selector, matcher, logger, reconcileOpts...)

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, fmt.Errorf("create api server: %w", err)
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock, starts the reconciliation loop when
// enabled, and begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another reqtrack daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.logPreflight(d.ctx)

	if d.cfg.Reconcile.Enabled {
		if err := d.reconciler.Start(d.ctx); err != nil {
			d.abortStart()
			return fmt.Errorf("start reconciler: %w", err)
		}
	} else {
		d.logger.Info("reconciliation disabled by configuration",
			logging.String(logging.FieldEventType, "reconcile_disabled"),
		)
	}

	if err := d.api.start(d.ctx); err != nil {
		d.reconciler.Stop()
		d.abortStart()
		return fmt.Errorf("start api: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("reqtrack daemon started",
		logging.String("lock", d.lockPath),
		logging.String("database", d.store.Path()),
		logging.String("api", d.api.address()),
	)
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

// Stop stops background processing and releases the daemon lock. A
// transition in flight when Stop is called completes first.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.reconciler.Stop()
	d.notifyWG.Wait()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
		)
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("reqtrack daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	status := Status{
		Running:          d.running.Load(),
		ReconcileEnabled: d.cfg.Reconcile.Enabled,
		ReconcileRunning: d.reconciler.Running(),
		ReconcileEvery:   d.reconciler.Interval().String(),
		DatabasePath:     d.store.Path(),
		LockFilePath:     d.lockPath,
		APIAddress:       d.api.address(),
	}
	if last, ok := d.reconciler.LastPass(); ok {
		status.LastPass = &last
	}
	return status
}

// Health runs the preflight checks against the live dependencies.
func (d *Daemon) Health(ctx context.Context) []preflight.Result {
	return preflight.RunAll(ctx, d.cfg, preflight.Dependencies{
		Database: d.store,
		Library:  d.library,
		Selector: d.selector,
	})
}

// Reconcile runs one reconciliation pass immediately. It waits for any pass
// already in progress.
func (d *Daemon) Reconcile(ctx context.Context) (reconcile.PassSummary, error) {
	return d.reconciler.RunPass(ctx)
}

// LastPass returns the most recent reconciliation summary.
func (d *Daemon) LastPass() (reconcile.PassSummary, bool) {
	return d.reconciler.LastPass()
}

// Addr returns the address the API is listening on, or "" before Start.
func (d *Daemon) Addr() string {
	return d.api.address()
}

func (d *Daemon) logPreflight(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for _, result := range d.Health(checkCtx) {
		if result.Passed {
			d.logger.Info("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "dependent features may fail until fixed"),
			logging.String(logging.FieldErrorHint, "run reqtrack health for details"),
		)
	}
}
