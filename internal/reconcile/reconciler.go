package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"reqtrack/internal/config"
	"reqtrack/internal/credentials"
	"reqtrack/internal/library"
	"reqtrack/internal/logging"
	"reqtrack/internal/requests"
)

// Source lists open requests and applies transitions. requests.Store implements it.
type Source interface {
	ListOpen(ctx context.Context) ([]*requests.Request, error)
	Transition(ctx context.Context, id int64, to requests.Status, changedBy, note string) (*requests.Request, error)
}

// CredentialSource picks the credential a pass acts with.
type CredentialSource interface {
	Select(ctx context.Context) (credentials.Credential, bool, error)
}

// Checker decides whether one request is in the library.
type Checker interface {
	Check(ctx context.Context, req *requests.Request, cred credentials.Credential) library.Result
}

// Skip reasons reported when a pass ends before checking any request.
const (
	SkipNoOpenRequests = "no_open_requests"
	SkipNoCredential   = "no_credential"
)

// PassSummary describes one completed pass.
type PassSummary struct {
	PassID       string        `json:"pass_id"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	Open         int           `json:"open"`
	Checked      int           `json:"checked"`
	Fulfilled    int           `json:"fulfilled"`
	NoMatch      int           `json:"no_match"`
	Errors       int           `json:"errors"`
	Skipped      string        `json:"skipped,omitempty"`
	Aborted      bool          `json:"aborted"`
	Cancelled    bool          `json:"cancelled"`
	Error        string        `json:"error,omitempty"`
	FulfilledIDs []int64       `json:"fulfilled_ids,omitempty"`
	// OverriddenIDs lists fulfilled requests that an admin had closed after
	// the pass listed them as open.
	OverriddenIDs []int64 `json:"overridden_ids,omitempty"`
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithClock replaces the wall clock.
func WithClock(clock Clock) Option {
	return func(r *Reconciler) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithPassHook registers fn to receive every summary after a pass finishes.
// Hooks run in registration order.
func WithPassHook(fn func(PassSummary)) Option {
	return func(r *Reconciler) {
		if fn != nil {
			r.onPass = append(r.onPass, fn)
		}
	}
}

// Reconciler periodically fulfills open requests found in the library.
type Reconciler struct {
	source            Source
	selector          CredentialSource
	checker           Checker
	logger            *slog.Logger
	clock             Clock
	interval          time.Duration
	transitionTimeout time.Duration
	runOnStart        bool
	onPass            []func(PassSummary)

	passMu sync.Mutex

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastPass *PassSummary
}

// New constructs a Reconciler using the reconcile section of cfg.
func New(cfg *config.Config, source Source, selector CredentialSource, checker Checker, logger *slog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		source:            source,
		selector:          selector,
		checker:           checker,
		logger:            logging.NewComponentLogger(logger, "reconcile"),
		clock:             SystemClock{},
		interval:          300 * time.Second,
		transitionTimeout: 10 * time.Second,
	}
	if cfg != nil {
		if d := cfg.ReconcileInterval(); d > 0 {
			r.interval = d
		}
		if d := cfg.TransitionTimeout(); d > 0 {
			r.transitionTimeout = d
		}
		r.runOnStart = cfg.Reconcile.RunOnStart
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Interval returns the pass cadence.
func (r *Reconciler) Interval() time.Duration {
	return r.interval
}

// Start launches the background loop. It returns an error when already running.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("reconciler already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.wg.Add(1)
	go r.loop(runCtx)
	r.logger.Info("reconciliation loop started",
		logging.Duration("interval", r.interval),
		logging.Bool("run_on_start", r.runOnStart),
	)
	return nil
}

// Stop cancels the loop and waits for it to exit. An in-flight transition
// finishes before Stop returns.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
	r.logger.Info("reconciliation loop stopped")
}

// Running reports whether the background loop is active.
func (r *Reconciler) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// LastPass returns the most recent pass summary.
func (r *Reconciler) LastPass() (PassSummary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastPass == nil {
		return PassSummary{}, false
	}
	return *r.lastPass, true
}

func (r *Reconciler) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	if r.runOnStart {
		r.runFromLoop(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			r.runFromLoop(ctx)
		}
	}
}

func (r *Reconciler) runFromLoop(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := r.RunPass(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.WarnWithContext(r.logger, "reconciliation pass failed; retrying next tick", "reconcile_pass_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check database access and library configuration"),
			logging.String(logging.FieldImpact, "open requests were not checked this tick"),
		)
	}
}

// RunPass runs one reconciliation pass and returns its summary. Passes are
// serialized. The returned error reports failures that ended the pass before
// any request was checked; per-request failures are only counted.
func (r *Reconciler) RunPass(ctx context.Context) (summary PassSummary, err error) {
	r.passMu.Lock()
	defer r.passMu.Unlock()

	summary = PassSummary{
		PassID:    uuid.NewString(),
		StartedAt: r.clock.Now().UTC(),
	}
	ctx = logging.WithPassID(ctx, summary.PassID)
	logger := logging.WithContext(ctx, r.logger)

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("reconciliation pass panicked: %v", rec)
			logging.ErrorWithContext(logger, "reconciliation pass panicked", "reconcile_panic",
				logging.Any("panic", rec),
				logging.String(logging.FieldErrorHint, "report this bug with the surrounding log lines"),
			)
		}
		summary.Duration = r.clock.Now().UTC().Sub(summary.StartedAt)
		if err != nil {
			summary.Error = err.Error()
		}
		r.recordPass(summary)
	}()

	summary, err = r.pass(ctx, logger, summary)
	return summary, err
}

func (r *Reconciler) pass(ctx context.Context, logger *slog.Logger, summary PassSummary) (PassSummary, error) {
	open, err := r.source.ListOpen(ctx)
	if err != nil {
		return summary, fmt.Errorf("list open requests: %w", err)
	}
	summary.Open = len(open)
	if len(open) == 0 {
		summary.Skipped = SkipNoOpenRequests
		logger.Debug("no open requests")
		return summary, nil
	}

	cred, ok, err := r.selector.Select(ctx)
	if err != nil {
		return summary, fmt.Errorf("select credential: %w", err)
	}
	if !ok {
		summary.Skipped = SkipNoCredential
		logging.WarnWithContext(logger, "no admin credential for library checks; skipping pass", "reconcile_no_credential",
			logging.Int("open", summary.Open),
			logging.String(logging.FieldErrorHint, "sign in as an admin or run 'reqtrack users link --admin'"),
			logging.String(logging.FieldImpact, "open requests are not auto-fulfilled"),
		)
		return summary, nil
	}

	for _, req := range open {
		if ctx.Err() != nil {
			summary.Cancelled = true
			break
		}
		var stop bool
		summary, stop = r.step(ctx, logger, summary, req, cred)
		if stop {
			break
		}
	}

	logger.Info("reconciliation pass complete",
		logging.Int("open", summary.Open),
		logging.Int("checked", summary.Checked),
		logging.Int("fulfilled", summary.Fulfilled),
		logging.Int("no_match", summary.NoMatch),
		logging.Int("errors", summary.Errors),
		logging.Bool("aborted", summary.Aborted),
		logging.Bool("cancelled", summary.Cancelled),
	)
	return summary, nil
}

// step folds one request's library result into the summary. stop is true
// when the rest of the pass must be abandoned.
func (r *Reconciler) step(ctx context.Context, logger *slog.Logger, summary PassSummary, req *requests.Request, cred credentials.Credential) (PassSummary, bool) {
	result := r.checker.Check(ctx, req, cred)
	summary.Checked++
	reqLogger := logger.With(logging.Int64(logging.FieldRequestID, req.ID))

	switch result.Outcome {
	case library.OutcomeMatch:
		updated, err := r.fulfill(ctx, req.ID)
		if err != nil {
			summary.Errors++
			logging.WarnWithContext(reqLogger, "auto-fulfill failed", "reconcile_transition_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check database access"),
				logging.String(logging.FieldImpact, "request stays open until the next pass"),
			)
			return summary, false
		}
		summary.Fulfilled++
		summary.FulfilledIDs = append(summary.FulfilledIDs, req.ID)
		if from := updated.PreviousStatus; from != "" && !from.Open() {
			summary.OverriddenIDs = append(summary.OverriddenIDs, req.ID)
			logging.WarnWithContext(reqLogger, "request auto-fulfilled after it was closed", "reconcile_overrode_closed",
				logging.String("title", req.Title),
				logging.String("item_id", result.ItemID),
				logging.String("from", string(from)),
				logging.String(logging.FieldImpact, "an admin decision made during the pass was replaced"),
				logging.String(logging.FieldErrorHint, "set the status again if the title should stay "+string(from)),
			)
			break
		}
		reqLogger.Info("request auto-fulfilled",
			logging.String("title", req.Title),
			logging.String("item_id", result.ItemID),
			logging.String("from", string(updated.PreviousStatus)),
		)
	case library.OutcomeAuthFailed:
		summary.Aborted = true
		summary.Error = "library rejected the admin credential"
		if result.Err != nil {
			summary.Error = result.Err.Error()
		}
		logging.WarnWithContext(reqLogger, "library rejected admin credential; ending pass", "reconcile_auth_failed",
			logging.Error(result.Err),
			logging.String("credential_user", cred.Username),
			logging.String(logging.FieldErrorHint, "have an admin sign in again to refresh the library token"),
			logging.String(logging.FieldImpact, "remaining requests are checked next tick"),
		)
		return summary, true
	case library.OutcomeError:
		summary.Errors++
		reqLogger.Debug("library check failed; skipping request", logging.Error(result.Err))
	default:
		summary.NoMatch++
		if result.Reason != "" {
			reqLogger.Debug("no library match", logging.String("reason", result.Reason))
		}
	}
	return summary, false
}

// fulfill runs the transition detached from ctx cancellation so shutdown
// never interrupts a write already in progress.
func (r *Reconciler) fulfill(ctx context.Context, id int64) (*requests.Request, error) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.transitionTimeout)
	defer cancel()
	return r.source.Transition(writeCtx, id, requests.StatusFulfilled, requests.SystemActor, "")
}

func (r *Reconciler) recordPass(summary PassSummary) {
	r.mu.Lock()
	r.lastPass = &summary
	hooks := r.onPass
	r.mu.Unlock()
	for _, hook := range hooks {
		hook(summary)
	}
}
