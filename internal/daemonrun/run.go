package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"

	"reqtrack/internal/config"
	"reqtrack/internal/daemon"
	"reqtrack/internal/logging"
	"reqtrack/internal/requests"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// LockFinal refuses transitions out of denied and fulfilled.
	LockFinal bool
}

// Run starts the reqtrack daemon and blocks until SIGINT, SIGTERM, or
// cancellation of cmdCtx.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", filepath.Join(cfg.Paths.LogDir, "reqtrack.log")},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logConfigSnapshot(logger, cfg)

	var storeOpts []requests.Option
	if opts.LockFinal {
		storeOpts = append(storeOpts, requests.WithTransitionPolicy(requests.LockFinal))
	}
	store, err := requests.Open(cfg, storeOpts...)
	if err != nil {
		logging.ErrorWithContext(logger, "open request store", "store_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check data_dir permissions and schema version"),
		)
		return err
	}

	d, err := daemon.New(cfg, store, logger)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-signalCtx.Done()
	logger.Info("reqtrack daemon shutting down")
	return nil
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("data_dir", cfg.Paths.DataDir),
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.String("library_url", cfg.Library.URL),
		logging.Any("media_types", cfg.Requests.MediaTypes),
		logging.Bool("reconcile_enabled", cfg.Reconcile.Enabled),
		logging.Duration("reconcile_interval", cfg.ReconcileInterval()),
		logging.Bool("jwt_secret_present", cfg.Auth.JWTSecret != ""),
		logging.Bool("notifications_enabled", cfg.Notifications.NtfyTopic != ""),
	)
}
