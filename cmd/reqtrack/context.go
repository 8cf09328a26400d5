package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"reqtrack/internal/config"
	"reqtrack/internal/logging"
	"reqtrack/internal/requests"
)

type commandContext struct {
	configFlag *string
	verbose    *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string, verbose *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		verbose:    verbose,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// withStore opens the request database for the duration of fn.
func (c *commandContext) withStore(fn func(*config.Config, *requests.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := requests.Open(cfg)
	if err != nil {
		return fmt.Errorf("open request store: %w", err)
	}
	defer store.Close()
	return fn(cfg, store)
}

// logger returns a stderr logger that stays quiet unless --verbose is set.
func (c *commandContext) logger(cfg *config.Config) *slog.Logger {
	level := "warn"
	if c.verbose != nil && *c.verbose {
		level = "debug"
	}
	format := "console"
	if cfg != nil && cfg.Logging.Format != "" {
		format = cfg.Logging.Format
	}
	logger, err := logging.New(logging.Options{Level: level, Format: format, OutputPaths: []string{"stderr"}})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
