// Package app provides the top-level application lifecycle for the
// marketplace daemon. It wires together the stores, caches, ledger client,
// event delivery, and notifications, and starts the background jobs and HTTP
// server selected by the operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/empowa-tech/marketplace/internal/config"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the goroutines of the configured mode,
// and blocks until the context is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	j, err := jobsFor(a.cfg)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	return a.run(ctx, deps, j)
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// jobs selects the background work a mode runs.
type jobs struct {
	reconcile bool
	ingest    bool
	archive   bool
	serve     bool
}

func jobsFor(cfg *config.Config) (jobs, error) {
	switch strings.ToLower(cfg.Mode) {
	case "api":
		return jobs{serve: true}, nil
	case "processor":
		return jobs{reconcile: true, archive: cfg.Archive.Enabled, serve: cfg.Server.Enabled}, nil
	case "ingest":
		return jobs{ingest: true, serve: cfg.Server.Enabled}, nil
	case "full":
		return jobs{
			reconcile: cfg.Processor.Enabled,
			ingest:    len(cfg.Ingest.PolicyIDs) > 0,
			archive:   cfg.Archive.Enabled,
			serve:     cfg.Server.Enabled,
		}, nil
	default:
		return jobs{}, fmt.Errorf("unsupported mode %q", cfg.Mode)
	}
}
