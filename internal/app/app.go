// Package app owns the top-level lifecycle: it wires the store, caches, venue
// and feed clients, bus, scheduler, and engine together, and runs the
// goroutines for the configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/snipebot/internal/config"
)

// App is the root application object. It owns the live configuration store,
// the logger, and the cleanup functions run in reverse order on shutdown.
type App struct {
	cfg        *config.Store
	configPath string
	logger     *slog.Logger
	closers    []func()
}

// New creates an App around a validated configuration snapshot. configPath is
// watched for hot reloads while the app runs.
func New(cfg *config.Config, configPath string, logger *slog.Logger) *App {
	return &App{
		cfg:        config.NewStore(cfg),
		configPath: configPath,
		logger:     logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the goroutines for the configured mode,
// and blocks until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	snapshot := a.cfg.Current()

	a.logger.InfoContext(ctx, "starting",
		slog.String("mode", snapshot.Mode),
		slog.String("storage_backend", snapshot.Storage.Backend),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.configPath, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(snapshot.Mode) {
	case "trade":
		return a.TradeMode(ctx, deps)
	case "monitor":
		return a.MonitorMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", snapshot.Mode)
	}
}

// Close tears down all resources in reverse registration order. Safe to call
// more than once.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
