// Package app provides the top-level lifecycle of the resolution service. It
// wires the pipeline and its sinks from configuration and runs the long-lived
// server or one-shot batch commands on top of them.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/polyoracle/internal/config"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()

	wireOnce sync.Once
	deps     *Dependencies
	wireErr  error
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Dependencies wires all dependencies on first use and returns them.
func (a *App) Dependencies(ctx context.Context) (*Dependencies, error) {
	a.wireOnce.Do(func() {
		deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
		if err != nil {
			a.wireErr = fmt.Errorf("app: wire dependencies: %w", err)
			return
		}
		a.closers = append(a.closers, cleanup)
		a.deps = deps
	})
	return a.deps, a.wireErr
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	if len(a.closers) == 0 {
		return
	}
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
