package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// TradeMode runs the full lifecycle: discovery buys, price monitoring, stage
// sells, and reactivation.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	if err := deps.Engine.Start(ctx); err != nil {
		return fmt.Errorf("app: start engine: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return deps.Scheduler.Run(ctx) })
	g.Go(func() error { return deps.Engine.Run(ctx) })
	g.Go(func() error { return deps.Watcher.Run(ctx) })

	if deps.Discovery != nil {
		g.Go(func() error { return deps.Discovery.Run(ctx) })
	} else {
		a.logger.InfoContext(ctx, "discovery disabled, positions must already exist in the store")
	}

	return g.Wait()
}

// MonitorMode runs price monitoring and ladder evaluation without ever
// touching the venue: crossings are logged and notified, nothing is sold.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode, swaps disabled")

	if err := deps.Engine.Start(ctx); err != nil {
		return fmt.Errorf("app: start engine: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return deps.Scheduler.Run(ctx) })
	g.Go(func() error { return deps.Engine.Run(ctx) })
	g.Go(func() error { return deps.Watcher.Run(ctx) })

	return g.Wait()
}
