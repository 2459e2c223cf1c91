package app

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// TradeMode runs the buy/sell schedulers (plus archive when configured)
// without the monitor. Useful when a separate monitor-mode instance watches
// the same store.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startScheduler(ctx, g, deps)
	a.startSupport(ctx, g, deps)
	return g.Wait()
}

// MonitorMode runs only the price monitor. With trading disabled it degrades
// to a dry-run observer that records prices and logs would-be triggers.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.Monitor.Run(ctx)
	})
	a.startSupport(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the schedulers and the monitor together, which is the
// normal single-process deployment.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startScheduler(ctx, g, deps)
	g.Go(func() error {
		return deps.Monitor.Run(ctx)
	})
	a.startSupport(ctx, g, deps)
	return g.Wait()
}

// startScheduler starts the trading cadence unless the master switch is off.
func (a *App) startScheduler(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Trading.Enabled {
		a.logger.WarnContext(ctx, "trading disabled, schedulers not started")
		return
	}
	g.Go(func() error {
		return deps.Scheduler.Run(ctx)
	})
}

// startSupport starts the optional quote stream and archive loops.
func (a *App) startSupport(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Stream != nil {
		g.Go(func() error {
			return deps.Stream.Run(ctx)
		})
	}
	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(ctx)
		})
	}
}
