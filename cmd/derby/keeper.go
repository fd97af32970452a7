package main

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/derby/config"
	"github.com/alejandrodnm/derby/internal/adapters/notify"
	"github.com/alejandrodnm/derby/internal/application/keeper"
)

// runKeeper arranca el loop del operador junto al servidor de métricas y,
// en modo sim, el minado de bloques. Si uno falla se cancelan los demás.
func runKeeper(ctx context.Context, cfg *config.Config, once, table bool) error {
	d, err := buildDeps(ctx, cfg, false)
	if err != nil {
		return fmt.Errorf("runKeeper: %w", err)
	}
	defer d.Close()

	k := keeper.New(keeper.Config{
		Interval:      cfg.KeeperInterval(),
		RatePerSecond: cfg.Keeper.RatePerSecond,
		Burst:         cfg.Keeper.Burst,
		Identity:      config.Address(cfg.Keeper.Identity),
		PublishOdds:   cfg.Keeper.PublishOdds,
		CancelStuck:   cfg.Keeper.CancelStuck,
		DryRun:        once,
	}, d.engine, notify.NewConsole(table), d.metrics)

	if once {
		return k.Run(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	if d.sim != nil {
		g.Go(func() error {
			d.sim.Run(gctx, cfg.BlockInterval())
			return nil
		})
	}
	if cfg.Metrics.Listen != "" {
		g.Go(func() error { return d.metrics.Serve(gctx, cfg.Metrics.Listen) })
	}
	g.Go(func() error { return k.Run(gctx) })

	if err := g.Wait(); err != nil {
		return fmt.Errorf("runKeeper: %w", err)
	}
	return nil
}
