package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"rudder/internal/board"
	"rudder/internal/config"
	"rudder/internal/logger"
	"rudder/internal/market"
	"rudder/internal/scheduler"
	"rudder/internal/trade"
	guidedhttp "rudder/internal/transport/http"
)

// App owns application-level orchestration: dependency wiring, the HTTP
// API, and the background schedulers (position tick, board refresh,
// reconcile sweep).
type App struct {
	cfg        *config.Config
	store      trade.Store
	prices     *market.PriceCache
	manager    *trade.Manager
	reconciler *trade.Reconciler
	ranker     *board.Ranker
	server     *guidedhttp.Server
}

// Run starts the HTTP server and schedulers and blocks until ctx is
// cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.store.Close()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return a.server.Run(ctx)
	})

	if d, ok := scheduler.ParseIntervalDuration(a.cfg.Trading.TickInterval); ok {
		group.Go(func() error {
			scheduler.NewIntervalScheduler(ctx, d, 0).Start("position-tick", func() {
				a.tickOpenPositions(ctx)
			})
			return nil
		})
	}
	if d, ok := scheduler.ParseIntervalDuration(a.cfg.Board.RefreshInterval); ok {
		group.Go(func() error {
			s := scheduler.NewIntervalScheduler(ctx, d, 0)
			s.RunImmediately = true
			s.Start("board-refresh", func() {
				a.refreshBoard(ctx)
			})
			return nil
		})
	}
	if d, ok := scheduler.ParseIntervalDuration(a.cfg.Reconcile.SweepInterval); ok {
		group.Go(func() error {
			scheduler.NewIntervalScheduler(ctx, d, 0).Start("reconcile-sweep", func() {
				a.sweepReconcile(ctx)
			})
			return nil
		})
	}

	return group.Wait()
}

// WatchConfig re-applies hot-reloadable settings when the config file
// changes. Only the mode profiles and log level apply without restart;
// everything else takes effect on the next start.
func (a *App) WatchConfig(path string) (stop func(), err error) {
	return config.Watch(path, func(cfg *config.Config) {
		logger.SetLevel(cfg.App.LogLevel)
		profiles, err := loadProfiles(cfg.Board.ProfilesPath)
		if err != nil {
			logger.Warnf("config reload: keeping previous mode profiles: %v", err)
			return
		}
		a.ranker.SetProfiles(profiles)
	})
}

// tickOpenPositions feeds one price observation per open market into the
// lifecycle manager. Failures on one market never block the others.
func (a *App) tickOpenPositions(ctx context.Context) {
	uow, err := a.store.Begin(ctx)
	if err != nil {
		logger.Warnf("position tick: begin failed: %v", err)
		return
	}
	open, err := uow.Trades().ListOpen(ctx)
	uow.Rollback()
	if err != nil {
		logger.Warnf("position tick: listing open trades failed: %v", err)
		return
	}
	for _, t := range open {
		price, err := a.prices.Get(ctx, t.Market)
		if err != nil {
			logger.Warnf("position tick: quote %s failed: %v", t.Market, err)
			continue
		}
		res, err := a.manager.OnPrice(ctx, t.Market, price)
		if err != nil {
			logger.Warnf("position tick: %s: %v", t.Market, err)
			continue
		}
		if res.Closed {
			logger.Infof("position tick: %s closed (%s)", t.Market, res.CloseReason)
		}
	}
}

func (a *App) refreshBoard(ctx context.Context) {
	_, err := a.ranker.Rank(ctx, board.RankRequest{
		SortBy:        board.SortByRecommendedWinRate,
		SortDirection: board.SortDesc,
	})
	if err != nil {
		logger.Warnf("board refresh failed: %v", err)
	}
}

func (a *App) sweepReconcile(ctx context.Context) {
	summary, err := a.reconciler.Reconcile(ctx, a.cfg.Reconcile.WindowDays, false)
	if err != nil {
		logger.Warnf("reconcile sweep failed: %v", err)
		return
	}
	logger.Infow("reconcile sweep done",
		"scanned", summary.ScannedTrades, "updated", summary.UpdatedTrades,
		"high_confidence", summary.HighConfidenceTrades)
}
