package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/empowa-tech/marketplace/internal/pipeline"
	"github.com/empowa-tech/marketplace/internal/pipeline/cron"
	"github.com/empowa-tech/marketplace/internal/server"
	"github.com/empowa-tech/marketplace/internal/server/handler"
	"github.com/empowa-tech/marketplace/internal/server/ws"
	"github.com/empowa-tech/marketplace/internal/service"
)

// run starts the selected jobs and the HTTP server under one errgroup.
func (a *App) run(ctx context.Context, deps *Dependencies, j jobs) error {
	g, ctx := errgroup.WithContext(ctx)

	var scheduler *pipeline.Scheduler
	if deps.Ledger != nil {
		s, err := a.newScheduler(deps)
		if err != nil {
			return err
		}
		scheduler = s
	}

	orch, err := a.newOrchestrator(deps, j, scheduler)
	if err != nil {
		return err
	}
	started := false
	if orch != nil {
		started = true
		g.Go(func() error {
			return orch.Run(ctx)
		})
	}

	if j.serve {
		started = true
		a.startHTTPServer(ctx, g, deps, scheduler)
	}

	if !started {
		return errors.New("app: nothing to run (enable the server or a background job)")
	}
	return g.Wait()
}

// newScheduler builds the reconciliation engine behind its overlap guard.
func (a *App) newScheduler(deps *Dependencies) (*pipeline.Scheduler, error) {
	pc := a.cfg.Processor
	sched, err := cron.Parse(pc.Schedule)
	if err != nil {
		return nil, fmt.Errorf("app: processor schedule: %w", err)
	}
	reconciler := pipeline.NewSalesReconciler(
		deps.Activities,
		deps.Extends,
		deps.Ledger,
		deps.Events,
		deps.AuditStore,
		pipeline.ReconcilerConfig{
			Concurrency:      pc.Concurrency,
			MinConfirmations: pc.MinConfirmations,
			TestOnly:         pc.TestOnly,
		},
		a.logger,
	)
	return pipeline.NewScheduler(reconciler, deps.LockManager, deps.Notifier, pipeline.SchedulerConfig{
		Schedule:   sched,
		LockKey:    pc.LockKey,
		RunTimeout: pc.RunTimeout.Duration,
	}, a.logger), nil
}

// newOrchestrator returns nil when j selects no background job.
func (a *App) newOrchestrator(deps *Dependencies, j jobs, scheduler *pipeline.Scheduler) (*pipeline.Orchestrator, error) {
	var (
		reconcile *pipeline.Scheduler
		ingester  *pipeline.AssetIngester
		archiver  *pipeline.Archiver
		archSched cron.Schedule
	)

	if j.reconcile {
		if scheduler == nil {
			return nil, errors.New("app: reconciliation needs a blockfrost project_id")
		}
		reconcile = scheduler
	}
	if j.ingest {
		if deps.Ledger == nil {
			return nil, errors.New("app: ingestion needs a blockfrost project_id")
		}
		ingester = pipeline.NewAssetIngester(deps.Ledger, deps.Assets, deps.AssetCache, a.cfg.Ingest.PolicyIDs, a.logger)
	}
	if j.archive && deps.BlobArchiver != nil {
		s, err := cron.Parse(a.cfg.Archive.Cron)
		if err != nil {
			return nil, fmt.Errorf("app: archive cron: %w", err)
		}
		archiver = pipeline.NewArchiver(deps.BlobArchiver, a.cfg.Archive.RetentionDays, a.logger)
		archSched = s
	}

	if reconcile == nil && ingester == nil && archiver == nil {
		return nil, nil
	}
	return pipeline.NewOrchestrator(reconcile, ingester, archiver, a.cfg.Ingest.Interval.Duration, archSched, a.logger), nil
}

// startHTTPServer adds the WebSocket hub and HTTP server goroutines to g. The
// server is shut down gracefully when ctx is cancelled. The manual
// reconciliation trigger is mounted only when scheduler is non-nil.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, scheduler *pipeline.Scheduler) {
	sc := a.cfg.Server

	listings := service.NewListingService(deps.Assets, deps.AssetCache, sc.MaxPageSize, a.logger)
	activities := service.NewActivityService(deps.Activities, deps.Assets, deps.AssetCache, deps.Events, a.logger)
	configs := service.NewConfigService(deps.Configs)

	var (
		running func() bool
		breaker func() string
	)
	if scheduler != nil {
		running = scheduler.Running
	}
	if deps.Ledger != nil {
		breaker = deps.Ledger.BreakerState
	}

	h := server.Handlers{
		Health:   handler.NewHealthHandler(deps.Checks, a.logger),
		Status:   handler.NewStatusHandler(a.cfg.Mode, running, breaker),
		Listings: handler.NewListingHandler(listings, a.logger),
		Activity: handler.NewActivityHandler(activities, a.logger),
		Config:   handler.NewConfigHandler(configs, a.logger),
	}
	if scheduler != nil {
		h.Sales = handler.NewSalesHandler(scheduler, a.logger)
	}
	if deps.AuditStore != nil {
		h.Audit = handler.NewAuditHandler(deps.AuditStore, a.logger)
	}

	hub := ws.NewHub(deps.SignalBus, sc.CORSOrigins, a.logger)
	g.Go(func() error {
		err := hub.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	cfg := server.Config{
		Port:          sc.Port,
		CORSOrigins:   sc.CORSOrigins,
		RatePerMinute: sc.RatePerMinute,
	}
	srv := server.NewServer(cfg, server.NewRouter(cfg, h, deps.RateLimiter, hub, a.logger), a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			a.logger.Warn("HTTP server shutdown incomplete", slog.String("error", err.Error()))
		}
		return nil
	})
}
