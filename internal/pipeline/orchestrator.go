package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/empowa-tech/marketplace/internal/pipeline/cron"
)

// Orchestrator runs the background jobs that are enabled: reconciliation,
// asset ingestion, and archival. A nil job is skipped.
type Orchestrator struct {
	scheduler      *Scheduler
	ingester       *AssetIngester
	archiver       *Archiver
	ingestInterval time.Duration
	archiveSched   cron.Schedule
	logger         *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(
	scheduler *Scheduler,
	ingester *AssetIngester,
	archiver *Archiver,
	ingestInterval time.Duration,
	archiveSched cron.Schedule,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		scheduler:      scheduler,
		ingester:       ingester,
		archiver:       archiver,
		ingestInterval: ingestInterval,
		archiveSched:   archiveSched,
		logger:         logger.With(slog.String("component", "orchestrator")),
	}
}

// Run starts every enabled job under one errgroup. A job returning a
// non-context error cancels the others and is returned.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Bool("reconcile", o.scheduler != nil),
		slog.Bool("ingest", o.ingester != nil),
		slog.Bool("archive", o.archiver != nil),
	)

	g, ctx := errgroup.WithContext(ctx)

	if o.scheduler != nil {
		g.Go(func() error {
			return clean(ctx, "reconciliation scheduler", o.scheduler.Run(ctx))
		})
	}
	if o.ingester != nil {
		g.Go(func() error {
			return clean(ctx, "asset ingester", o.ingester.RunLoop(ctx, o.ingestInterval))
		})
	}
	if o.archiver != nil && o.archiveSched != nil {
		g.Go(func() error {
			return clean(ctx, "archiver", o.archiver.RunCron(ctx, o.archiveSched))
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}

// clean turns a shutdown-induced error into nil.
func clean(ctx context.Context, job string, err error) error {
	if ctx.Err() != nil || err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", job, err)
}
