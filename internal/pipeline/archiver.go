package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/empowa-tech/marketplace/internal/domain"
	"github.com/empowa-tech/marketplace/internal/pipeline/cron"
)

// Archiver exports settled sale activities to cold storage on a schedule.
type Archiver struct {
	blobArchiver  domain.ActivityArchiver
	retentionDays int
	now           func() time.Time
	logger        *slog.Logger
}

// NewArchiver creates a new Archiver.
func NewArchiver(blobArchiver domain.ActivityArchiver, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver:  blobArchiver,
		retentionDays: retentionDays,
		now:           time.Now,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// Cutoff returns the expiry before which settled activities are archived.
func (a *Archiver) Cutoff() time.Time {
	return a.now().UTC().AddDate(0, 0, -a.retentionDays)
}

// Run executes a single archive run.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := a.Cutoff()
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	n, err := a.blobArchiver.ArchiveActivities(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving activities before %v: %w", cutoff, err)
	}
	a.logger.InfoContext(ctx, "archive run complete", slog.Int64("activities_archived", n))
	return nil
}

// RunCron runs the archiver on sched until ctx is cancelled.
func (a *Archiver) RunCron(ctx context.Context, sched cron.Schedule) error {
	a.logger.Info("archiver cron started")
	return runOnSchedule(ctx, sched, a.logger, func(ctx context.Context) {
		if err := a.Run(ctx); err != nil {
			a.logger.Error("archive run failed", slog.String("error", err.Error()))
		}
	})
}
