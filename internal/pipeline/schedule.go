package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/empowa-tech/marketplace/internal/pipeline/cron"
)

// runOnSchedule calls fn at every activation of sched until ctx is cancelled.
// fn runs on the calling goroutine, so a slow call delays, never overlaps,
// the next one.
func runOnSchedule(ctx context.Context, sched cron.Schedule, logger *slog.Logger, fn func(context.Context)) error {
	for {
		next := sched.Next(time.Now())
		if next.IsZero() {
			return fmt.Errorf("schedule never fires")
		}
		wait := time.Until(next)
		logger.Debug("waiting for next trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			fn(ctx)
		}
	}
}
