package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/empowa-tech/marketplace/internal/domain"
	"github.com/empowa-tech/marketplace/internal/metrics"
	"github.com/empowa-tech/marketplace/internal/pipeline/cron"
)

// Reconciler performs one reconciliation pass.
type Reconciler interface {
	Run(ctx context.Context) (domain.RunReport, error)
}

// Alerter raises operator notifications.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// SchedulerConfig tunes a Scheduler.
type SchedulerConfig struct {
	Schedule   cron.Schedule
	LockKey    string
	RunTimeout time.Duration
}

// Scheduler triggers reconciliation runs on a schedule or on demand and
// makes sure at most one run is in flight: in this process through an atomic
// flag, across replicas through a distributed lock.
type Scheduler struct {
	reconciler Reconciler
	locks      domain.LockManager
	alerter    Alerter
	cfg        SchedulerConfig
	running    atomic.Bool
	logger     *slog.Logger
}

// NewScheduler creates a Scheduler. locks and alerter may be nil.
func NewScheduler(reconciler Reconciler, locks domain.LockManager, alerter Alerter, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 50 * time.Second
	}
	if cfg.LockKey == "" {
		cfg.LockKey = "lock:sales-reconcile"
	}
	return &Scheduler{
		reconciler: reconciler,
		locks:      locks,
		alerter:    alerter,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "scheduler")),
	}
}

// Running reports whether a run is in flight in this process.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// RunOnce performs one guarded run bounded by the run timeout. It returns
// domain.ErrRunInProgress when another run holds the guard here or on
// another replica.
func (s *Scheduler) RunOnce(ctx context.Context) (domain.RunReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		metrics.ReconcileRuns.WithLabelValues("skipped").Inc()
		return domain.RunReport{}, domain.ErrRunInProgress
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, s.cfg.LockKey, s.cfg.RunTimeout)
		if errors.Is(err, domain.ErrLockHeld) {
			metrics.ReconcileRuns.WithLabelValues("skipped").Inc()
			return domain.RunReport{}, fmt.Errorf("%w: %w", domain.ErrRunInProgress, err)
		}
		if err != nil {
			metrics.ReconcileRuns.WithLabelValues("error").Inc()
			return domain.RunReport{}, fmt.Errorf("pipeline: acquire run lock: %w", err)
		}
		defer unlock()
	}

	start := time.Now()
	report, err := s.reconciler.Run(ctx)
	metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ReconcileRuns.WithLabelValues("error").Inc()
		s.alert(ctx, report, err)
		return report, err
	}
	metrics.ReconcileRuns.WithLabelValues("ok").Inc()
	return report, nil
}

// Run triggers RunOnce on every activation of the schedule until ctx is
// cancelled. Failed runs are logged; the next activation retries.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("reconciliation scheduler started", slog.Duration("run_timeout", s.cfg.RunTimeout))
	err := runOnSchedule(ctx, s.cfg.Schedule, s.logger, func(ctx context.Context) {
		_, err := s.RunOnce(ctx)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrRunInProgress):
			s.logger.Info("reconciliation skipped, run in progress")
		default:
			s.logger.Error("reconciliation run failed", slog.String("error", err.Error()))
		}
	})
	s.logger.Info("reconciliation scheduler stopped")
	return err
}

func (s *Scheduler) alert(ctx context.Context, report domain.RunReport, runErr error) {
	if s.alerter == nil {
		return
	}
	// The run context may have timed out already.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	msg := fmt.Sprintf("run %s scanned %d activities\n%v", report.RunID, report.Scanned, runErr)
	if err := s.alerter.Notify(ctx, "reconcile_failed", "Reconciliation failed", msg); err != nil {
		s.logger.Warn("alert failed", slog.String("error", err.Error()))
	}
}
