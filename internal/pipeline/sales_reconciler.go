package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/empowa-tech/marketplace/internal/domain"
	"github.com/empowa-tech/marketplace/internal/metrics"
)

// ReconcilerConfig tunes a SalesReconciler.
type ReconcilerConfig struct {
	// Concurrency bounds in-flight ledger lookups per run.
	Concurrency int
	// MinConfirmations is the depth a transaction must exceed to complete.
	MinConfirmations int
	// TestOnly limits the scan to activities flagged as test records.
	TestOnly bool
}

// transition is a status change computed during a run.
type transition struct {
	activity domain.SaleActivity
	from     domain.SaleStatus
}

// lookup is the ledger verdict for one live activity.
type lookup struct {
	status    domain.SaleStatus
	ledgerErr bool
}

// SalesReconciler advances open sale activities through their lifecycle
// using ledger confirmations and maintains the derived listing extensions.
type SalesReconciler struct {
	activities domain.ActivityStore
	extends    domain.ExtendStore
	ledger     domain.LedgerClient
	events     domain.EventPublisher
	audit      domain.AuditStore
	cfg        ReconcilerConfig
	now        func() time.Time
	logger     *slog.Logger
}

// NewSalesReconciler creates a SalesReconciler. events and audit may be nil.
func NewSalesReconciler(
	activities domain.ActivityStore,
	extends domain.ExtendStore,
	ledger domain.LedgerClient,
	events domain.EventPublisher,
	audit domain.AuditStore,
	cfg ReconcilerConfig,
	logger *slog.Logger,
) *SalesReconciler {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &SalesReconciler{
		activities: activities,
		extends:    extends,
		ledger:     ledger,
		events:     events,
		audit:      audit,
		cfg:        cfg,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "reconciler")),
	}
}

// WithClock replaces the time source.
func (r *SalesReconciler) WithClock(now func() time.Time) *SalesReconciler {
	r.now = now
	return r
}

// Run performs one reconciliation pass. Expired activities are settled first
// in their own batch; the remaining ones are checked against the ledger, the
// extends of completed sales are upserted, and the resulting changes are
// written in a second batch. Ledger failures leave
// a record untouched. A failed batch is reported in the returned error while
// the rest of the run proceeds.
func (r *SalesReconciler) Run(ctx context.Context) (domain.RunReport, error) {
	now := r.now().UTC()
	report := domain.RunReport{RunID: uuid.NewString(), StartedAt: now}
	log := r.logger.With(slog.String("run_id", report.RunID))

	open, err := r.activities.List(ctx, domain.ActivityFilter{
		Statuses: domain.OpenStatuses,
		TestOnly: r.cfg.TestOnly,
	})
	if err != nil {
		return report, fmt.Errorf("pipeline: list open activities: %w", err)
	}
	report.Scanned = len(open)
	if len(open) == 0 {
		report.Duration = r.now().Sub(now)
		return report, nil
	}

	var (
		expired []transition
		live    []domain.SaleActivity
		errs    []error
	)
	for _, a := range open {
		if a.Expired(now) {
			from := a.Status
			a.Status = domain.SaleStatusAdaExpired
			expired = append(expired, transition{activity: a, from: from})
			continue
		}
		live = append(live, a)
	}

	if len(expired) > 0 {
		if err := r.persist(ctx, report.RunID, expired); err != nil {
			errs = append(errs, fmt.Errorf("expire %d activities: %w", len(expired), err))
		} else {
			report.Expired = len(expired)
		}
	}

	verdicts := r.checkLedger(ctx, live)

	var changed []transition
	for i, a := range live {
		v := verdicts[i]
		if v.ledgerErr {
			report.LedgerErrs++
		}
		if v.status == "" || v.status == a.Status || !domain.CanTransition(a.Status, v.status) {
			report.Unchanged++
			continue
		}
		from := a.Status
		a.Status = v.status
		changed = append(changed, transition{activity: a, from: from})
	}

	// Extends go first: once a record is COMPLETED no later scan revisits it,
	// while an upsert keyed on policy_asset can be repeated safely.
	if n, err := r.upsertExtends(ctx, changed, now); err != nil {
		errs = append(errs, err)
		n := len(changed)
		changed = withholdCompletions(changed)
		report.Unchanged += n - len(changed)
	} else {
		report.Extends = n
	}

	if len(changed) > 0 {
		if err := r.persist(ctx, report.RunID, changed); err != nil {
			errs = append(errs, fmt.Errorf("update %d activities: %w", len(changed), err))
		} else {
			for _, t := range changed {
				switch t.activity.Status {
				case domain.SaleStatusPending:
					report.Pending++
				case domain.SaleStatusCompleted:
					report.Completed++
				case domain.SaleStatusInvalid:
					report.Invalid++
				}
			}
		}
	}

	report.Duration = r.now().Sub(now)
	log.Info("reconciliation run complete",
		slog.Int("scanned", report.Scanned),
		slog.Int("expired", report.Expired),
		slog.Int("pending", report.Pending),
		slog.Int("completed", report.Completed),
		slog.Int("invalid", report.Invalid),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("extends", report.Extends),
		slog.Int("ledger_errors", report.LedgerErrs),
		slog.Duration("duration", report.Duration),
	)
	if len(errs) > 0 {
		return report, fmt.Errorf("pipeline: reconcile: %w", errors.Join(errs...))
	}
	return report, nil
}

// checkLedger looks up every live activity with bounded concurrency. The
// verdict at index i belongs to activities[i].
func (r *SalesReconciler) checkLedger(ctx context.Context, activities []domain.SaleActivity) []lookup {
	verdicts := make([]lookup, len(activities))
	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for i := range activities {
		i := i
		g.Go(func() error {
			verdicts[i] = r.verify(ctx, activities[i])
			return nil
		})
	}
	_ = g.Wait()
	return verdicts
}

// verify decides the next status of one activity. An empty status means the
// record stays as it is.
func (r *SalesReconciler) verify(ctx context.Context, a domain.SaleActivity) lookup {
	tx, err := r.ledger.FetchTransaction(ctx, a.AdaTransactionHash)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		metrics.LedgerLookups.WithLabelValues("not_found").Inc()
		return lookup{}
	case err != nil:
		metrics.LedgerLookups.WithLabelValues("error").Inc()
		r.logger.WarnContext(ctx, "ledger lookup failed",
			slog.String("activity_id", a.ID.Hex()),
			slog.String("tx_hash", a.AdaTransactionHash),
			slog.String("error", err.Error()),
		)
		// A record already PENDING still gets its depth checked.
		if a.Status == domain.SaleStatusPending &&
			r.ledger.ConfirmationDepth(ctx, a.AdaTransactionHash) > r.cfg.MinConfirmations {
			return lookup{status: domain.SaleStatusCompleted, ledgerErr: true}
		}
		return lookup{ledgerErr: true}
	}
	metrics.LedgerLookups.WithLabelValues("found").Inc()

	if tx.Hash != a.AdaTransactionHash {
		return lookup{}
	}
	if !tx.ValidContract {
		return lookup{status: domain.SaleStatusInvalid}
	}
	if r.ledger.ConfirmationDepth(ctx, a.AdaTransactionHash) > r.cfg.MinConfirmations {
		return lookup{status: domain.SaleStatusCompleted}
	}
	return lookup{status: domain.SaleStatusPending}
}

// persist writes one batch of status changes and announces them.
func (r *SalesReconciler) persist(ctx context.Context, runID string, batch []transition) error {
	activities := make([]domain.SaleActivity, len(batch))
	for i, t := range batch {
		activities[i] = t.activity
	}
	if _, err := r.activities.BulkUpdateStatus(ctx, activities); err != nil {
		return err
	}

	at := r.now()
	events := make([]domain.SaleEvent, 0, len(batch))
	entries := make([]domain.AuditEntry, 0, len(batch))
	for _, t := range batch {
		metrics.StatusTransitions.WithLabelValues(string(t.from), string(t.activity.Status)).Inc()
		events = append(events, domain.NewSaleEvent(t.activity, t.from, at))
		entries = append(entries, domain.AuditEntry{
			Event: "sale.status_changed",
			Detail: map[string]any{
				"activity_id":  t.activity.ID.Hex(),
				"policy_asset": t.activity.PolicyAsset.Hex(),
				"type":         string(t.activity.Type),
				"from":         string(t.from),
				"to":           string(t.activity.Status),
				"tx_hash":      t.activity.AdaTransactionHash,
				"run_id":       runID,
			},
			CreatedAt: at,
		})
	}

	if r.audit != nil {
		if err := r.audit.LogBatch(ctx, entries); err != nil {
			r.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}
	if r.events != nil {
		if err := r.events.Publish(ctx, events...); err != nil {
			r.logger.WarnContext(ctx, "event publish failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// withholdCompletions drops COMPLETED from a batch whose extends could not be
// written. A CREATED record still advances to PENDING; a PENDING one is left
// for the next run.
func withholdCompletions(batch []transition) []transition {
	out := batch[:0]
	for _, t := range batch {
		if t.activity.Status != domain.SaleStatusCompleted {
			out = append(out, t)
			continue
		}
		if t.from == domain.SaleStatusCreated {
			t.activity.Status = domain.SaleStatusPending
			out = append(out, t)
		}
	}
	return out
}

// upsertExtends writes the listing extension of every completed activity.
// When one run completes several activities of the same asset, the one with
// the latest expiry wins.
func (r *SalesReconciler) upsertExtends(ctx context.Context, batch []transition, now time.Time) (int, error) {
	latest := make(map[string]domain.SaleActivity)
	var order []string
	for _, t := range batch {
		a := t.activity
		if a.Status != domain.SaleStatusCompleted {
			continue
		}
		key := a.PolicyAsset.Hex()
		prev, seen := latest[key]
		if !seen {
			order = append(order, key)
		}
		if !seen || a.AdaExpiry.After(prev.AdaExpiry) {
			latest[key] = a
		}
	}
	if len(order) == 0 {
		return 0, nil
	}

	extends := make([]domain.ListingExtend, 0, len(order))
	for _, key := range order {
		extends = append(extends, domain.ExtendFromSale(latest[key], now))
	}
	if _, err := r.extends.BulkUpsert(ctx, extends); err != nil {
		return 0, fmt.Errorf("upsert %d extends: %w", len(extends), err)
	}
	return len(extends), nil
}
