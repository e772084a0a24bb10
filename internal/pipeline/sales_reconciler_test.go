package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/empowa-tech/marketplace/internal/domain"
	"github.com/empowa-tech/marketplace/internal/pipeline"
)

var runAt = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func hash(n int) string {
	return fmt.Sprintf("%064x", n)
}

// activity builds an open activity created age ago.
func activity(n int, typ domain.SaleType, status domain.SaleStatus, age time.Duration) domain.SaleActivity {
	created := runAt.Add(-age)
	return domain.SaleActivity{
		ID:                 primitive.NewObjectID(),
		Type:               typ,
		AdaTransactionHash: hash(n),
		AdaExpiry:          created.Add(domain.ActivityTTL),
		Price:              decimal.NewFromInt(int64(100 * n)),
		Status:             status,
		ReceiverAddress:    fmt.Sprintf("addr_test1seller%d", n),
		PolicyAsset:        primitive.NewObjectID(),
		CreatedAt:          created,
	}
}

type harness struct {
	activities *activityStore
	extends    *extendStore
	ledger     *ledger
	events     *publisher
	audit      *auditLog
	rec        *pipeline.SalesReconciler
}

func newHarness(cfg pipeline.ReconcilerConfig, records ...domain.SaleActivity) *harness {
	h := &harness{
		activities: &activityStore{records: records},
		extends:    newExtendStore(),
		ledger:     newLedger(),
		events:     &publisher{},
		audit:      &auditLog{},
	}
	h.rec = pipeline.NewSalesReconciler(h.activities, h.extends, h.ledger, h.events, h.audit, cfg, discardLogger()).
		WithClock(func() time.Time { return runAt })
	return h
}

var defaultCfg = pipeline.ReconcilerConfig{Concurrency: 4, MinConfirmations: 3}

func TestRunNothingOpen(t *testing.T) {
	done := activity(1, domain.SaleTypeSell, domain.SaleStatusCompleted, time.Hour)
	h := newHarness(defaultCfg, done)

	report, err := h.rec.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Scanned != 0 || len(h.activities.batches) != 0 {
		t.Errorf("report = %+v, batches = %d", report, len(h.activities.batches))
	}
	if report.RunID == "" {
		t.Error("missing run id")
	}
}

func TestRunExpiresStaleActivitiesFirst(t *testing.T) {
	stale := activity(1, domain.SaleTypeSell, domain.SaleStatusCreated, 7*time.Hour)
	stalePending := activity(2, domain.SaleTypeBuy, domain.SaleStatusPending, 6*time.Hour+time.Second)
	fresh := activity(3, domain.SaleTypeSell, domain.SaleStatusCreated, time.Hour)
	h := newHarness(defaultCfg, stale, stalePending, fresh)
	// Even a confirmed transaction does not rescue an expired record.
	h.ledger.confirm(stale.AdaTransactionHash, 10)
	h.ledger.confirm(fresh.AdaTransactionHash, 1)

	report, err := h.rec.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Expired != 2 || report.Pending != 1 {
		t.Errorf("report = %+v", report)
	}
	if len(h.activities.batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(h.activities.batches))
	}
	first := h.activities.batches[0]
	if len(first) != 2 || first[0].Status != domain.SaleStatusAdaExpired || first[1].Status != domain.SaleStatusAdaExpired {
		t.Errorf("first batch = %+v, want the two expired records", first)
	}
	if got := h.activities.status(stale.ID); got != domain.SaleStatusAdaExpired {
		t.Errorf("stale status = %s", got)
	}
	if got := h.activities.status(fresh.ID); got != domain.SaleStatusPending {
		t.Errorf("fresh status = %s", got)
	}
}

func TestRunExpiryBoundary(t *testing.T) {
	// Exactly at the expiry instant the record is still live.
	edge := activity(1, domain.SaleTypeSell, domain.SaleStatusCreated, domain.ActivityTTL)
	h := newHarness(defaultCfg, edge)

	report, err := h.rec.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Expired != 0 || report.Unchanged != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestRunCompletesConfirmedSell(t *testing.T) {
	sell := activity(1, domain.SaleTypeSell, domain.SaleStatusPending, time.Hour)
	h := newHarness(defaultCfg, sell)
	h.ledger.confirm(sell.AdaTransactionHash, 5)

	report, err := h.rec.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Completed != 1 || report.Extends != 1 {
		t.Errorf("report = %+v", report)
	}
	if got := h.activities.status(sell.ID); got != domain.SaleStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", got)
	}

	ext, err := h.extends.GetByPolicyAsset(context.Background(), sell.PolicyAsset)
	if err != nil {
		t.Fatalf("extend missing: %v", err)
	}
	if !ext.IsSale || ext.Price == nil || !ext.Price.Equal(sell.Price) {
		t.Errorf("extend = %+v", ext)
	}
	if ext.SellerAddress == nil || *ext.SellerAddress != sell.ReceiverAddress {
		t.Errorf("seller = %v, want %s", ext.SellerAddress, sell.ReceiverAddress)
	}
}

func TestRunCreatedCompletesInOneRun(t *testing.T) {
	a := activity(1, domain.SaleTypeUpdate, domain.SaleStatusCreated, time.Minute)
	h := newHarness(defaultCfg, a)
	h.ledger.confirm(a.AdaTransactionHash, 4)

	if _, err := h.rec.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := h.activities.status(a.ID); got != domain.SaleStatusCompleted {
		t.Errorf("status = %s, want COMPLETED", got)
	}
}

func TestRunConfirmationThreshold(t *testing.T) {
	tests := []struct {
		depth int
		want  domain.SaleStatus
	}{
		{0, domain.SaleStatusPending},
		{3, domain.SaleStatusPending},
		{4, domain.SaleStatusCompleted},
		{50, domain.SaleStatusCompleted},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("depth_%d", tt.depth), func(t *testing.T) {
			a := activity(1, domain.SaleTypeSell, domain.SaleStatusCreated, time.Hour)
			h := newHarness(defaultCfg, a)
			h.ledger.confirm(a.AdaTransactionHash, tt.depth)

			if _, err := h.rec.Run(context.Background()); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got := h.activities.status(a.ID); got != tt.want {
				t.Errorf("status = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRunCompletedBuyClearsListing(t *testing.T) {
	buy := activity(1, domain.SaleTypeBuy, domain.SaleStatusPending, time.Hour)
	h := newHarness(defaultCfg, buy)
	h.ledger.confirm(buy.AdaTransactionHash, 9)

	if _, err := h.rec.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	ext, err := h.extends.GetByPolicyAsset(context.Background(), buy.PolicyAsset)
	if err != nil {
		t.Fatalf("extend missing: %v", err)
	}
	if ext.IsSale || ext.Price != nil || ext.SellerAddress != nil {
		t.Errorf("extend = %+v, want cleared listing", ext)
	}
}

func TestRunLedgerFailuresLeaveStatus(t *testing.T) {
	missing := activity(1, domain.SaleTypeSell, domain.SaleStatusCreated, time.Hour)
	broken := activity(2, domain.SaleTypeSell, domain.SaleStatusPending, time.Hour)
	mismatch := activity(3, domain.SaleTypeSell, domain.SaleStatusCreated, time.Hour)
	ok := activity(4, domain.SaleTypeSell, domain.SaleStatusCreated, time.Hour)
	h := newHarness(defaultCfg, missing, broken, mismatch, ok)
	h.ledger.failures[broken.AdaTransactionHash] = errors.New("502 bad gateway")
	h.ledger.txs[mismatch.AdaTransactionHash] = domain.Transaction{Hash: hash(99), ValidContract: true}
	h.ledger.confirm(ok.AdaTransactionHash, 1)

	report, err := h.rec.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Unchanged != 3 || report.Pending != 1 || report.LedgerErrs != 1 {
		t.Errorf("report = %+v", report)
	}
	for _, a := range []domain.SaleActivity{missing, broken, mismatch} {
		if got := h.activities.status(a.ID); got != a.Status {
			t.Errorf("%s: status = %s, want unchanged %s", a.AdaTransactionHash[:8], got, a.Status)
		}
	}
}

func TestRunInvalidContract(t *testing.T) {
	a := activity(1, domain.SaleTypeSell, domain.SaleStatusPending, time.Hour)
	h := newHarness(defaultCfg, a)
	h.ledger.txs[a.AdaTransactionHash] = domain.Transaction{Hash: a.AdaTransactionHash, Block: "b", ValidContract: false}
	h.ledger.depths[a.AdaTransactionHash] = 100

	report, err := h.rec.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Invalid != 1 || report.Extends != 0 {
		t.Errorf("report = %+v", report)
	}
	if got := h.activities.status(a.ID); got != domain.SaleStatusInvalid {
		t.Errorf("status = %s, want INVALID", got)
	}
}

func TestRunDeduplicatesExtendsPerAsset(t *testing.T) {
	older := activity(1, domain.SaleTypeSell, domain.SaleStatusPending, 3*time.Hour)
	newer := activity(2, domain.SaleTypeUpdate, domain.SaleStatusPending, time.Hour)
	newer.PolicyAsset = older.PolicyAsset
	h := newHarness(defaultCfg, newer, older)
	h.ledger.confirm(older.AdaTransactionHash, 10)
	h.ledger.confirm(newer.AdaTransactionHash, 10)

	report, err := h.rec.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Completed != 2 || report.Extends != 1 {
		t.Errorf("report = %+v", report)
	}
	ext, _ := h.extends.GetByPolicyAsset(context.Background(), older.PolicyAsset)
	if ext.Price == nil || !ext.Price.Equal(newer.Price) {
		t.Errorf("extend price = %v, want latest listing %s", ext.Price, newer.Price)
	}
}

func TestRunExpireBatchFailureDoesNotAbortRun(t *testing.T) {
	stale := activity(1, domain.SaleTypeSell, domain.SaleStatusCreated, 8*time.Hour)
	fresh := activity(2, domain.SaleTypeSell, domain.SaleStatusCreated, time.Hour)
	h := newHarness(defaultCfg, stale, fresh)
	h.activities.failBatch = 1
	h.ledger.confirm(fresh.AdaTransactionHash, 1)

	report, err := h.rec.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "expire 1 activities") {
		t.Fatalf("err = %v, want expire batch failure", err)
	}
	if report.Expired != 0 || report.Pending != 1 {
		t.Errorf("report = %+v", report)
	}
	if got := h.activities.status(stale.ID); got != domain.SaleStatusCreated {
		t.Errorf("stale status = %s, want CREATED until the next run", got)
	}
	if got := h.activities.status(fresh.ID); got != domain.SaleStatusPending {
		t.Errorf("fresh status = %s, want PENDING", got)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	a := activity(1, domain.SaleTypeSell, domain.SaleStatusCreated, time.Hour)
	h := newHarness(defaultCfg, a)
	h.ledger.confirm(a.AdaTransactionHash, 1)

	if _, err := h.rec.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	events := len(h.events.events)

	report, err := h.rec.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.Unchanged != 1 || report.Pending != 0 {
		t.Errorf("second report = %+v", report)
	}
	if len(h.events.events) != events {
		t.Errorf("second run published %d more events", len(h.events.events)-events)
	}
}

func TestRunPublishesEventsAndAudit(t *testing.T) {
	stale := activity(1, domain.SaleTypeSell, domain.SaleStatusPending, 7*time.Hour)
	done := activity(2, domain.SaleTypeSell, domain.SaleStatusPending, time.Hour)
	h := newHarness(defaultCfg, stale, done)
	h.ledger.confirm(done.AdaTransactionHash, 8)

	report, err := h.rec.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(h.events.events) != 2 {
		t.Fatalf("events = %d, want 2", len(h.events.events))
	}
	if h.events.events[0].Type != domain.EventSaleExpired || h.events.events[1].Type != domain.EventSaleCompleted {
		t.Errorf("event types = %s, %s", h.events.events[0].Type, h.events.events[1].Type)
	}
	if len(h.audit.entries) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(h.audit.entries))
	}
	entry := h.audit.entries[1]
	if entry.Event != "sale.status_changed" || entry.Detail["run_id"] != report.RunID || entry.Detail["to"] != "COMPLETED" {
		t.Errorf("audit entry = %+v", entry)
	}
}

func TestRunTestOnly(t *testing.T) {
	live := activity(1, domain.SaleTypeSell, domain.SaleStatusCreated, time.Hour)
	flagged := activity(2, domain.SaleTypeSell, domain.SaleStatusCreated, time.Hour)
	flagged.Test = true
	cfg := defaultCfg
	cfg.TestOnly = true
	h := newHarness(cfg, live, flagged)
	h.ledger.confirm(live.AdaTransactionHash, 1)
	h.ledger.confirm(flagged.AdaTransactionHash, 1)

	report, err := h.rec.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !h.activities.lastFilter.TestOnly || report.Scanned != 1 {
		t.Errorf("filter = %+v, scanned = %d", h.activities.lastFilter, report.Scanned)
	}
	if got := h.activities.status(live.ID); got != domain.SaleStatusCreated {
		t.Errorf("non-test record touched: %s", got)
	}
}

func TestRunBoundsLedgerConcurrency(t *testing.T) {
	var records []domain.SaleActivity
	for i := 0; i < 20; i++ {
		records = append(records, activity(i+1, domain.SaleTypeSell, domain.SaleStatusCreated, time.Hour))
	}
	cfg := defaultCfg
	cfg.Concurrency = 3
	h := newHarness(cfg, records...)
	h.ledger.delay = 5 * time.Millisecond

	if _, err := h.rec.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if peak := h.ledger.maxFlight.Load(); peak > 3 || peak == 0 {
		t.Errorf("peak concurrent lookups = %d, want 1..3", peak)
	}
}

func TestRunRetriesCompletionWhenExtendWriteFails(t *testing.T) {
	sell := activity(1, domain.SaleTypeSell, domain.SaleStatusPending, time.Hour)
	fresh := activity(2, domain.SaleTypeSell, domain.SaleStatusCreated, time.Hour)
	h := newHarness(defaultCfg, sell, fresh)
	h.ledger.confirm(sell.AdaTransactionHash, 5)
	h.ledger.confirm(fresh.AdaTransactionHash, 5)
	h.extends.fails = 1

	report, err := h.rec.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "extend write failed") {
		t.Fatalf("err = %v, want extend failure", err)
	}
	if report.Completed != 0 || report.Pending != 1 || report.Unchanged != 1 || report.Extends != 0 {
		t.Errorf("report = %+v", report)
	}
	if got := h.activities.status(sell.ID); got != domain.SaleStatusPending {
		t.Errorf("sell status = %s, want PENDING until its extend is written", got)
	}
	if got := h.activities.status(fresh.ID); got != domain.SaleStatusPending {
		t.Errorf("fresh status = %s, want PENDING", got)
	}

	report, err = h.rec.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.Completed != 2 || report.Extends != 2 {
		t.Errorf("second report = %+v", report)
	}
	for _, a := range []domain.SaleActivity{sell, fresh} {
		if got := h.activities.status(a.ID); got != domain.SaleStatusCompleted {
			t.Errorf("status = %s, want COMPLETED", got)
		}
		if _, err := h.extends.GetByPolicyAsset(context.Background(), a.PolicyAsset); err != nil {
			t.Errorf("extend for %s: %v", a.PolicyAsset.Hex(), err)
		}
	}
}

func TestRunWritesExtendsBeforeStatus(t *testing.T) {
	sell := activity(1, domain.SaleTypeSell, domain.SaleStatusPending, time.Hour)
	h := newHarness(defaultCfg, sell)
	h.ledger.confirm(sell.AdaTransactionHash, 5)
	h.activities.failBatch = 1

	if _, err := h.rec.Run(context.Background()); err == nil {
		t.Fatal("expected status write failure")
	}
	if got := h.activities.status(sell.ID); got != domain.SaleStatusPending {
		t.Fatalf("status = %s, want PENDING", got)
	}
	if _, err := h.extends.GetByPolicyAsset(context.Background(), sell.PolicyAsset); err != nil {
		t.Fatalf("extend missing after failed status write: %v", err)
	}

	h.activities.failBatch = 0
	if _, err := h.rec.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := h.activities.status(sell.ID); got != domain.SaleStatusCompleted {
		t.Errorf("status = %s, want COMPLETED", got)
	}
	if h.extends.calls != 2 {
		t.Errorf("extend writes = %d, want 2", h.extends.calls)
	}
}

func TestRunChecksDepthWhenPendingLookupFails(t *testing.T) {
	pending := activity(1, domain.SaleTypeSell, domain.SaleStatusPending, time.Hour)
	created := activity(2, domain.SaleTypeSell, domain.SaleStatusCreated, time.Hour)
	h := newHarness(defaultCfg, pending, created)
	for _, a := range []domain.SaleActivity{pending, created} {
		h.ledger.failures[a.AdaTransactionHash] = errors.New("read timeout")
		h.ledger.depths[a.AdaTransactionHash] = 8
	}

	report, err := h.rec.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.LedgerErrs != 2 || report.Completed != 1 || report.Unchanged != 1 {
		t.Errorf("report = %+v", report)
	}
	if got := h.activities.status(pending.ID); got != domain.SaleStatusCompleted {
		t.Errorf("pending status = %s, want COMPLETED", got)
	}
	if got := h.activities.status(created.ID); got != domain.SaleStatusCreated {
		t.Errorf("created status = %s, want CREATED", got)
	}
}
