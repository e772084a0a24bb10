package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/empowa-tech/marketplace/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// activityStore is an in-memory domain.ActivityStore.
type activityStore struct {
	mu         sync.Mutex
	records    []domain.SaleActivity
	batches    [][]domain.SaleActivity
	lastFilter domain.ActivityFilter
	failBatch  int // 1-based batch number to fail, 0 for none
}

func (s *activityStore) Insert(_ context.Context, a *domain.SaleActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = primitive.NewObjectID()
	s.records = append(s.records, *a)
	return nil
}

func (s *activityStore) List(_ context.Context, f domain.ActivityFilter) ([]domain.SaleActivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilter = f
	var out []domain.SaleActivity
	for _, r := range s.records {
		if f.TestOnly && !r.Test {
			continue
		}
		for _, st := range f.Statuses {
			if r.Status == st {
				out = append(out, r)
				break
			}
		}
	}
	return out, nil
}

func (s *activityStore) BulkUpdateStatus(_ context.Context, batch []domain.SaleActivity) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, batch)
	if s.failBatch == len(s.batches) {
		return 0, errors.New("bulk write failed")
	}
	var n int64
	for _, a := range batch {
		for i := range s.records {
			if s.records[i].ID == a.ID && domain.CanTransition(s.records[i].Status, a.Status) {
				s.records[i].Status = a.Status
				n++
			}
		}
	}
	return n, nil
}

func (s *activityStore) ListSettledBefore(_ context.Context, t time.Time) ([]domain.SaleActivity, error) {
	return nil, nil
}

func (s *activityStore) status(id primitive.ObjectID) domain.SaleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id {
			return r.Status
		}
	}
	return ""
}

// extendStore is an in-memory domain.ExtendStore keyed on policy asset.
type extendStore struct {
	byAsset map[primitive.ObjectID]domain.ListingExtend
	calls   int
	fails   int // number of upcoming BulkUpsert calls to fail
}

func newExtendStore() *extendStore {
	return &extendStore{byAsset: make(map[primitive.ObjectID]domain.ListingExtend)}
}

func (s *extendStore) GetByPolicyAsset(_ context.Context, id primitive.ObjectID) (domain.ListingExtend, error) {
	e, ok := s.byAsset[id]
	if !ok {
		return domain.ListingExtend{}, domain.ErrNotFound
	}
	return e, nil
}

func (s *extendStore) BulkUpsert(_ context.Context, extends []domain.ListingExtend) (int64, error) {
	s.calls++
	if s.fails > 0 {
		s.fails--
		return 0, errors.New("extend write failed")
	}
	for _, e := range extends {
		s.byAsset[e.PolicyAsset] = e
	}
	return int64(len(extends)), nil
}

// ledger is a scripted domain.LedgerClient.
type ledger struct {
	txs       map[string]domain.Transaction
	depths    map[string]int
	failures  map[string]error
	delay     time.Duration
	inFlight  atomic.Int32
	maxFlight atomic.Int32
}

func newLedger() *ledger {
	return &ledger{
		txs:      make(map[string]domain.Transaction),
		depths:   make(map[string]int),
		failures: make(map[string]error),
	}
}

// confirm registers hash as on-chain with the given depth.
func (l *ledger) confirm(hash string, depth int) {
	l.txs[hash] = domain.Transaction{Hash: hash, Block: "blk-" + hash, ValidContract: true}
	l.depths[hash] = depth
}

func (l *ledger) FetchTransaction(ctx context.Context, hash string) (domain.Transaction, error) {
	n := l.inFlight.Add(1)
	defer l.inFlight.Add(-1)
	for {
		m := l.maxFlight.Load()
		if n <= m || l.maxFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	if err, ok := l.failures[hash]; ok {
		return domain.Transaction{}, err
	}
	tx, ok := l.txs[hash]
	if !ok {
		return domain.Transaction{}, domain.ErrNotFound
	}
	return tx, nil
}

func (l *ledger) FetchBlock(_ context.Context, ref string) (domain.Block, error) {
	return domain.Block{Hash: ref}, nil
}

func (l *ledger) ConfirmationDepth(_ context.Context, hash string) int {
	return l.depths[hash]
}

// publisher records published events.
type publisher struct {
	mu     sync.Mutex
	events []domain.SaleEvent
}

func (p *publisher) Publish(_ context.Context, events ...domain.SaleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

// auditLog records audit entries.
type auditLog struct {
	entries []domain.AuditEntry
}

func (a *auditLog) Log(_ context.Context, event string, detail map[string]any) error {
	a.entries = append(a.entries, domain.AuditEntry{Event: event, Detail: detail})
	return nil
}

func (a *auditLog) LogBatch(_ context.Context, entries []domain.AuditEntry) error {
	a.entries = append(a.entries, entries...)
	return nil
}

func (a *auditLog) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return a.entries, nil
}
