package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SalesChannel is the pub/sub channel carrying SaleEvent payloads.
const SalesChannel = "ch:sales"

// SaleEventType names a sale lifecycle event.
type SaleEventType string

const (
	EventActivityCreated SaleEventType = "activity_created"
	EventSalePending     SaleEventType = "sale_pending"
	EventSaleCompleted   SaleEventType = "sale_completed"
	EventSaleExpired     SaleEventType = "sale_expired"
	EventSaleInvalid     SaleEventType = "sale_invalid"
)

// EventForStatus maps a new status to the event announcing it.
func EventForStatus(s SaleStatus) SaleEventType {
	switch s {
	case SaleStatusPending:
		return EventSalePending
	case SaleStatusCompleted:
		return EventSaleCompleted
	case SaleStatusAdaExpired:
		return EventSaleExpired
	case SaleStatusInvalid, SaleStatusFailed:
		return EventSaleInvalid
	}
	return EventActivityCreated
}

// SaleEvent announces a SaleActivity change.
type SaleEvent struct {
	Type        SaleEventType      `json:"type"`
	ActivityID  primitive.ObjectID `json:"activity_id"`
	PolicyAsset primitive.ObjectID `json:"policy_asset"`
	SaleType    SaleType           `json:"sale_type"`
	From        SaleStatus         `json:"from,omitempty"`
	To          SaleStatus         `json:"to"`
	TxHash      string             `json:"tx_hash"`
	Price       decimal.Decimal    `json:"price"`
	At          time.Time          `json:"at"`
}

// NewSaleEvent builds the event for an activity that moved from one status to
// its current one.
func NewSaleEvent(a SaleActivity, from SaleStatus, at time.Time) SaleEvent {
	typ := EventForStatus(a.Status)
	if from == "" {
		typ = EventActivityCreated
	}
	return SaleEvent{
		Type:        typ,
		ActivityID:  a.ID,
		PolicyAsset: a.PolicyAsset,
		SaleType:    a.Type,
		From:        from,
		To:          a.Status,
		TxHash:      a.AdaTransactionHash,
		Price:       a.Price,
		At:          at.UTC(),
	}
}

// EventPublisher delivers sale events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, events ...SaleEvent) error
}

// RunReport summarises one reconciliation run.
type RunReport struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration_ns"`
	Scanned    int           `json:"scanned"`
	Expired    int           `json:"expired"`
	Pending    int           `json:"pending"`
	Completed  int           `json:"completed"`
	Invalid    int           `json:"invalid"`
	Unchanged  int           `json:"unchanged"`
	Extends    int           `json:"extends_upserted"`
	LedgerErrs int           `json:"ledger_errors"`
}
