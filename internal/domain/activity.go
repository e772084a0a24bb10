package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SaleType is the marketplace action a SaleActivity records.
type SaleType string

const (
	SaleTypeBuy    SaleType = "BUY"
	SaleTypeSell   SaleType = "SELL"
	SaleTypeUpdate SaleType = "UPDATE"
	SaleTypeCancel SaleType = "CANCEL"
)

// Valid reports whether t is a known sale type.
func (t SaleType) Valid() bool {
	switch t {
	case SaleTypeBuy, SaleTypeSell, SaleTypeUpdate, SaleTypeCancel:
		return true
	}
	return false
}

// IsListing reports whether the activity puts the asset up for sale.
func (t SaleType) IsListing() bool {
	return t == SaleTypeSell || t == SaleTypeUpdate
}

// SaleStatus is the lifecycle state of a SaleActivity.
type SaleStatus string

const (
	SaleStatusCreated    SaleStatus = "CREATED"
	SaleStatusPending    SaleStatus = "PENDING"
	SaleStatusAdaExpired SaleStatus = "ADA_EXPIRED"
	SaleStatusInvalid    SaleStatus = "INVALID"
	SaleStatusFailed     SaleStatus = "FAILED"
	SaleStatusCompleted  SaleStatus = "COMPLETED"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s SaleStatus) IsTerminal() bool {
	switch s {
	case SaleStatusAdaExpired, SaleStatusInvalid, SaleStatusFailed, SaleStatusCompleted:
		return true
	}
	return false
}

// transitions lists the states each state may move to. Staying in place is
// always allowed and not listed.
var transitions = map[SaleStatus][]SaleStatus{
	SaleStatusCreated: {SaleStatusPending, SaleStatusAdaExpired, SaleStatusInvalid, SaleStatusFailed, SaleStatusCompleted},
	SaleStatusPending: {SaleStatusAdaExpired, SaleStatusInvalid, SaleStatusFailed, SaleStatusCompleted},
}

// CanTransition reports whether a record in from may be moved to to.
func CanTransition(from, to SaleStatus) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Predecessors returns every status from which to is reachable, including to
// itself. Stores use it to guard updates against regressions.
func Predecessors(to SaleStatus) []SaleStatus {
	out := []SaleStatus{to}
	for from, next := range transitions {
		for _, s := range next {
			if s == to {
				out = append(out, from)
			}
		}
	}
	return out
}

// OpenStatuses are the statuses the reconciler scans.
var OpenStatuses = []SaleStatus{SaleStatusCreated, SaleStatusPending}

// ActivityTTL is how long a new activity waits for ledger confirmation before
// it expires.
const ActivityTTL = 6 * time.Hour

// SaleActivity is one marketplace action tied to a ledger transaction.
type SaleActivity struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Type               SaleType           `bson:"type" json:"type"`
	AdaTransactionHash string             `bson:"ada_transaction_hash" json:"ada_transaction_hash"`
	AdaExpiry          time.Time          `bson:"ada_expiry" json:"ada_expiry"`
	Price              decimal.Decimal    `bson:"price" json:"price"`
	Status             SaleStatus         `bson:"status" json:"status"`
	ReceiverAddress    string             `bson:"receiver_address" json:"receiver_address"`
	PolicyAsset        primitive.ObjectID `bson:"policy_asset" json:"policy_asset"`
	Test               bool               `bson:"test,omitempty" json:"test,omitempty"`
	CreatedAt          time.Time          `bson:"created_at,omitempty" json:"created_at,omitempty"`
}

// Expired reports whether the confirmation window has passed at now.
func (a SaleActivity) Expired(now time.Time) bool {
	return now.After(a.AdaExpiry)
}

// ActivityInput is the caller-supplied part of a new SaleActivity.
type ActivityInput struct {
	Price              decimal.Decimal    `json:"price"`
	Type               SaleType           `json:"type" validate:"required,oneof=BUY SELL UPDATE CANCEL"`
	ReceiverAddress    string             `json:"receiver_address" validate:"required,max=128"`
	AdaTransactionHash string             `json:"ada_transaction_hash" validate:"required,len=64,hexadecimal"`
	PolicyAsset        primitive.ObjectID `json:"policy_asset"`
}

// NewSaleActivity builds a CREATED activity whose expiry is exactly
// ActivityTTL after now.
func NewSaleActivity(in ActivityInput, now time.Time) SaleActivity {
	now = now.UTC().Truncate(time.Millisecond)
	return SaleActivity{
		Type:               in.Type,
		AdaTransactionHash: in.AdaTransactionHash,
		AdaExpiry:          now.Add(ActivityTTL),
		Price:              in.Price,
		Status:             SaleStatusCreated,
		ReceiverAddress:    in.ReceiverAddress,
		PolicyAsset:        in.PolicyAsset,
		CreatedAt:          now,
	}
}

// ListingExtend is the derived per-asset listing state written after a sale
// completes. Price and SellerAddress are nil when the asset is not for sale.
type ListingExtend struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	PolicyAsset   primitive.ObjectID `bson:"policy_asset" json:"policy_asset"`
	IsSale        bool               `bson:"is_sale" json:"is_sale"`
	Price         *decimal.Decimal   `bson:"price" json:"price"`
	SellerAddress *string            `bson:"seller_address" json:"seller_address"`
	UpdatedAt     time.Time          `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// ExtendFromSale derives the listing state of a completed activity.
func ExtendFromSale(a SaleActivity, now time.Time) ListingExtend {
	ext := ListingExtend{
		PolicyAsset: a.PolicyAsset,
		IsSale:      a.Type.IsListing(),
		UpdatedAt:   now.UTC(),
	}
	if ext.IsSale {
		price := a.Price
		seller := a.ReceiverAddress
		ext.Price = &price
		ext.SellerAddress = &seller
	}
	return ext
}
