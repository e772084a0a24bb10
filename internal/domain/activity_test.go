package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/empowa-tech/marketplace/internal/domain"
)

func TestNewSaleActivityExpiresAfterSixHours(t *testing.T) {
	now := time.Date(2026, 5, 4, 12, 30, 0, 0, time.UTC)
	a := domain.NewSaleActivity(domain.ActivityInput{
		Price:              decimal.NewFromInt(100),
		Type:               domain.SaleTypeSell,
		ReceiverAddress:    "addr1",
		AdaTransactionHash: "ab",
		PolicyAsset:        primitive.NewObjectID(),
	}, now)

	if a.Status != domain.SaleStatusCreated {
		t.Fatalf("status = %s, want CREATED", a.Status)
	}
	if got := a.AdaExpiry.Sub(a.CreatedAt); got != 6*time.Hour {
		t.Fatalf("expiry - created = %v, want 6h", got)
	}
	if !a.AdaExpiry.Equal(now.Add(6 * time.Hour)) {
		t.Fatalf("expiry = %v, want %v", a.AdaExpiry, now.Add(6*time.Hour))
	}
}

func TestTransitionsAreMonotonic(t *testing.T) {
	cases := []struct {
		from, to domain.SaleStatus
		want     bool
	}{
		{domain.SaleStatusCreated, domain.SaleStatusPending, true},
		{domain.SaleStatusCreated, domain.SaleStatusCompleted, true},
		{domain.SaleStatusPending, domain.SaleStatusPending, true},
		{domain.SaleStatusPending, domain.SaleStatusCompleted, true},
		{domain.SaleStatusPending, domain.SaleStatusAdaExpired, true},
		{domain.SaleStatusPending, domain.SaleStatusCreated, false},
		{domain.SaleStatusCompleted, domain.SaleStatusPending, false},
		{domain.SaleStatusAdaExpired, domain.SaleStatusCompleted, false},
		{domain.SaleStatusInvalid, domain.SaleStatusPending, false},
	}
	for _, c := range cases {
		if got := domain.CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestPredecessors(t *testing.T) {
	got := map[domain.SaleStatus]bool{}
	for _, s := range domain.Predecessors(domain.SaleStatusCompleted) {
		got[s] = true
	}
	for _, s := range []domain.SaleStatus{domain.SaleStatusCompleted, domain.SaleStatusCreated, domain.SaleStatusPending} {
		if !got[s] {
			t.Errorf("predecessors of COMPLETED missing %s", s)
		}
	}
	if len(got) != 3 {
		t.Errorf("predecessors of COMPLETED = %v, want 3 entries", got)
	}

	pending := domain.Predecessors(domain.SaleStatusPending)
	if len(pending) != 2 {
		t.Errorf("predecessors of PENDING = %v, want [PENDING CREATED]", pending)
	}
}

func TestExtendFromSale(t *testing.T) {
	asset := primitive.NewObjectID()
	now := time.Now()

	sell := domain.SaleActivity{
		Type:            domain.SaleTypeSell,
		Price:           decimal.NewFromInt(100),
		ReceiverAddress: "addr_seller",
		PolicyAsset:     asset,
	}
	ext := domain.ExtendFromSale(sell, now)
	if !ext.IsSale {
		t.Fatal("SELL should produce is_sale")
	}
	if ext.Price == nil || !ext.Price.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("price = %v, want 100", ext.Price)
	}
	if ext.SellerAddress == nil || *ext.SellerAddress != "addr_seller" {
		t.Fatalf("seller = %v, want addr_seller", ext.SellerAddress)
	}

	buy := sell
	buy.Type = domain.SaleTypeBuy
	ext = domain.ExtendFromSale(buy, now)
	if ext.IsSale || ext.Price != nil || ext.SellerAddress != nil {
		t.Fatalf("BUY extend = %+v, want not for sale with nil price and seller", ext)
	}
	if ext.PolicyAsset != asset {
		t.Fatalf("policy asset = %s, want %s", ext.PolicyAsset.Hex(), asset.Hex())
	}
}

func TestPropertiesFromMetadata(t *testing.T) {
	raw := map[string]any{
		"name":        "Empowa #1",
		"image":       "ipfs://x",
		"mediaType":   "image/png",
		"description": "d",
		"files":       []any{},
		"Size":        "L",
		"Color":       "red",
	}
	got := domain.PropertiesFromMetadata(raw)
	if len(got) != 2 || got[0] != "red" || got[1] != "L" {
		t.Fatalf("properties = %v, want [red L]", got)
	}

	md := domain.NewOnchainMetadata(raw)
	if md.Name != "Empowa #1" || len(md.Traits) != 2 {
		t.Fatalf("metadata = %+v", md)
	}
}
