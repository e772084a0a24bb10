package domain

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ActivityFilter narrows an activity scan.
type ActivityFilter struct {
	Statuses []SaleStatus
	// TestOnly restricts the scan to activities flagged as test records.
	TestOnly bool
}

// PolicyAssetStore persists policy assets and serves the listing read model.
type PolicyAssetStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (PolicyAsset, error)
	Exists(ctx context.Context, id primitive.ObjectID) (bool, error)
	UpsertBatch(ctx context.Context, assets []PolicyAsset) (int64, error)
	// IDsByAsset maps each stored asset unit in units to its document id.
	IDsByAsset(ctx context.Context, units []string) (map[string]primitive.ObjectID, error)
	ListListings(ctx context.Context, args QueryArgs) (Page[PolicyAssetListing], error)
}

// ActivityStore persists sale activities.
type ActivityStore interface {
	Insert(ctx context.Context, activity *SaleActivity) error
	List(ctx context.Context, filter ActivityFilter) ([]SaleActivity, error)
	// BulkUpdateStatus writes the Status of every record in one ordered batch.
	// A record already past its new status is left untouched.
	BulkUpdateStatus(ctx context.Context, activities []SaleActivity) (int64, error)
	// ListSettledBefore returns terminal activities whose expiry is before t.
	ListSettledBefore(ctx context.Context, t time.Time) ([]SaleActivity, error)
}

// ExtendStore persists listing extensions, at most one per policy asset.
type ExtendStore interface {
	GetByPolicyAsset(ctx context.Context, id primitive.ObjectID) (ListingExtend, error)
	BulkUpsert(ctx context.Context, extends []ListingExtend) (int64, error)
}

// AppConfigStore reads application settings documents.
type AppConfigStore interface {
	MarketplaceConfig(ctx context.Context) (MarketplaceConfig, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	LogBatch(ctx context.Context, entries []AuditEntry) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
