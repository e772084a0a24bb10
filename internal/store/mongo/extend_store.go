package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/empowa-tech/marketplace/internal/domain"
	"github.com/empowa-tech/marketplace/internal/query"
)

// ExtendStore implements domain.ExtendStore.
type ExtendStore struct {
	coll *mongo.Collection
	bulk bulkWriter
}

// NewExtendStore creates an ExtendStore.
func NewExtendStore(c *Client) *ExtendStore {
	coll := c.Collection(query.ExtendCollection)
	return &ExtendStore{coll: coll, bulk: coll}
}

// GetByPolicyAsset returns the listing extension of an asset.
func (s *ExtendStore) GetByPolicyAsset(ctx context.Context, id primitive.ObjectID) (domain.ListingExtend, error) {
	var ext domain.ListingExtend
	err := s.coll.FindOne(ctx, bson.D{{Key: "policy_asset", Value: id}}).Decode(&ext)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ListingExtend{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ListingExtend{}, fmt.Errorf("mongostore: get extend %s: %w", id.Hex(), err)
	}
	return ext, nil
}

// BulkUpsert updates the extension of each asset in place or inserts it, in
// one ordered batch.
func (s *ExtendStore) BulkUpsert(ctx context.Context, extends []domain.ListingExtend) (int64, error) {
	if len(extends) == 0 {
		return 0, nil
	}
	res, err := writeOrdered(ctx, s.bulk, extendUpsertModels(extends))
	if err != nil {
		return 0, fmt.Errorf("mongostore: upsert %d extends: %w", len(extends), err)
	}
	return res.UpsertedCount + res.ModifiedCount, nil
}

// extendUpsertModels builds one upsert per asset keyed on policy_asset. A nil
// price or seller is written as null so a settled listing clears them.
func extendUpsertModels(extends []domain.ListingExtend) []mongo.WriteModel {
	models := make([]mongo.WriteModel, 0, len(extends))
	for _, e := range extends {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.D{{Key: "policy_asset", Value: e.PolicyAsset}}).
			SetUpdate(bson.D{{Key: "$set", Value: bson.D{
				{Key: "is_sale", Value: e.IsSale},
				{Key: "price", Value: e.Price},
				{Key: "seller_address", Value: e.SellerAddress},
				{Key: "updated_at", Value: e.UpdatedAt},
			}}}).
			SetUpsert(true))
	}
	return models
}

var _ domain.ExtendStore = (*ExtendStore)(nil)
