package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/empowa-tech/marketplace/internal/domain"
	"github.com/empowa-tech/marketplace/internal/query"
)

// AssetStore implements domain.PolicyAssetStore.
type AssetStore struct {
	coll     *mongo.Collection
	compiler *query.Compiler
}

// NewAssetStore creates an AssetStore. The compiler decides which fields a
// listing request may filter and sort on.
func NewAssetStore(c *Client, compiler *query.Compiler) *AssetStore {
	return &AssetStore{coll: c.Collection(query.AssetsCollection), compiler: compiler}
}

// GetByID returns the asset with the given id.
func (s *AssetStore) GetByID(ctx context.Context, id primitive.ObjectID) (domain.PolicyAsset, error) {
	var a domain.PolicyAsset
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.PolicyAsset{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PolicyAsset{}, fmt.Errorf("mongostore: get asset %s: %w", id.Hex(), err)
	}
	return a, nil
}

// Exists reports whether an asset with the given id is stored.
func (s *AssetStore) Exists(ctx context.Context, id primitive.ObjectID) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.D{{Key: "_id", Value: id}}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("mongostore: check asset %s: %w", id.Hex(), err)
	}
	return n > 0, nil
}

// UpsertBatch writes assets keyed on their asset unit in one unordered batch
// and returns the number of documents inserted or changed.
func (s *AssetStore) UpsertBatch(ctx context.Context, assets []domain.PolicyAsset) (int64, error) {
	if len(assets) == 0 {
		return 0, nil
	}
	models := make([]mongo.WriteModel, 0, len(assets))
	for _, a := range assets {
		a.ID = primitive.NilObjectID
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.D{{Key: "asset", Value: a.Asset}}).
			SetUpdate(bson.D{{Key: "$set", Value: a}}).
			SetUpsert(true))
	}

	res, err := s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, fmt.Errorf("mongostore: upsert %d assets: %w", len(assets), err)
	}
	return res.UpsertedCount + res.ModifiedCount, nil
}

// IDsByAsset maps each stored asset unit in units to its document id.
func (s *AssetStore) IDsByAsset(ctx context.Context, units []string) (map[string]primitive.ObjectID, error) {
	out := make(map[string]primitive.ObjectID, len(units))
	if len(units) == 0 {
		return out, nil
	}
	cur, err := s.coll.Find(ctx,
		bson.D{{Key: "asset", Value: bson.D{{Key: "$in", Value: units}}}},
		options.Find().SetProjection(bson.D{{Key: "_id", Value: 1}, {Key: "asset", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("mongostore: find asset ids: %w", err)
	}
	var rows []struct {
		ID    primitive.ObjectID `bson:"_id"`
		Asset string             `bson:"asset"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("mongostore: decode asset ids: %w", err)
	}
	for _, r := range rows {
		out[r.Asset] = r.ID
	}
	return out, nil
}

// ListListings runs the listing read model for args.
func (s *AssetStore) ListListings(ctx context.Context, args domain.QueryArgs) (domain.Page[domain.PolicyAssetListing], error) {
	page, err := query.Execute[domain.PolicyAssetListing](ctx, s.coll, query.ListingQuery(s.compiler, args))
	if err != nil {
		return page, fmt.Errorf("mongostore: list listings: %w", err)
	}
	return page, nil
}

var _ domain.PolicyAssetStore = (*AssetStore)(nil)
