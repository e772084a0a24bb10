package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/empowa-tech/marketplace/internal/domain"
	"github.com/empowa-tech/marketplace/internal/query"
)

var terminalStatuses = []domain.SaleStatus{
	domain.SaleStatusAdaExpired,
	domain.SaleStatusInvalid,
	domain.SaleStatusFailed,
	domain.SaleStatusCompleted,
}

// ActivityStore implements domain.ActivityStore.
type ActivityStore struct {
	coll *mongo.Collection
	bulk bulkWriter
}

// NewActivityStore creates an ActivityStore.
func NewActivityStore(c *Client) *ActivityStore {
	coll := c.Collection(query.ActivitiesCollection)
	return &ActivityStore{coll: coll, bulk: coll}
}

// Insert stores a new activity and sets its ID.
func (s *ActivityStore) Insert(ctx context.Context, a *domain.SaleActivity) error {
	res, err := s.coll.InsertOne(ctx, a)
	if err != nil {
		return fmt.Errorf("mongostore: insert activity: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		a.ID = id
	}
	return nil
}

// List returns the activities matching f, oldest expiry first.
func (s *ActivityStore) List(ctx context.Context, f domain.ActivityFilter) ([]domain.SaleActivity, error) {
	filter := bson.D{}
	if len(f.Statuses) > 0 {
		filter = append(filter, bson.E{Key: "status", Value: bson.D{{Key: "$in", Value: f.Statuses}}})
	}
	if f.TestOnly {
		filter = append(filter, bson.E{Key: "test", Value: true})
	}
	return s.find(ctx, filter)
}

// ListSettledBefore returns terminal activities whose expiry is before t.
func (s *ActivityStore) ListSettledBefore(ctx context.Context, t time.Time) ([]domain.SaleActivity, error) {
	return s.find(ctx, bson.D{
		{Key: "status", Value: bson.D{{Key: "$in", Value: terminalStatuses}}},
		{Key: "ada_expiry", Value: bson.D{{Key: "$lt", Value: t}}},
	})
}

func (s *ActivityStore) find(ctx context.Context, filter bson.D) ([]domain.SaleActivity, error) {
	cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "ada_expiry", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongostore: find activities: %w", err)
	}
	var out []domain.SaleActivity
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongostore: decode activities: %w", err)
	}
	return out, nil
}

// BulkUpdateStatus writes the status of every activity in one ordered batch.
// Each update only matches while the stored status can still move to the new
// one, so a concurrent writer that already settled a record wins.
func (s *ActivityStore) BulkUpdateStatus(ctx context.Context, activities []domain.SaleActivity) (int64, error) {
	if len(activities) == 0 {
		return 0, nil
	}
	res, err := writeOrdered(ctx, s.bulk, statusUpdateModels(activities))
	if err != nil {
		return 0, fmt.Errorf("mongostore: bulk update %d activities: %w", len(activities), err)
	}
	return res.ModifiedCount, nil
}

// statusUpdateModels builds one guarded update per activity. The filter only
// matches a stored status listed in domain.Predecessors of the new one.
func statusUpdateModels(activities []domain.SaleActivity) []mongo.WriteModel {
	models := make([]mongo.WriteModel, 0, len(activities))
	for _, a := range activities {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.D{
				{Key: "_id", Value: a.ID},
				{Key: "status", Value: bson.D{{Key: "$in", Value: domain.Predecessors(a.Status)}}},
			}).
			SetUpdate(bson.D{{Key: "$set", Value: bson.D{{Key: "status", Value: a.Status}}}}))
	}
	return models
}

var _ domain.ActivityStore = (*ActivityStore)(nil)
