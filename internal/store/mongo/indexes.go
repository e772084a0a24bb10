package mongostore

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/empowa-tech/marketplace/internal/query"
)

var indexes = map[string][]mongo.IndexModel{
	query.AssetsCollection: {
		{Keys: bson.D{{Key: "asset", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "policy_id", Value: 1}}},
	},
	query.ActivitiesCollection: {
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "ada_expiry", Value: 1}}},
		{Keys: bson.D{{Key: "policy_asset", Value: 1}, {Key: "ada_expiry", Value: -1}}},
	},
	query.ExtendCollection: {
		{Keys: bson.D{{Key: "policy_asset", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "price", Value: -1}}},
	},
	query.AppConfigCollection: {
		{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
	},
}

// EnsureIndexes creates the indexes every collection relies on. Creating an
// index that already exists is a no-op.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	for coll, models := range indexes {
		names, err := c.Collection(coll).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("mongostore: create indexes on %s: %w", coll, err)
		}
		c.logger.Debug("indexes ensured", slog.String("collection", coll), slog.Any("indexes", names))
	}
	return nil
}
