package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// bulkWriter is the slice of *mongo.Collection the bulk-write paths need.
type bulkWriter interface {
	BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
}

// writeOrdered sends models as one ordered batch, so a failure stops the
// batch at the first failing model.
func writeOrdered(ctx context.Context, w bulkWriter, models []mongo.WriteModel) (*mongo.BulkWriteResult, error) {
	return w.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
}
