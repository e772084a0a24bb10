package query

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/empowa-tech/marketplace/internal/domain"
)

// Aggregator runs an aggregation pipeline. *mongo.Collection satisfies it.
type Aggregator interface {
	Aggregate(ctx context.Context, pipeline any, opts ...*options.AggregateOptions) (*mongo.Cursor, error)
}

// Query is a paginated aggregation: base stages followed by an optional
// match, an optional sort, and the page window. Page is zero-indexed and a
// Limit of zero or less returns every matching document.
type Query struct {
	Stages mongo.Pipeline
	Match  bson.D
	Sort   bson.D
	Page   int
	Limit  int
}

// Skip returns the number of documents before the requested page.
func (q Query) Skip() int64 {
	if q.Page > 0 && q.Limit > 0 {
		return int64(q.Page) * int64(q.Limit)
	}
	return 0
}

// Pipeline assembles the full pipeline. The final $facet stage returns the
// page under "results" and the unpaginated count under "total".
func (q Query) Pipeline() mongo.Pipeline {
	pipeline := make(mongo.Pipeline, 0, len(q.Stages)+3)
	for _, s := range q.Stages {
		if len(s) > 0 {
			pipeline = append(pipeline, s)
		}
	}
	if len(q.Match) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: q.Match}})
	}
	if len(q.Sort) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$sort", Value: q.Sort}})
	}

	results := bson.A{bson.D{{Key: "$skip", Value: q.Skip()}}}
	if q.Limit > 0 {
		results = append(results, bson.D{{Key: "$limit", Value: int64(q.Limit)}})
	}
	return append(pipeline, bson.D{{Key: "$facet", Value: bson.D{
		{Key: "results", Value: results},
		{Key: "total", Value: bson.A{bson.D{{Key: "$count", Value: "total"}}}},
	}}})
}

type facetResult[T any] struct {
	Results []T `bson:"results"`
	Total   []struct {
		Total int64 `bson:"total"`
	} `bson:"total"`
}

// Execute runs q against agg and decodes the page into T.
func Execute[T any](ctx context.Context, agg Aggregator, q Query) (domain.Page[T], error) {
	cur, err := agg.Aggregate(ctx, q.Pipeline(), options.Aggregate().SetAllowDiskUse(true))
	if err != nil {
		return domain.Page[T]{}, fmt.Errorf("%w: aggregate: %w", domain.ErrQueryFailed, err)
	}
	defer cur.Close(ctx)

	page := domain.Page[T]{Results: []T{}}
	if !cur.Next(ctx) {
		if err := cur.Err(); err != nil {
			return domain.Page[T]{}, fmt.Errorf("%w: read facet: %w", domain.ErrQueryFailed, err)
		}
		return page, nil
	}

	var facet facetResult[T]
	if err := cur.Decode(&facet); err != nil {
		return domain.Page[T]{}, fmt.Errorf("%w: decode facet: %w", domain.ErrQueryFailed, err)
	}
	if facet.Results != nil {
		page.Results = facet.Results
	}
	if len(facet.Total) > 0 {
		page.Total = facet.Total[0].Total
	}
	return page, nil
}
