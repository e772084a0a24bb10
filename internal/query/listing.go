package query

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/empowa-tech/marketplace/internal/domain"
)

// Collection names shared by the read model and the stores.
const (
	AssetsCollection     = "policy_assets"
	ActivitiesCollection = "policy_assets_activities"
	ExtendCollection     = "policy_assets_extend"
	AppConfigCollection  = "app_config"
)

// assetFields are carried through the activity grouping unchanged.
var assetFields = []string{
	"asset",
	"policy_id",
	"asset_name",
	"fingerprint",
	"quantity",
	"initial_mint_tx_hash",
	"mint_or_burn_count",
	"onchain_metadata",
	"onchain_metadata_standard",
	"metadata",
	"properties",
}

// DefaultListingSort orders listings by price, then by most recent activity.
var DefaultListingSort = []domain.SortInput{
	{By: "extend.price", Type: domain.SortDesc},
	{By: "last_activity.ada_expiry", Type: domain.SortDesc},
}

// ListingPipeline builds the listing read model for args: every asset joined
// with its latest activity and its listing extension, filtered by the
// compiled match. Sorting and paging are left to Execute.
func ListingPipeline(c *Compiler, args domain.QueryArgs) mongo.Pipeline {
	pipeline := mongo.Pipeline{}
	pipeline = append(pipeline, latestActivityStages()...)
	pipeline = append(pipeline, bson.D{{Key: "$lookup", Value: bson.D{
		{Key: "from", Value: ExtendCollection},
		{Key: "localField", Value: "_id"},
		{Key: "foreignField", Value: "policy_asset"},
		{Key: "as", Value: "extend"},
	}}})
	if match := c.Match(args); len(match) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: match}})
	}
	return pipeline
}

// ListingQuery wraps ListingPipeline with the requested or default sort and
// the page window.
func ListingQuery(c *Compiler, args domain.QueryArgs) Query {
	sort := args.Sort
	if len(sort) == 0 {
		sort = DefaultListingSort
	}
	return Query{
		Stages: ListingPipeline(c, args),
		Sort:   c.Sort(sort),
		Page:   args.Page,
		Limit:  args.Limit,
	}
}

// latestActivityStages joins activities and collapses them to the one with
// the latest expiry. Assets without activities keep a null last_activity.
func latestActivityStages() []bson.D {
	group := bson.D{{Key: "_id", Value: "$_id"}}
	for _, f := range assetFields {
		group = append(group, bson.E{Key: f, Value: bson.D{{Key: "$first", Value: "$" + f}}})
	}
	group = append(group, bson.E{Key: "last_activity", Value: bson.D{{Key: "$first", Value: "$activities"}}})

	return []bson.D{
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: ActivitiesCollection},
			{Key: "localField", Value: "_id"},
			{Key: "foreignField", Value: "policy_asset"},
			{Key: "as", Value: "activities"},
		}}},
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$activities"},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "activities.ada_expiry", Value: -1}}}},
		{{Key: "$group", Value: group}},
	}
}
