package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/empowa-tech/marketplace/internal/domain"
)

// AssetCache implements domain.AssetCache with one JSON string per asset.
//
// Key schema:
//
//	marketd:asset:{hex id} - JSON-encoded PolicyAsset
type AssetCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewAssetCache creates an AssetCache whose entries live for ttl.
func NewAssetCache(c *Client, ttl time.Duration) *AssetCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AssetCache{rdb: c.Underlying(), ttl: ttl}
}

func assetKey(id primitive.ObjectID) string { return key("asset", id.Hex()) }

// Set caches an asset.
func (ac *AssetCache) Set(ctx context.Context, asset domain.PolicyAsset) error {
	data, err := json.Marshal(asset)
	if err != nil {
		return fmt.Errorf("redis: marshal asset %s: %w", asset.ID.Hex(), err)
	}
	if err := ac.rdb.Set(ctx, assetKey(asset.ID), data, ac.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set asset %s: %w", asset.ID.Hex(), err)
	}
	return nil
}

// Get returns a cached asset or domain.ErrNotFound.
func (ac *AssetCache) Get(ctx context.Context, id primitive.ObjectID) (domain.PolicyAsset, error) {
	data, err := ac.rdb.Get(ctx, assetKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.PolicyAsset{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PolicyAsset{}, fmt.Errorf("redis: get asset %s: %w", id.Hex(), err)
	}

	var asset domain.PolicyAsset
	if err := json.Unmarshal(data, &asset); err != nil {
		return domain.PolicyAsset{}, fmt.Errorf("redis: unmarshal asset %s: %w", id.Hex(), err)
	}
	return asset, nil
}

// Invalidate drops a cached asset.
func (ac *AssetCache) Invalidate(ctx context.Context, id primitive.ObjectID) error {
	if err := ac.rdb.Del(ctx, assetKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate asset %s: %w", id.Hex(), err)
	}
	return nil
}

var _ domain.AssetCache = (*AssetCache)(nil)
