package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/empowa-tech/marketplace/internal/domain"
)

// DefaultPageSize is used when a listing request does not set a limit.
const DefaultPageSize = 10

// ListingService serves the policy asset listing read model.
type ListingService struct {
	assets      domain.PolicyAssetStore
	cache       domain.AssetCache
	maxPageSize int
	logger      *slog.Logger
}

// NewListingService creates a ListingService. cache may be nil.
func NewListingService(
	assets domain.PolicyAssetStore,
	cache domain.AssetCache,
	maxPageSize int,
	logger *slog.Logger,
) *ListingService {
	if maxPageSize < 1 {
		maxPageSize = 100
	}
	return &ListingService{
		assets:      assets,
		cache:       cache,
		maxPageSize: maxPageSize,
		logger:      logger.With(slog.String("component", "listing_service")),
	}
}

// Query returns one page of listings. A non-positive limit falls back to
// DefaultPageSize and larger limits are capped; a negative page is treated as
// the first page.
func (s *ListingService) Query(ctx context.Context, args domain.QueryArgs) (domain.Page[domain.PolicyAssetListing], error) {
	switch {
	case args.Limit <= 0:
		args.Limit = DefaultPageSize
	case args.Limit > s.maxPageSize:
		args.Limit = s.maxPageSize
	}
	if args.Page < 0 {
		args.Page = 0
	}

	page, err := s.assets.ListListings(ctx, args)
	if err != nil {
		return domain.Page[domain.PolicyAssetListing]{}, fmt.Errorf("listing_service: query: %w", err)
	}
	if page.Results == nil {
		page.Results = []domain.PolicyAssetListing{}
	}
	return page, nil
}

// GetAsset returns one policy asset, reading through the cache.
func (s *ListingService) GetAsset(ctx context.Context, id primitive.ObjectID) (domain.PolicyAsset, error) {
	return lookupAsset(ctx, s.assets, s.cache, s.logger, id)
}

// lookupAsset reads id from cache, falling back to the store and back-filling
// the cache on a miss.
func lookupAsset(
	ctx context.Context,
	assets domain.PolicyAssetStore,
	cache domain.AssetCache,
	logger *slog.Logger,
	id primitive.ObjectID,
) (domain.PolicyAsset, error) {
	if cache != nil {
		if a, err := cache.Get(ctx, id); err == nil {
			return a, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			logger.WarnContext(ctx, "asset cache read failed",
				slog.String("id", id.Hex()),
				slog.String("error", err.Error()),
			)
		}
	}

	a, err := assets.GetByID(ctx, id)
	if err != nil {
		return domain.PolicyAsset{}, fmt.Errorf("get asset %s: %w", id.Hex(), err)
	}

	if cache != nil {
		if err := cache.Set(ctx, a); err != nil {
			logger.WarnContext(ctx, "asset cache set failed",
				slog.String("id", id.Hex()),
				slog.String("error", err.Error()),
			)
		}
	}
	return a, nil
}
