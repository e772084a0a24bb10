package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/empowa-tech/marketplace/internal/domain"
)

// ActivityService records new sale activities.
type ActivityService struct {
	activities domain.ActivityStore
	assets     domain.PolicyAssetStore
	cache      domain.AssetCache
	events     domain.EventPublisher
	validate   *validator.Validate
	now        func() time.Time
	logger     *slog.Logger
}

// NewActivityService creates an ActivityService. cache and events may be nil.
func NewActivityService(
	activities domain.ActivityStore,
	assets domain.PolicyAssetStore,
	cache domain.AssetCache,
	events domain.EventPublisher,
	logger *slog.Logger,
) *ActivityService {
	return &ActivityService{
		activities: activities,
		assets:     assets,
		cache:      cache,
		events:     events,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		now:        time.Now,
		logger:     logger.With(slog.String("component", "activity_service")),
	}
}

// WithClock replaces the time source.
func (s *ActivityService) WithClock(now func() time.Time) *ActivityService {
	s.now = now
	return s
}

// Create validates in, checks that the referenced policy asset exists, and
// stores a CREATED activity expiring six hours from now.
func (s *ActivityService) Create(ctx context.Context, in domain.ActivityInput) (domain.SaleActivity, error) {
	if err := s.validate.StructCtx(ctx, in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return domain.SaleActivity{}, fmt.Errorf("%w: %s failed %q", domain.ErrInvalidInput, fe.Field(), fe.Tag())
		}
		return domain.SaleActivity{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if in.Price.IsNegative() {
		return domain.SaleActivity{}, fmt.Errorf("%w: price must not be negative", domain.ErrInvalidInput)
	}
	if in.PolicyAsset.IsZero() {
		return domain.SaleActivity{}, domain.ErrInvalidPolicyAsset
	}

	if _, err := lookupAsset(ctx, s.assets, s.cache, s.logger, in.PolicyAsset); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.SaleActivity{}, domain.ErrInvalidPolicyAsset
		}
		return domain.SaleActivity{}, fmt.Errorf("activity_service: %w", err)
	}

	activity := domain.NewSaleActivity(in, s.now())
	if err := s.activities.Insert(ctx, &activity); err != nil {
		return domain.SaleActivity{}, fmt.Errorf("activity_service: insert: %w", err)
	}

	s.logger.InfoContext(ctx, "activity created",
		slog.String("activity_id", activity.ID.Hex()),
		slog.String("type", string(activity.Type)),
		slog.String("tx_hash", activity.AdaTransactionHash),
	)

	if s.events != nil {
		if err := s.events.Publish(ctx, domain.NewSaleEvent(activity, "", activity.CreatedAt)); err != nil {
			s.logger.WarnContext(ctx, "event publish failed", slog.String("error", err.Error()))
		}
	}
	return activity, nil
}
