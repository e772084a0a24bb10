package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/empowa-tech/marketplace/internal/domain"
	"github.com/empowa-tech/marketplace/internal/metrics"
)

// ingestPageSize is the ledger page size; a shorter page ends the policy.
const ingestPageSize = 100

// AssetIngester copies the assets of configured minting policies from the
// ledger into the policy asset store.
type AssetIngester struct {
	source    domain.AssetSource
	store     domain.PolicyAssetStore
	cache     domain.AssetCache
	policyIDs []string
	logger    *slog.Logger
}

// NewAssetIngester creates an AssetIngester. cache may be nil.
func NewAssetIngester(
	source domain.AssetSource,
	store domain.PolicyAssetStore,
	cache domain.AssetCache,
	policyIDs []string,
	logger *slog.Logger,
) *AssetIngester {
	return &AssetIngester{
		source:    source,
		store:     store,
		cache:     cache,
		policyIDs: policyIDs,
		logger:    logger.With(slog.String("component", "ingester")),
	}
}

// Run ingests every configured policy. A failing policy is logged and the
// remaining ones still run; the first error is returned.
func (s *AssetIngester) Run(ctx context.Context) error {
	var firstErr error
	for _, policyID := range s.policyIDs {
		n, err := s.IngestPolicy(ctx, policyID)
		if err != nil {
			s.logger.ErrorContext(ctx, "policy ingest failed",
				slog.String("policy_id", policyID),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.logger.InfoContext(ctx, "policy ingested",
			slog.String("policy_id", policyID),
			slog.Int("assets", n),
		)
	}
	return firstErr
}

// IngestPolicy pages through one policy, skipping burned assets, and upserts
// each page. It returns the number of assets written.
func (s *AssetIngester) IngestPolicy(ctx context.Context, policyID string) (int, error) {
	total := 0
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return total, fmt.Errorf("ingest %s: %w", policyID, err)
		}

		refs, err := s.source.ListPolicyAssets(ctx, policyID, page, ingestPageSize)
		if err != nil {
			return total, fmt.Errorf("listing %s page %d: %w", policyID, page, err)
		}

		assets := make([]domain.PolicyAsset, 0, len(refs))
		for _, ref := range refs {
			if ref.Quantity == "0" {
				continue
			}
			asset, err := s.source.FetchAsset(ctx, ref.Asset)
			if err != nil {
				return total, fmt.Errorf("fetching asset %s: %w", ref.Asset, err)
			}
			assets = append(assets, asset)
		}

		if len(assets) > 0 {
			if _, err := s.store.UpsertBatch(ctx, assets); err != nil {
				return total, fmt.Errorf("upserting %d assets of %s: %w", len(assets), policyID, err)
			}
			total += len(assets)
			metrics.AssetsIngested.WithLabelValues(policyID).Add(float64(len(assets)))
			s.invalidate(ctx, assets)
		}

		s.logger.DebugContext(ctx, "ingested asset page",
			slog.String("policy_id", policyID),
			slog.Int("page", page),
			slog.Int("assets", len(assets)),
		)
		if len(refs) < ingestPageSize {
			return total, nil
		}
	}
}

func (s *AssetIngester) invalidate(ctx context.Context, assets []domain.PolicyAsset) {
	if s.cache == nil {
		return
	}
	units := make([]string, len(assets))
	for i, a := range assets {
		units[i] = a.Asset
	}
	ids, err := s.store.IDsByAsset(ctx, units)
	if err != nil {
		s.logger.WarnContext(ctx, "asset cache invalidation skipped", slog.String("error", err.Error()))
		return
	}
	for _, id := range ids {
		if err := s.cache.Invalidate(ctx, id); err != nil {
			s.logger.WarnContext(ctx, "asset cache invalidation failed",
				slog.String("id", id.Hex()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// RunLoop ingests immediately and then every interval until ctx is cancelled.
func (s *AssetIngester) RunLoop(ctx context.Context, interval time.Duration) error {
	if err := s.Run(ctx); err != nil {
		s.logger.Error("asset ingest failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("asset ingester loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Run(ctx); err != nil {
				s.logger.Error("asset ingest failed", slog.String("error", err.Error()))
			}
		}
	}
}
