package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/empowa-tech/marketplace/internal/domain"
	"github.com/empowa-tech/marketplace/internal/query"
)

// ConfigStore implements domain.AppConfigStore.
type ConfigStore struct {
	coll *mongo.Collection
}

// NewConfigStore creates a ConfigStore.
func NewConfigStore(c *Client) *ConfigStore {
	return &ConfigStore{coll: c.Collection(query.AppConfigCollection)}
}

// MarketplaceConfig returns the marketplace settings document.
func (s *ConfigStore) MarketplaceConfig(ctx context.Context) (domain.MarketplaceConfig, error) {
	var cfg domain.MarketplaceConfig
	err := s.coll.FindOne(ctx, bson.D{{Key: "name", Value: domain.MarketplaceConfigName}}).Decode(&cfg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.MarketplaceConfig{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.MarketplaceConfig{}, fmt.Errorf("mongostore: get marketplace config: %w", err)
	}
	return cfg, nil
}

var _ domain.AppConfigStore = (*ConfigStore)(nil)
