package service

import (
	"context"
	"fmt"

	"github.com/empowa-tech/marketplace/internal/domain"
)

// ConfigService exposes application settings stored alongside the data.
type ConfigService struct {
	configs domain.AppConfigStore
}

// NewConfigService creates a ConfigService.
func NewConfigService(configs domain.AppConfigStore) *ConfigService {
	return &ConfigService{configs: configs}
}

// MarketplaceConfig returns the marketplace settings document.
func (s *ConfigService) MarketplaceConfig(ctx context.Context) (domain.MarketplaceConfig, error) {
	cfg, err := s.configs.MarketplaceConfig(ctx)
	if err != nil {
		return domain.MarketplaceConfig{}, fmt.Errorf("config_service: marketplace config: %w", err)
	}
	return cfg, nil
}
