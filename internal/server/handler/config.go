package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/empowa-tech/marketplace/internal/domain"
)

// ConfigService reads marketplace settings.
type ConfigService interface {
	MarketplaceConfig(ctx context.Context) (domain.MarketplaceConfig, error)
}

// ConfigHandler serves application settings.
type ConfigHandler struct {
	configs ConfigService
	logger  *slog.Logger
}

// NewConfigHandler creates a ConfigHandler.
func NewConfigHandler(configs ConfigService, logger *slog.Logger) *ConfigHandler {
	return &ConfigHandler{configs: configs, logger: logHandler(logger, "config")}
}

// GetMarketplaceConfig returns the marketplace settings document.
// GET /api/marketplace-config
func (h *ConfigHandler) GetMarketplaceConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.configs.MarketplaceConfig(r.Context())
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "marketplace config not found")
	case err != nil:
		h.logger.ErrorContext(r.Context(), "read marketplace config failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, domain.ErrQueryFailed.Error())
	default:
		writeJSON(w, http.StatusOK, cfg)
	}
}
