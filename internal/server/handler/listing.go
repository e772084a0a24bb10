package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/empowa-tech/marketplace/internal/domain"
)

// ListingService is what the listing handler needs from the service layer.
type ListingService interface {
	Query(ctx context.Context, args domain.QueryArgs) (domain.Page[domain.PolicyAssetListing], error)
	GetAsset(ctx context.Context, id primitive.ObjectID) (domain.PolicyAsset, error)
}

// ListingHandler serves the policy asset listing endpoints.
type ListingHandler struct {
	listings ListingService
	logger   *slog.Logger
}

// NewListingHandler creates a ListingHandler.
func NewListingHandler(listings ListingService, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{listings: listings, logger: logHandler(logger, "listing")}
}

// Query returns one page of listings matching the filter and sort in the body.
// POST /api/policy-assets/query
func (h *ListingHandler) Query(w http.ResponseWriter, r *http.Request) {
	var args domain.QueryArgs
	if err := decodeJSON(w, r, &args); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.listings.Query(r.Context(), args)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "listing query failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, domain.ErrQueryFailed.Error())
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetAsset returns a single policy asset.
// GET /api/policy-assets/{id}
func (h *ListingHandler) GetAsset(w http.ResponseWriter, r *http.Request) {
	id, err := objectIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	asset, err := h.listings.GetAsset(r.Context(), id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "policy asset not found")
	case err != nil:
		h.logger.ErrorContext(r.Context(), "get asset failed",
			slog.String("id", id.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, domain.ErrQueryFailed.Error())
	default:
		writeJSON(w, http.StatusOK, asset)
	}
}
