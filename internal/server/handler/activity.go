package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/empowa-tech/marketplace/internal/domain"
)

// ActivityService records new sale activities.
type ActivityService interface {
	Create(ctx context.Context, in domain.ActivityInput) (domain.SaleActivity, error)
}

// ActivityHandler serves the sale activity endpoints.
type ActivityHandler struct {
	activities ActivityService
	logger     *slog.Logger
}

// NewActivityHandler creates an ActivityHandler.
func NewActivityHandler(activities ActivityService, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{activities: activities, logger: logHandler(logger, "activity")}
}

// Create inserts a CREATED activity for the transaction in the body.
// POST /api/activities
func (h *ActivityHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in domain.ActivityInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	activity, err := h.activities.Create(r.Context(), in)
	switch {
	case errors.Is(err, domain.ErrInvalidPolicyAsset):
		writeError(w, http.StatusUnprocessableEntity, domain.ErrInvalidPolicyAsset.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		h.logger.ErrorContext(r.Context(), "create activity failed",
			slog.String("tx_hash", in.AdaTransactionHash),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create activity")
	default:
		writeJSON(w, http.StatusCreated, activity)
	}
}
