package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/empowa-tech/marketplace/internal/domain"
)

// SalesRunner performs one guarded reconciliation run.
type SalesRunner interface {
	RunOnce(ctx context.Context) (domain.RunReport, error)
}

// SalesHandler serves the manual reconciliation trigger.
type SalesHandler struct {
	runner SalesRunner
	logger *slog.Logger
}

// NewSalesHandler creates a SalesHandler.
func NewSalesHandler(runner SalesRunner, logger *slog.Logger) *SalesHandler {
	return &SalesHandler{runner: runner, logger: logHandler(logger, "sales")}
}

// Process runs one reconciliation pass and returns its report. The run is
// detached from the request so a disconnecting client does not abort it.
// POST /api/sales/process
func (h *SalesHandler) Process(w http.ResponseWriter, r *http.Request) {
	h.logger.InfoContext(r.Context(), "manual reconciliation requested")

	report, err := h.runner.RunOnce(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, domain.ErrRunInProgress):
		writeError(w, http.StatusConflict, domain.ErrRunInProgress.Error())
	case err != nil:
		h.logger.ErrorContext(r.Context(), "manual reconciliation failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  "reconciliation failed",
			"report": report,
		})
	default:
		writeJSON(w, http.StatusOK, report)
	}
}
