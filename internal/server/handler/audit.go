package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/empowa-tech/marketplace/internal/domain"
)

// AuditReader lists audit log entries.
type AuditReader interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// AuditHandler serves the audit log.
type AuditHandler struct {
	audit  AuditReader
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(audit AuditReader, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logHandler(logger, "audit")}
}

type auditResponse struct {
	Entries []domain.AuditEntry `json:"entries"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

// List returns audit entries newest first.
// GET /api/audit?limit=50&offset=0&since=RFC3339&until=RFC3339
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list audit entries failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, domain.ErrQueryFailed.Error())
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, auditResponse{Entries: entries, Limit: opts.Limit, Offset: opts.Offset})
}
