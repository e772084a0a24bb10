package handler

import (
	"net/http"
	"time"
)

// StatusHandler reports runtime state of the daemon.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	running   func() bool
	breaker   func() string
}

// NewStatusHandler creates a StatusHandler. running and breaker may be nil
// when the process does not reconcile or talk to the ledger.
func NewStatusHandler(mode string, running func() bool, breaker func() string) *StatusHandler {
	return &StatusHandler{
		mode:      mode,
		startedAt: time.Now().UTC(),
		running:   running,
		breaker:   breaker,
	}
}

// GetStatus responds with the mode, uptime, reconciliation state, and ledger
// circuit breaker state.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"mode":           h.mode,
		"started_at":     h.startedAt.Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}
	if h.running != nil {
		body["reconciling"] = h.running()
	}
	if h.breaker != nil {
		body["ledger_breaker"] = h.breaker()
	}
	writeJSON(w, http.StatusOK, body)
}
