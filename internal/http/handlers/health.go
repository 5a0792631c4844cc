package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/clinicpulse/schedule-engine/pkg/logging"
)

// pinger reports database liveness; satisfied by *pgxpool.Pool.
type pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler answers liveness and readiness probes.
type HealthHandler struct {
	db     pinger
	logger *logging.Logger
}

// NewHealthHandler creates a health HTTP handler. db may be nil, in which
// case readiness reports ok without a database check.
func NewHealthHandler(db pinger, logger *logging.Logger) *HealthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &HealthHandler{db: db, logger: logger}
}

// Check reports service health.
// GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"}, h.logger)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, h.logger)
}
