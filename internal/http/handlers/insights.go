package handlers

import (
	"net/http"

	"github.com/clinicpulse/schedule-engine/internal/insights"
	"github.com/clinicpulse/schedule-engine/pkg/logging"
)

// InsightHandler serves the ranked insight feed.
type InsightHandler struct {
	aggregator *insights.Aggregator
	logger     *logging.Logger
}

// NewInsightHandler creates an insight HTTP handler.
func NewInsightHandler(aggregator *insights.Aggregator, logger *logging.Logger) *InsightHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &InsightHandler{aggregator: aggregator, logger: logger}
}

// List returns ranked insights for a provider over a range.
// GET /providers/{providerID}/insights?from=...&to=...
func (h *InsightHandler) List(w http.ResponseWriter, r *http.Request) {
	providerID, ok := uuidParam(w, r, "providerID", h.logger)
	if !ok {
		return
	}
	from, to, ok := rangeQuery(w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.aggregator.Generate(r.Context(), providerID, from, to)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"insights": result}, h.logger)
}
