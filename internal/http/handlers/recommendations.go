package handlers

import (
	"net/http"

	"github.com/clinicpulse/schedule-engine/internal/overbook"
	"github.com/clinicpulse/schedule-engine/pkg/logging"
)

// RecommendationHandler serves overbooking recommendations.
type RecommendationHandler struct {
	advisor *overbook.Advisor
	store   *overbook.Store
	logger  *logging.Logger
}

// NewRecommendationHandler creates an overbooking HTTP handler.
func NewRecommendationHandler(advisor *overbook.Advisor, store *overbook.Store, logger *logging.Logger) *RecommendationHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &RecommendationHandler{advisor: advisor, store: store, logger: logger}
}

// Generate scans the provider's upcoming schedule and produces fresh
// recommendations.
// POST /providers/{providerID}/recommendations/generate
func (h *RecommendationHandler) Generate(w http.ResponseWriter, r *http.Request) {
	providerID, ok := uuidParam(w, r, "providerID", h.logger)
	if !ok {
		return
	}
	generated, err := h.advisor.GenerateRecommendations(r.Context(), providerID)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recommendations": generated}, h.logger)
}

// ListPending returns the provider's undecided recommendations.
// GET /providers/{providerID}/recommendations
func (h *RecommendationHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	providerID, ok := uuidParam(w, r, "providerID", h.logger)
	if !ok {
		return
	}
	pending, err := h.store.ListPending(r.Context(), providerID)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recommendations": pending}, h.logger)
}

// Get returns one recommendation.
// GET /recommendations/{recommendationID}
func (h *RecommendationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "recommendationID", h.logger)
	if !ok {
		return
	}
	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, rec, h.logger)
}

type decisionRequest struct {
	Accepted      bool   `json:"accepted"`
	DecidedBy     string `json:"decided_by"`
	DeclineReason string `json:"decline_reason,omitempty"`
}

// Decide resolves a pending recommendation. Repeated decisions return 409.
// POST /recommendations/{recommendationID}/decision
func (h *RecommendationHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "recommendationID", h.logger)
	if !ok {
		return
	}
	var req decisionRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	rec, err := h.advisor.ApplyDecision(r.Context(), id, req.Accepted, req.DecidedBy, req.DeclineReason)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, rec, h.logger)
}
