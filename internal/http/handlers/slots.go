package handlers

import (
	"net/http"
	"time"

	"github.com/clinicpulse/schedule-engine/internal/slots"
	"github.com/clinicpulse/schedule-engine/pkg/logging"
)

// SlotHandler serves slot search and schedule suggestions.
type SlotHandler struct {
	optimizer *slots.Optimizer
	logger    *logging.Logger
}

// NewSlotHandler creates a slot HTTP handler.
func NewSlotHandler(optimizer *slots.Optimizer, logger *logging.Logger) *SlotHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SlotHandler{optimizer: optimizer, logger: logger}
}

type slotSearchRequest struct {
	AppointmentTypeID string            `json:"appointment_type_id"`
	DurationMinutes   int               `json:"duration_minutes"`
	From              time.Time         `json:"from"`
	To                time.Time         `json:"to"`
	Preferences       slots.Preferences `json:"preferences"`
	Urgency           slots.Urgency     `json:"urgency"`
}

// Search returns ranked candidate slots for a new appointment.
// POST /slots/search
func (h *SlotHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req slotSearchRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}
	if req.Urgency == "" {
		req.Urgency = slots.UrgencyRoutine
	}

	candidates, err := h.optimizer.FindOptimalSlots(r.Context(), req.AppointmentTypeID, req.DurationMinutes, req.From, req.To, req.Preferences, req.Urgency)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": candidates}, h.logger)
}

// TodaySuggestions returns the open gaps still worth filling today.
// GET /providers/{providerID}/suggestions
func (h *SlotHandler) TodaySuggestions(w http.ResponseWriter, r *http.Request) {
	providerID, ok := uuidParam(w, r, "providerID", h.logger)
	if !ok {
		return
	}
	suggestions, err := h.optimizer.TodaySuggestions(r.Context(), providerID)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions}, h.logger)
}

// Improvements reports fragmented idle time over a range.
// GET /providers/{providerID}/improvements?from=...&to=...
func (h *SlotHandler) Improvements(w http.ResponseWriter, r *http.Request) {
	providerID, ok := uuidParam(w, r, "providerID", h.logger)
	if !ok {
		return
	}
	from, to, ok := rangeQuery(w, r, h.logger)
	if !ok {
		return
	}
	improvements, err := h.optimizer.SuggestScheduleImprovements(r.Context(), providerID, from, to)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"improvements": improvements}, h.logger)
}
