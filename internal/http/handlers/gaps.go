package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/clinicpulse/schedule-engine/internal/gaps"
	"github.com/clinicpulse/schedule-engine/internal/schedule"
	"github.com/clinicpulse/schedule-engine/pkg/logging"
)

// GapHandler serves schedule gap detection and lifecycle.
type GapHandler struct {
	detector *gaps.Detector
	store    *gaps.Store
	reader   schedule.Reader
	logger   *logging.Logger
}

// NewGapHandler creates a gap HTTP handler.
func NewGapHandler(detector *gaps.Detector, store *gaps.Store, reader schedule.Reader, logger *logging.Logger) *GapHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &GapHandler{detector: detector, store: store, reader: reader, logger: logger}
}

// Refresh re-detects gaps for a provider/date and replaces the open set.
// POST /providers/{providerID}/gaps/refresh?date=YYYY-MM-DD
func (h *GapHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	providerID, ok := uuidParam(w, r, "providerID", h.logger)
	if !ok {
		return
	}
	date, ok := dateQuery(w, r, "date", h.logger)
	if !ok {
		return
	}

	day, err := h.reader.ProviderDay(r.Context(), providerID, date)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	booked, err := h.reader.BookedAppointments(r.Context(), providerID, date)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	detected, err := h.detector.Refresh(r.Context(), h.store, day, booked)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"gaps": detected}, h.logger)
}

// List returns the stored gaps for a provider/date.
// GET /providers/{providerID}/gaps?date=YYYY-MM-DD
func (h *GapHandler) List(w http.ResponseWriter, r *http.Request) {
	providerID, ok := uuidParam(w, r, "providerID", h.logger)
	if !ok {
		return
	}
	date, ok := dateQuery(w, r, "date", h.logger)
	if !ok {
		return
	}

	stored, err := h.store.ListForDay(r.Context(), providerID, date)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"gaps": stored}, h.logger)
}

type fillGapRequest struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
}

// Fill marks an open gap as filled by an appointment.
// POST /gaps/{gapID}/fill
func (h *GapHandler) Fill(w http.ResponseWriter, r *http.Request) {
	gapID, ok := uuidParam(w, r, "gapID", h.logger)
	if !ok {
		return
	}
	var req fillGapRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}
	if req.AppointmentID == uuid.Nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "appointment_id is required"}, h.logger)
		return
	}

	if err := h.store.MarkFilled(r.Context(), gapID, req.AppointmentID); err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(gaps.StatusFilled)}, h.logger)
}
