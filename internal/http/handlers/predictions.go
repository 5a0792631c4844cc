package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/clinicpulse/schedule-engine/internal/noshow"
	"github.com/clinicpulse/schedule-engine/pkg/logging"
)

// PredictionHandler serves no-show risk predictions.
type PredictionHandler struct {
	service *noshow.Service
	store   *noshow.Store
	logger  *logging.Logger
}

// NewPredictionHandler creates a prediction HTTP handler.
func NewPredictionHandler(service *noshow.Service, store *noshow.Store, logger *logging.Logger) *PredictionHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &PredictionHandler{service: service, store: store, logger: logger}
}

type predictRequest struct {
	Signals noshow.Signals `json:"signals"`
}

// Predict computes and stores a fresh prediction for one appointment.
// POST /appointments/{appointmentID}/prediction
func (h *PredictionHandler) Predict(w http.ResponseWriter, r *http.Request) {
	appointmentID, ok := uuidParam(w, r, "appointmentID", h.logger)
	if !ok {
		return
	}
	var req predictRequest
	if r.ContentLength > 0 && !decodeBody(w, r, &req, h.logger) {
		return
	}

	prediction, err := h.service.Predict(r.Context(), appointmentID, req.Signals)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, prediction, h.logger)
}

// Get returns the stored prediction for one appointment.
// GET /appointments/{appointmentID}/prediction
func (h *PredictionHandler) Get(w http.ResponseWriter, r *http.Request) {
	appointmentID, ok := uuidParam(w, r, "appointmentID", h.logger)
	if !ok {
		return
	}
	prediction, err := h.store.Get(r.Context(), appointmentID)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, prediction, h.logger)
}

type batchPredictRequest struct {
	AppointmentIDs []uuid.UUID    `json:"appointment_ids"`
	Signals        noshow.Signals `json:"signals"`
}

// BatchPredict scores a set of appointments; per-item failures are reported
// inline, never as a failed batch.
// POST /predictions/batch
func (h *PredictionHandler) BatchPredict(w http.ResponseWriter, r *http.Request) {
	var req batchPredictRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}
	if len(req.AppointmentIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "appointment_ids is required"}, h.logger)
		return
	}

	results := h.service.BatchPredict(r.Context(), req.AppointmentIDs, req.Signals)
	writeJSON(w, http.StatusOK, map[string]any{"results": results}, h.logger)
}
