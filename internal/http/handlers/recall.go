package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/clinicpulse/schedule-engine/internal/recall"
	"github.com/clinicpulse/schedule-engine/pkg/logging"
)

// RecallHandler serves recall sequences, enrollments, and step execution.
type RecallHandler struct {
	engine *recall.Engine
	store  *recall.Store
	logger *logging.Logger
}

// NewRecallHandler creates a recall HTTP handler.
func NewRecallHandler(engine *recall.Engine, store *recall.Store, logger *logging.Logger) *RecallHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &RecallHandler{engine: engine, store: store, logger: logger}
}

type createSequenceRequest struct {
	Name               string        `json:"name"`
	AppointmentTypes   []string      `json:"appointment_types"`
	DaysSinceLastVisit int           `json:"days_since_last_visit"`
	Steps              []recall.Step `json:"steps"`
	MaxAttempts        int           `json:"max_attempts"`
	StopOnSchedule     bool          `json:"stop_on_schedule"`
}

// CreateSequence registers a new outreach sequence template.
// POST /recall/sequences
func (h *RecallHandler) CreateSequence(w http.ResponseWriter, r *http.Request) {
	var req createSequenceRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}
	seq, err := h.engine.CreateSequence(r.Context(), req.Name, req.AppointmentTypes, req.DaysSinceLastVisit, req.Steps, req.MaxAttempts, req.StopOnSchedule)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, seq, h.logger)
}

// GetSequence returns one sequence with its steps.
// GET /recall/sequences/{sequenceID}
func (h *RecallHandler) GetSequence(w http.ResponseWriter, r *http.Request) {
	sequenceID, ok := uuidParam(w, r, "sequenceID", h.logger)
	if !ok {
		return
	}
	seq, err := h.store.GetSequence(r.Context(), sequenceID)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, seq, h.logger)
}

// ListSequences returns all sequence templates.
// GET /recall/sequences
func (h *RecallHandler) ListSequences(w http.ResponseWriter, r *http.Request) {
	sequences, err := h.store.ListSequences(r.Context())
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sequences": sequences}, h.logger)
}

// Candidates returns lapsed patients eligible for the sequence.
// GET /recall/sequences/{sequenceID}/candidates?limit=100
func (h *RecallHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	sequenceID, ok := uuidParam(w, r, "sequenceID", h.logger)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"}, h.logger)
			return
		}
		limit = n
	}

	candidates, err := h.engine.FindCandidates(r.Context(), sequenceID, limit)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"candidates": candidates}, h.logger)
}

type enrollRequest struct {
	PatientID  uuid.UUID   `json:"patient_id,omitzero"`
	PatientIDs []uuid.UUID `json:"patient_ids,omitempty"`
}

// Enroll starts one or many patients on a sequence. A single patient_id
// enrolls directly; patient_ids runs a batch with per-item outcomes.
// POST /recall/sequences/{sequenceID}/enrollments
func (h *RecallHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	sequenceID, ok := uuidParam(w, r, "sequenceID", h.logger)
	if !ok {
		return
	}
	var req enrollRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	if len(req.PatientIDs) > 0 {
		outcomes, err := h.engine.BatchEnroll(r.Context(), sequenceID, req.PatientIDs)
		if err != nil {
			writeError(w, err, h.logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"outcomes": outcomes}, h.logger)
		return
	}
	if req.PatientID == uuid.Nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "patient_id or patient_ids is required"}, h.logger)
		return
	}

	enrollment, err := h.engine.Enroll(r.Context(), req.PatientID, sequenceID)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, enrollment, h.logger)
}

// PendingSteps returns the due outreach work queue.
// GET /recall/pending-steps?limit=100
func (h *RecallHandler) PendingSteps(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"}, h.logger)
			return
		}
		limit = n
	}
	pending, err := h.engine.PendingSteps(r.Context(), limit)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending_steps": pending}, h.logger)
}

type stepExecutionRequest struct {
	StepNumber int  `json:"step_number"`
	Success    bool `json:"success"`
}

// RecordExecution reports the outcome of one outreach attempt.
// POST /recall/enrollments/{enrollmentID}/executions
func (h *RecallHandler) RecordExecution(w http.ResponseWriter, r *http.Request) {
	enrollmentID, ok := uuidParam(w, r, "enrollmentID", h.logger)
	if !ok {
		return
	}
	var req stepExecutionRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	enrollment, err := h.engine.RecordStepExecution(r.Context(), enrollmentID, req.StepNumber, req.Success)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, enrollment, h.logger)
}

type responseRequest struct {
	Response recall.Response `json:"response"`
}

// PatientResponse records a patient reply against an enrollment.
// POST /recall/enrollments/{enrollmentID}/response
func (h *RecallHandler) PatientResponse(w http.ResponseWriter, r *http.Request) {
	enrollmentID, ok := uuidParam(w, r, "enrollmentID", h.logger)
	if !ok {
		return
	}
	var req responseRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	enrollment, err := h.engine.HandlePatientResponse(r.Context(), enrollmentID, req.Response)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, enrollment, h.logger)
}
