// Package handlers exposes the scheduling engine over HTTP. Handlers are
// thin: they parse, delegate to an engine package, and translate the error
// taxonomy to status codes.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicpulse/schedule-engine/internal/schedule"
	"github.com/clinicpulse/schedule-engine/pkg/logging"
)

func writeJSON(w http.ResponseWriter, status int, v any, logger *logging.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && logger != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error, logger *logging.Logger) {
	switch {
	case schedule.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()}, logger)
	case schedule.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()}, logger)
	case schedule.IsConflict(err):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()}, logger)
	default:
		if logger != nil {
			logger.Error("request failed", "error", err)
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"}, logger)
	}
}

// uuidParam parses a UUID path parameter, writing a 400 on failure.
func uuidParam(w http.ResponseWriter, r *http.Request, name string, logger *logging.Logger) (uuid.UUID, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": name + " must be a UUID"}, logger)
		return uuid.Nil, false
	}
	return id, true
}

// dateQuery parses an optional date query parameter, defaulting to today.
func dateQuery(w http.ResponseWriter, r *http.Request, name string, logger *logging.Logger) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return schedule.DateOf(time.Now().UTC()), true
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": name + " must be YYYY-MM-DD"}, logger)
		return time.Time{}, false
	}
	return t.UTC(), true
}

// rangeQuery parses required from/to RFC3339 query parameters.
func rangeQuery(w http.ResponseWriter, r *http.Request, logger *logging.Logger) (time.Time, time.Time, bool) {
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "from must be RFC3339"}, logger)
		return time.Time{}, time.Time{}, false
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "to must be RFC3339"}, logger)
		return time.Time{}, time.Time{}, false
	}
	return from.UTC(), to.UTC(), true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any, logger *logging.Logger) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"}, logger)
		return false
	}
	return true
}
