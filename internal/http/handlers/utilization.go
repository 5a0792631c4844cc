package handlers

import (
	"net/http"
	"strconv"

	"github.com/clinicpulse/schedule-engine/internal/utilization"
	"github.com/clinicpulse/schedule-engine/pkg/logging"
)

// UtilizationHandler serves daily utilization metrics and trend series.
type UtilizationHandler struct {
	calculator *utilization.Calculator
	store      *utilization.Store
	logger     *logging.Logger
}

// NewUtilizationHandler creates a utilization HTTP handler.
func NewUtilizationHandler(calculator *utilization.Calculator, store *utilization.Store, logger *logging.Logger) *UtilizationHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &UtilizationHandler{calculator: calculator, store: store, logger: logger}
}

// CalculateDaily computes and stores the metric for one provider/date.
// POST /providers/{providerID}/utilization?date=YYYY-MM-DD
func (h *UtilizationHandler) CalculateDaily(w http.ResponseWriter, r *http.Request) {
	providerID, ok := uuidParam(w, r, "providerID", h.logger)
	if !ok {
		return
	}
	date, ok := dateQuery(w, r, "date", h.logger)
	if !ok {
		return
	}

	metric, err := h.calculator.CalculateDaily(r.Context(), providerID, date)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, metric, h.logger)
}

// Trend returns a calendar-aligned utilization series.
// GET /providers/{providerID}/utilization/trend?period=week&count=8
func (h *UtilizationHandler) Trend(w http.ResponseWriter, r *http.Request) {
	providerID, ok := uuidParam(w, r, "providerID", h.logger)
	if !ok {
		return
	}

	period := utilization.Period(r.URL.Query().Get("period"))
	if period == "" {
		period = utilization.PeriodDay
	}
	count := 7
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "count must be a positive integer"}, h.logger)
			return
		}
		count = n
	}

	series, err := h.calculator.Trend(r.Context(), providerID, period, count)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"period": period, "series": series}, h.logger)
}
