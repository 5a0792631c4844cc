package noshow

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinicpulse/schedule-engine/internal/observability/metrics"
	"github.com/clinicpulse/schedule-engine/internal/schedule"
	"github.com/clinicpulse/schedule-engine/pkg/logging"
)

// appointmentReader is the slice of schedule.Reader the service needs.
type appointmentReader interface {
	Appointment(ctx context.Context, id uuid.UUID) (*schedule.AppointmentSnapshot, error)
}

// Service wires the model to history access and the prediction store.
type Service struct {
	model        *Model
	appointments appointmentReader
	history      schedule.PatientHistoryProvider
	store        *Store
	metrics      *metrics.EngineMetrics
	logger       *logging.Logger
}

// NewService creates a prediction service.
func NewService(model *Model, appointments appointmentReader, history schedule.PatientHistoryProvider, store *Store, m *metrics.EngineMetrics, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		model:        model,
		appointments: appointments,
		history:      history,
		store:        store,
		metrics:      m,
		logger:       logger,
	}
}

// Predict computes and persists the current prediction for an appointment.
func (s *Service) Predict(ctx context.Context, appointmentID uuid.UUID, signals Signals) (*Prediction, error) {
	appt, err := s.appointments.Appointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	history, err := s.history.PatientHistory(ctx, appt.PatientID)
	if err != nil {
		return nil, fmt.Errorf("noshow: load history: %w", err)
	}

	prediction, err := s.model.Predict(*appt, history, signals)
	if err != nil {
		return nil, err
	}

	if err := s.store.Upsert(ctx, prediction); err != nil {
		return nil, err
	}

	s.metrics.ObservePrediction(string(prediction.RiskLevel), prediction.LowConfidence)
	return prediction, nil
}

// BatchItem is the per-appointment outcome of a batch prediction run.
type BatchItem struct {
	AppointmentID uuid.UUID   `json:"appointment_id"`
	Prediction    *Prediction `json:"prediction,omitempty"`
	Skipped       bool        `json:"skipped,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// BatchPredict scores each appointment independently, producing exactly the
// same result Predict would for that id. Cancelled appointments are skipped,
// and one bad item never fails the batch.
func (s *Service) BatchPredict(ctx context.Context, ids []uuid.UUID, signals Signals) []BatchItem {
	results := make([]BatchItem, 0, len(ids))
	for _, id := range ids {
		item := BatchItem{AppointmentID: id}

		appt, err := s.appointments.Appointment(ctx, id)
		if err != nil {
			item.Error = err.Error()
			results = append(results, item)
			continue
		}
		if appt.Status == schedule.StatusCancelled {
			item.Skipped = true
			results = append(results, item)
			continue
		}

		prediction, err := s.Predict(ctx, id, signals)
		if err != nil {
			s.logger.Error("noshow: batch item failed", "appointment_id", id, "error", err)
			item.Error = err.Error()
			results = append(results, item)
			continue
		}
		item.Prediction = prediction
		results = append(results, item)
	}
	return results
}
