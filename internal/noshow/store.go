package noshow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinicpulse/schedule-engine/internal/schedule"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists the current prediction per appointment. Recomputation
// overwrites: one row per appointment, keyed by appointment id.
type Store struct {
	db DB
}

// NewStore creates a prediction store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Upsert writes the current prediction for an appointment, replacing any
// prior one.
func (s *Store) Upsert(ctx context.Context, p *Prediction) error {
	factors, err := json.Marshal(p.Factors)
	if err != nil {
		return fmt.Errorf("noshow: marshal factors: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO no_show_predictions (appointment_id, probability, risk_level, contributing_factors, low_confidence, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (appointment_id) DO UPDATE SET
			probability = EXCLUDED.probability,
			risk_level = EXCLUDED.risk_level,
			contributing_factors = EXCLUDED.contributing_factors,
			low_confidence = EXCLUDED.low_confidence,
			computed_at = EXCLUDED.computed_at`,
		p.AppointmentID, p.Probability, string(p.RiskLevel), factors, p.LowConfidence, p.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("noshow: upsert prediction: %w", err)
	}
	return nil
}

// Get returns the current prediction for an appointment.
func (s *Store) Get(ctx context.Context, appointmentID uuid.UUID) (*Prediction, error) {
	row := s.db.QueryRow(ctx, `
		SELECT appointment_id, probability, risk_level, contributing_factors, low_confidence, computed_at
		FROM no_show_predictions
		WHERE appointment_id = $1`, appointmentID)
	p, err := scanPrediction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &schedule.NotFoundError{Entity: "prediction", ID: appointmentID.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("noshow: get prediction: %w", err)
	}
	return p, nil
}

// ForAppointments returns current predictions for the given appointments,
// keyed by appointment id. Appointments without predictions are absent.
func (s *Store) ForAppointments(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Prediction, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]*Prediction{}, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT appointment_id, probability, risk_level, contributing_factors, low_confidence, computed_at
		FROM no_show_predictions
		WHERE appointment_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("noshow: predictions for appointments: %w", err)
	}
	defer rows.Close()

	result := make(map[uuid.UUID]*Prediction, len(ids))
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("noshow: scan prediction: %w", err)
		}
		result[p.AppointmentID] = p
	}
	return result, rows.Err()
}

func scanPrediction(row pgx.Row) (*Prediction, error) {
	var p Prediction
	var level string
	var factors []byte
	if err := row.Scan(&p.AppointmentID, &p.Probability, &level, &factors, &p.LowConfidence, &p.ComputedAt); err != nil {
		return nil, err
	}
	p.RiskLevel = RiskLevel(level)
	if len(factors) > 0 {
		if err := json.Unmarshal(factors, &p.Factors); err != nil {
			return nil, fmt.Errorf("unmarshal factors: %w", err)
		}
	}
	return &p, nil
}
