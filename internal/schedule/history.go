package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PatientHistory aggregates a patient's past appointment outcomes.
type PatientHistory struct {
	PatientID     uuid.UUID  `json:"patient_id"`
	Completed     int        `json:"completed"`
	NoShows       int        `json:"no_shows"`
	Cancellations int        `json:"cancellations"`
	// RecentNoShows counts no-shows in the last 180 days, used for
	// recency weighting by the risk model.
	RecentNoShows int        `json:"recent_no_shows"`
	LastVisit     *time.Time `json:"last_visit,omitempty"`
}

// TotalVisits returns all resolved past appointments.
func (h PatientHistory) TotalVisits() int {
	return h.Completed + h.NoShows + h.Cancellations
}

// PatientHistoryProvider supplies patient outcome history to the scorers.
type PatientHistoryProvider interface {
	PatientHistory(ctx context.Context, patientID uuid.UUID) (*PatientHistory, error)
}

// Reader supplies read-only schedule snapshots to the engine.
type Reader interface {
	Appointment(ctx context.Context, id uuid.UUID) (*AppointmentSnapshot, error)
	BookedAppointments(ctx context.Context, providerID uuid.UUID, date time.Time) ([]AppointmentSnapshot, error)
	UpcomingAppointments(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]AppointmentSnapshot, error)
	ProviderDay(ctx context.Context, providerID uuid.UUID, date time.Time) (*ProviderDay, error)
	EligibleProviders(ctx context.Context, appointmentTypeID string) ([]uuid.UUID, error)
}

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// HistoryRepository reads appointment and schedule history from Postgres.
// It is strictly read-only; the engine never writes to these tables.
type HistoryRepository struct {
	db DB
}

// NewHistoryRepository creates a history repository.
func NewHistoryRepository(db DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// PatientHistory aggregates a patient's resolved appointment outcomes.
func (r *HistoryRepository) PatientHistory(ctx context.Context, patientID uuid.UUID) (*PatientHistory, error) {
	h := &PatientHistory{PatientID: patientID}
	row := r.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'completed') AS completed,
			COUNT(*) FILTER (WHERE status = 'no_show') AS no_shows,
			COUNT(*) FILTER (WHERE status = 'cancelled') AS cancellations,
			COUNT(*) FILTER (WHERE status = 'no_show' AND start_time >= NOW() - INTERVAL '180 days') AS recent_no_shows,
			MAX(start_time) FILTER (WHERE status = 'completed') AS last_visit
		FROM appointments
		WHERE patient_id = $1 AND start_time < NOW()`, patientID)
	if err := row.Scan(&h.Completed, &h.NoShows, &h.Cancellations, &h.RecentNoShows, &h.LastVisit); err != nil {
		return nil, fmt.Errorf("schedule: patient history: %w", err)
	}
	return h, nil
}

// Appointment returns a single appointment snapshot.
func (r *HistoryRepository) Appointment(ctx context.Context, id uuid.UUID) (*AppointmentSnapshot, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, patient_id, provider_id, start_time, end_time, status, appointment_type_id, is_telehealth, booked_at
		FROM appointments
		WHERE id = $1`, id)
	var a AppointmentSnapshot
	var status string
	err := row.Scan(&a.ID, &a.PatientID, &a.ProviderID, &a.StartTime, &a.EndTime, &status, &a.AppointmentTypeID, &a.IsTelehealth, &a.BookedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "appointment", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("schedule: get appointment: %w", err)
	}
	a.Status = AppointmentStatus(status)
	return &a, nil
}

// BookedAppointments returns non-cancelled appointments for a provider on a date.
func (r *HistoryRepository) BookedAppointments(ctx context.Context, providerID uuid.UUID, date time.Time) ([]AppointmentSnapshot, error) {
	day := DateOf(date)
	rows, err := r.db.Query(ctx, `
		SELECT id, patient_id, provider_id, start_time, end_time, status, appointment_type_id, is_telehealth, booked_at
		FROM appointments
		WHERE provider_id = $1 AND start_time >= $2 AND start_time < $3 AND status <> 'cancelled'
		ORDER BY start_time ASC`, providerID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("schedule: booked appointments: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// UpcomingAppointments returns non-cancelled appointments in [from, to).
func (r *HistoryRepository) UpcomingAppointments(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]AppointmentSnapshot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, patient_id, provider_id, start_time, end_time, status, appointment_type_id, is_telehealth, booked_at
		FROM appointments
		WHERE provider_id = $1 AND start_time >= $2 AND start_time < $3 AND status <> 'cancelled'
		ORDER BY start_time ASC`, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("schedule: upcoming appointments: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// ProviderDay returns the working window and blocks for a provider/date.
// A provider with no configured schedule row gets a non-working day, not an
// error: non-working days are a normal input to utilization.
func (r *HistoryRepository) ProviderDay(ctx context.Context, providerID uuid.UUID, date time.Time) (*ProviderDay, error) {
	day := DateOf(date)
	d := &ProviderDay{ProviderID: providerID, Date: day}

	row := r.db.QueryRow(ctx, `
		SELECT work_start, work_end
		FROM provider_schedules
		WHERE provider_id = $1 AND date = $2`, providerID, day)
	err := row.Scan(&d.WorkStart, &d.WorkEnd)
	if errors.Is(err, pgx.ErrNoRows) {
		return d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("schedule: provider day: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT provider_id, start_time, end_time, reason
		FROM schedule_blocks
		WHERE provider_id = $1 AND start_time >= $2 AND start_time < $3
		ORDER BY start_time ASC`, providerID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("schedule: schedule blocks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var b ScheduleBlock
		if err := rows.Scan(&b.ProviderID, &b.Start, &b.End, &b.Reason); err != nil {
			return nil, fmt.Errorf("schedule: scan block: %w", err)
		}
		d.Blocks = append(d.Blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schedule: schedule blocks: %w", err)
	}
	return d, nil
}

// EligibleProviders returns providers who offer the given appointment type.
func (r *HistoryRepository) EligibleProviders(ctx context.Context, appointmentTypeID string) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT provider_id
		FROM provider_appointment_types
		WHERE appointment_type_id = $1
		ORDER BY provider_id`, appointmentTypeID)
	if err != nil {
		return nil, fmt.Errorf("schedule: eligible providers: %w", err)
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("schedule: scan provider id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanAppointments(rows pgx.Rows) ([]AppointmentSnapshot, error) {
	var result []AppointmentSnapshot
	for rows.Next() {
		var a AppointmentSnapshot
		var status string
		err := rows.Scan(&a.ID, &a.PatientID, &a.ProviderID, &a.StartTime, &a.EndTime, &status, &a.AppointmentTypeID, &a.IsTelehealth, &a.BookedAt)
		if err != nil {
			return nil, fmt.Errorf("schedule: scan appointment: %w", err)
		}
		a.Status = AppointmentStatus(status)
		result = append(result, a)
	}
	return result, rows.Err()
}
