package recall

import (
	"context"
	"errors"
	"fmt"
	"time"

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

// Store persists recall sequences, enrollments, and step executions. Every
// enrollment transition is a guarded compare-and-set keyed on the current
// status and step, so concurrent runs cannot double-advance.
type Store struct {
	db DB
}

// NewStore creates a recall store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// CreateSequence inserts a sequence template and its steps.
func (s *Store) CreateSequence(ctx context.Context, seq *Sequence) error {
	now := time.Now().UTC()
	seq.CreatedAt = now
	seq.UpdatedAt = now
	if _, err := s.db.Exec(ctx, `
		INSERT INTO recall_sequences (id, name, appointment_types, days_since_last_visit, max_attempts, stop_on_schedule, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		seq.ID, seq.Name, seq.AppointmentTypes, seq.DaysSinceLastVisit,
		seq.MaxAttempts, seq.StopOnSchedule, seq.CreatedAt, seq.UpdatedAt,
	); err != nil {
		return fmt.Errorf("recall: insert sequence: %w", err)
	}
	for _, step := range seq.Steps {
		if _, err := s.db.Exec(ctx, `
			INSERT INTO recall_steps (sequence_id, step_number, step_type, days_from_start, content_ref)
			VALUES ($1, $2, $3, $4, $5)`,
			seq.ID, step.StepNumber, string(step.Type), step.DaysFromStart, step.ContentRef,
		); err != nil {
			return fmt.Errorf("recall: insert step: %w", err)
		}
	}
	return nil
}

// GetSequence returns a sequence with its ordered steps.
func (s *Store) GetSequence(ctx context.Context, id uuid.UUID) (*Sequence, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, appointment_types, days_since_last_visit, max_attempts, stop_on_schedule, created_at, updated_at
		FROM recall_sequences
		WHERE id = $1`, id)
	var seq Sequence
	err := row.Scan(&seq.ID, &seq.Name, &seq.AppointmentTypes, &seq.DaysSinceLastVisit,
		&seq.MaxAttempts, &seq.StopOnSchedule, &seq.CreatedAt, &seq.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &schedule.NotFoundError{Entity: "sequence", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("recall: get sequence: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT step_number, step_type, days_from_start, content_ref
		FROM recall_steps
		WHERE sequence_id = $1
		ORDER BY step_number ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("recall: get steps: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var step Step
		var stepType string
		if err := rows.Scan(&step.StepNumber, &stepType, &step.DaysFromStart, &step.ContentRef); err != nil {
			return nil, fmt.Errorf("recall: scan step: %w", err)
		}
		step.Type = StepType(stepType)
		seq.Steps = append(seq.Steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recall: get steps: %w", err)
	}
	return &seq, nil
}

// ListSequences returns all sequence ids and names, without steps.
func (s *Store) ListSequences(ctx context.Context) ([]Sequence, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, appointment_types, days_since_last_visit, max_attempts, stop_on_schedule, created_at, updated_at
		FROM recall_sequences
		ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("recall: list sequences: %w", err)
	}
	defer rows.Close()

	var result []Sequence
	for rows.Next() {
		var seq Sequence
		if err := rows.Scan(&seq.ID, &seq.Name, &seq.AppointmentTypes, &seq.DaysSinceLastVisit,
			&seq.MaxAttempts, &seq.StopOnSchedule, &seq.CreatedAt, &seq.UpdatedAt); err != nil {
			return nil, fmt.Errorf("recall: scan sequence: %w", err)
		}
		result = append(result, seq)
	}
	return result, rows.Err()
}

// FindCandidates returns patients whose last qualifying visit is older than
// the sequence threshold and who have no active enrollment in it.
func (s *Store) FindCandidates(ctx context.Context, seq *Sequence, asOf time.Time, limit int) ([]Candidate, error) {
	if limit <= 0 {
		limit = 500
	}
	cutoff := asOf.UTC().AddDate(0, 0, -seq.DaysSinceLastVisit)
	rows, err := s.db.Query(ctx, `
		SELECT v.patient_id, v.last_visit
		FROM (
			SELECT patient_id, MAX(start_time) AS last_visit
			FROM appointments
			WHERE status = 'completed' AND appointment_type_id = ANY($1)
			GROUP BY patient_id
		) v
		WHERE v.last_visit <= $2
		  AND NOT EXISTS (
			SELECT 1 FROM recall_enrollments e
			WHERE e.patient_id = v.patient_id AND e.sequence_id = $3 AND e.status = 'active'
		  )
		ORDER BY v.last_visit ASC
		LIMIT $4`, seq.AppointmentTypes, cutoff, seq.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("recall: find candidates: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.PatientID, &c.LastVisit); err != nil {
			return nil, fmt.Errorf("recall: scan candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// ActiveEnrollment returns the patient's active enrollment in a sequence,
// or nil when there is none.
func (s *Store) ActiveEnrollment(ctx context.Context, patientID, sequenceID uuid.UUID) (*Enrollment, error) {
	row := s.db.QueryRow(ctx, enrollmentSelect+`
		WHERE patient_id = $1 AND sequence_id = $2 AND status = 'active'`, patientID, sequenceID)
	e, err := scanEnrollment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("recall: active enrollment: %w", err)
	}
	return e, nil
}

// GetEnrollment returns an enrollment by id.
func (s *Store) GetEnrollment(ctx context.Context, id uuid.UUID) (*Enrollment, error) {
	row := s.db.QueryRow(ctx, enrollmentSelect+`
		WHERE id = $1`, id)
	e, err := scanEnrollment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &schedule.NotFoundError{Entity: "enrollment", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("recall: get enrollment: %w", err)
	}
	return e, nil
}

// InsertEnrollment creates an active enrollment. A concurrent insert for the
// same (patient, sequence) loses silently; the caller re-reads the winner.
func (s *Store) InsertEnrollment(ctx context.Context, e *Enrollment) (bool, error) {
	now := time.Now().UTC()
	e.UpdatedAt = now
	tag, err := s.db.Exec(ctx, `
		INSERT INTO recall_enrollments (id, patient_id, sequence_id, status, current_step_number, attempts, failed, enrolled_at, last_dispatched_step, updated_at)
		VALUES ($1, $2, $3, 'active', 1, 0, FALSE, $4, 0, $5)
		ON CONFLICT (patient_id, sequence_id) WHERE status = 'active' DO NOTHING`,
		e.ID, e.PatientID, e.SequenceID, e.EnrolledAt, e.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("recall: insert enrollment: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// PendingSteps returns active enrollments whose current step has come due.
func (s *Store) PendingSteps(ctx context.Context, asOf time.Time, limit int) ([]PendingStep, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT e.id, e.patient_id, e.sequence_id, e.current_step_number, st.step_type, st.content_ref,
		       e.enrolled_at + st.days_from_start * INTERVAL '1 day' AS due_at
		FROM recall_enrollments e
		JOIN recall_steps st ON st.sequence_id = e.sequence_id AND st.step_number = e.current_step_number
		WHERE e.status = 'active'
		  AND e.enrolled_at + st.days_from_start * INTERVAL '1 day' <= $1
		ORDER BY due_at ASC
		LIMIT $2`, asOf.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("recall: pending steps: %w", err)
	}
	defer rows.Close()

	var pending []PendingStep
	for rows.Next() {
		var p PendingStep
		var stepType string
		if err := rows.Scan(&p.EnrollmentID, &p.PatientID, &p.SequenceID, &p.StepNumber, &stepType, &p.ContentRef, &p.DueAt); err != nil {
			return nil, fmt.Errorf("recall: scan pending step: %w", err)
		}
		p.StepType = StepType(stepType)
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// AdvanceStep moves an active enrollment from stepNumber to the next step.
// Returns false when the enrollment was not active on that step, so a
// concurrent run that already advanced it cannot advance it again.
func (s *Store) AdvanceStep(ctx context.Context, id uuid.UUID, stepNumber int, executedAt time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE recall_enrollments
		SET current_step_number = current_step_number + 1, attempts = 0, last_step_executed_at = $1, updated_at = $1
		WHERE id = $2 AND status = 'active' AND current_step_number = $3`,
		executedAt.UTC(), id, stepNumber)
	if err != nil {
		return false, fmt.Errorf("recall: advance step: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Complete terminates an active enrollment as COMPLETED. The failed flag
// distinguishes max-attempts exhaustion from a quiet run-out of steps.
func (s *Store) Complete(ctx context.Context, id uuid.UUID, stepNumber int, failed bool, executedAt time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE recall_enrollments
		SET status = 'completed', failed = $1, last_step_executed_at = $2, updated_at = $2
		WHERE id = $3 AND status = 'active' AND current_step_number = $4`,
		failed, executedAt.UTC(), id, stepNumber)
	if err != nil {
		return false, fmt.Errorf("recall: complete enrollment: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RecordFailure increments the failed-attempt counter for the current step
// and returns the new count. It also releases the dispatch claim for the
// step, so the next DispatchDue run re-emits the send-message intent for
// the retry.
func (s *Store) RecordFailure(ctx context.Context, id uuid.UUID, stepNumber int, executedAt time.Time) (int, bool, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE recall_enrollments
		SET attempts = attempts + 1, last_dispatched_step = $3 - 1, last_step_executed_at = $1, updated_at = $1
		WHERE id = $2 AND status = 'active' AND current_step_number = $3
		RETURNING attempts`, executedAt.UTC(), id, stepNumber)
	var attempts int
	err := row.Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("recall: record failure: %w", err)
	}
	return attempts, true, nil
}

// Terminate ends an active enrollment with a terminal response status.
func (s *Store) Terminate(ctx context.Context, id uuid.UUID, status EnrollmentStatus) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE recall_enrollments SET status = $1, updated_at = $2
		WHERE id = $3 AND status = 'active'`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("recall: terminate enrollment: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkDispatched claims a step for intent emission. Only one concurrent
// dispatcher wins per (enrollment, step).
func (s *Store) MarkDispatched(ctx context.Context, id uuid.UUID, stepNumber int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE recall_enrollments SET last_dispatched_step = $1, updated_at = $2
		WHERE id = $3 AND status = 'active' AND current_step_number = $1 AND last_dispatched_step < $1`,
		stepNumber, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("recall: mark dispatched: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// InsertExecution records a step execution outcome for audit.
func (s *Store) InsertExecution(ctx context.Context, enrollmentID uuid.UUID, stepNumber, attempt int, success bool, executedAt time.Time) error {
	if _, err := s.db.Exec(ctx, `
		INSERT INTO recall_step_executions (enrollment_id, step_number, attempt, success, executed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (enrollment_id, step_number, attempt) DO NOTHING`,
		enrollmentID, stepNumber, attempt, success, executedAt.UTC()); err != nil {
		return fmt.Errorf("recall: insert execution: %w", err)
	}
	return nil
}

const enrollmentSelect = `
		SELECT id, patient_id, sequence_id, status, current_step_number, attempts, failed, enrolled_at, last_step_executed_at, last_dispatched_step, updated_at
		FROM recall_enrollments`

func scanEnrollment(row pgx.Row) (*Enrollment, error) {
	var e Enrollment
	var status string
	err := row.Scan(&e.ID, &e.PatientID, &e.SequenceID, &status, &e.CurrentStepNumber,
		&e.Attempts, &e.Failed, &e.EnrolledAt, &e.LastStepExecutedAt, &e.LastDispatchedStep, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Status = EnrollmentStatus(status)
	return &e, nil
}
