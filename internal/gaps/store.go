package gaps

import (
	"context"
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

// Store provides persistence for schedule gaps.
type Store struct {
	db DB
}

// NewStore creates a gap store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// ReplaceOpenForDay swaps the open gaps for a provider/date with a freshly
// detected set. Filled and expired rows are preserved.
func (s *Store) ReplaceOpenForDay(ctx context.Context, providerID uuid.UUID, date time.Time, detected []Gap) error {
	day := schedule.DateOf(date)
	if _, err := s.db.Exec(ctx, `
		DELETE FROM schedule_gaps
		WHERE provider_id = $1 AND date = $2 AND status = 'open'`, providerID, day); err != nil {
		return fmt.Errorf("gaps: clear open gaps: %w", err)
	}

	now := time.Now().UTC()
	for i := range detected {
		g := &detected[i]
		if g.ID == uuid.Nil {
			g.ID = uuid.New()
		}
		g.CreatedAt = now
		g.UpdatedAt = now
		if _, err := s.db.Exec(ctx, `
			INSERT INTO schedule_gaps (id, provider_id, date, start_time, end_time, duration_minutes, priority, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			g.ID, g.ProviderID, day, g.StartTime, g.EndTime, g.DurationMinutes, g.Priority, string(g.Status), g.CreatedAt, g.UpdatedAt,
		); err != nil {
			return fmt.Errorf("gaps: insert gap: %w", err)
		}
	}
	return nil
}

// ListOpen returns open gaps for a provider in [from, to), highest priority
// first.
func (s *Store) ListOpen(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Gap, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, provider_id, date, start_time, end_time, duration_minutes, priority, status, filled_by_appointment_id, created_at, updated_at
		FROM schedule_gaps
		WHERE provider_id = $1 AND status = 'open' AND start_time >= $2 AND start_time < $3
		ORDER BY priority DESC, start_time ASC`, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("gaps: list open: %w", err)
	}
	defer rows.Close()
	return scanGaps(rows)
}

// ListForDay returns all gaps for a provider/date regardless of status.
func (s *Store) ListForDay(ctx context.Context, providerID uuid.UUID, date time.Time) ([]Gap, error) {
	day := schedule.DateOf(date)
	rows, err := s.db.Query(ctx, `
		SELECT id, provider_id, date, start_time, end_time, duration_minutes, priority, status, filled_by_appointment_id, created_at, updated_at
		FROM schedule_gaps
		WHERE provider_id = $1 AND date = $2
		ORDER BY start_time ASC`, providerID, day)
	if err != nil {
		return nil, fmt.Errorf("gaps: list for day: %w", err)
	}
	defer rows.Close()
	return scanGaps(rows)
}

// MarkFilled transitions an open gap to filled, recording the appointment
// booked into it. Filling a non-open gap is a conflict.
func (s *Store) MarkFilled(ctx context.Context, id, appointmentID uuid.UUID) error {
	now := time.Now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE schedule_gaps SET status = 'filled', filled_by_appointment_id = $1, updated_at = $2
		WHERE id = $3 AND status = 'open'`, appointmentID, now, id)
	if err != nil {
		return fmt.Errorf("gaps: mark filled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &schedule.ConflictError{Entity: "gap", ID: id.String(), Reason: "not open"}
	}
	return nil
}

// ExpireElapsed transitions open gaps whose date has fully passed to
// expired. Idempotent and safe to run concurrently.
func (s *Store) ExpireElapsed(ctx context.Context, now time.Time) (int64, error) {
	today := schedule.DateOf(now)
	tag, err := s.db.Exec(ctx, `
		UPDATE schedule_gaps SET status = 'expired', updated_at = $1
		WHERE status = 'open' AND date < $2`, now.UTC(), today)
	if err != nil {
		return 0, fmt.Errorf("gaps: expire elapsed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// FillRateForHour returns the share of past gaps at this provider/hour that
// were filled. Returns false when there is no history to aggregate.
func (s *Store) FillRateForHour(ctx context.Context, providerID uuid.UUID, hourOfDay int) (float64, bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'filled') AS filled,
			COUNT(*) AS total
		FROM schedule_gaps
		WHERE provider_id = $1
		  AND EXTRACT(HOUR FROM start_time) = $2
		  AND status IN ('filled', 'expired')`, providerID, hourOfDay)
	var filled, total int64
	if err := row.Scan(&filled, &total); err != nil {
		return 0, false, fmt.Errorf("gaps: fill rate: %w", err)
	}
	if total == 0 {
		return 0, false, nil
	}
	return float64(filled) / float64(total), true, nil
}

func scanGaps(rows pgx.Rows) ([]Gap, error) {
	var result []Gap
	for rows.Next() {
		var g Gap
		var status string
		err := rows.Scan(
			&g.ID, &g.ProviderID, &g.Date, &g.StartTime, &g.EndTime,
			&g.DurationMinutes, &g.Priority, &status, &g.FilledByAppointmentID,
			&g.CreatedAt, &g.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("gaps: scan gap: %w", err)
		}
		g.Status = Status(status)
		result = append(result, g)
	}
	return result, rows.Err()
}
