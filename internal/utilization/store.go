package utilization

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

// Store persists one utilization row per (provider, date).
type Store struct {
	db DB
}

// NewStore creates a utilization store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Upsert writes the metric for a provider/date, overwriting a prior row.
func (s *Store) Upsert(ctx context.Context, m *Metric) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO utilization_metrics (provider_id, date, booked_minutes, available_minutes, gap_minutes, utilization_rate)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider_id, date) DO UPDATE SET
			booked_minutes = EXCLUDED.booked_minutes,
			available_minutes = EXCLUDED.available_minutes,
			gap_minutes = EXCLUDED.gap_minutes,
			utilization_rate = EXCLUDED.utilization_rate`,
		m.ProviderID, schedule.DateOf(m.Date), m.BookedMinutes, m.AvailableMinutes, m.GapMinutes, m.UtilizationRate,
	)
	if err != nil {
		return fmt.Errorf("utilization: upsert metric: %w", err)
	}
	return nil
}

// Range returns daily metrics for a provider in [from, to), oldest first.
func (s *Store) Range(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Metric, error) {
	rows, err := s.db.Query(ctx, `
		SELECT provider_id, date, booked_minutes, available_minutes, gap_minutes, utilization_rate
		FROM utilization_metrics
		WHERE provider_id = $1 AND date >= $2 AND date < $3
		ORDER BY date ASC`, providerID, schedule.DateOf(from), schedule.DateOf(to))
	if err != nil {
		return nil, fmt.Errorf("utilization: range: %w", err)
	}
	defer rows.Close()

	var result []Metric
	for rows.Next() {
		var m Metric
		if err := rows.Scan(&m.ProviderID, &m.Date, &m.BookedMinutes, &m.AvailableMinutes, &m.GapMinutes, &m.UtilizationRate); err != nil {
			return nil, fmt.Errorf("utilization: scan metric: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}
