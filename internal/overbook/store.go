package overbook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinicpulse/schedule-engine/internal/noshow"
	"github.com/clinicpulse/schedule-engine/internal/schedule"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists overbooking recommendations. Every transition is a guarded
// compare-and-set against the current status.
type Store struct {
	db DB
}

// NewStore creates a recommendation store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Supersede expires any outstanding pending recommendation for the same
// (provider, slot) and inserts the fresh one, keeping at most one
// outstanding recommendation per slot.
func (s *Store) Supersede(ctx context.Context, r *Recommendation) error {
	now := time.Now().UTC()
	if _, err := s.db.Exec(ctx, `
		UPDATE overbooking_recommendations SET status = 'expired', decided_at = $1
		WHERE provider_id = $2 AND slot_start = $3 AND status = 'pending'`,
		now, r.ProviderID, r.SlotStart); err != nil {
		return fmt.Errorf("overbook: supersede prior: %w", err)
	}

	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if _, err := s.db.Exec(ctx, `
		INSERT INTO overbooking_recommendations
			(id, provider_id, slot_start, slot_end, target_appointment_id, risk_probability, risk_level, rationale, status, recommended_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.ProviderID, r.SlotStart, r.SlotEnd, r.TargetAppointmentID,
		r.RiskProbability, string(r.RiskLevel), r.Rationale, string(r.Status),
		r.RecommendedAt, r.ExpiresAt,
	); err != nil {
		return fmt.Errorf("overbook: insert recommendation: %w", err)
	}
	return nil
}

// Get returns a recommendation by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Recommendation, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, provider_id, slot_start, slot_end, target_appointment_id, risk_probability, risk_level, rationale, status, recommended_at, expires_at, decided_at, decided_by, decline_reason
		FROM overbooking_recommendations
		WHERE id = $1`, id)
	r, err := scanRecommendation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &schedule.NotFoundError{Entity: "recommendation", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("overbook: get recommendation: %w", err)
	}
	return r, nil
}

// ListPending returns pending recommendations for a provider, soonest slot
// first.
func (s *Store) ListPending(ctx context.Context, providerID uuid.UUID) ([]Recommendation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, provider_id, slot_start, slot_end, target_appointment_id, risk_probability, risk_level, rationale, status, recommended_at, expires_at, decided_at, decided_by, decline_reason
		FROM overbooking_recommendations
		WHERE provider_id = $1 AND status = 'pending'
		ORDER BY slot_start ASC`, providerID)
	if err != nil {
		return nil, fmt.Errorf("overbook: list pending: %w", err)
	}
	defer rows.Close()

	var result []Recommendation
	for rows.Next() {
		r, err := scanRecommendation(rows)
		if err != nil {
			return nil, fmt.Errorf("overbook: scan recommendation: %w", err)
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}

// CountAcceptedForSlot counts accepted recommendations for a slot, used to
// enforce the max-concurrent-overbooks policy. Pending rows do not count:
// they are superseded by regeneration, not protected by the cap.
func (s *Store) CountAcceptedForSlot(ctx context.Context, providerID uuid.UUID, slotStart time.Time) (int, error) {
	row := s.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM overbooking_recommendations
		WHERE provider_id = $1 AND slot_start = $2 AND status = 'accepted'`,
		providerID, slotStart)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("overbook: count accepted for slot: %w", err)
	}
	return count, nil
}

// Decide transitions pending → accepted/declined. Deciding a non-pending
// recommendation is a conflict and leaves the row unchanged.
func (s *Store) Decide(ctx context.Context, id uuid.UUID, accepted bool, decidedBy, declineReason string) (*Recommendation, error) {
	status := StatusDeclined
	if accepted {
		status = StatusAccepted
	}
	now := time.Now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE overbooking_recommendations
		SET status = $1, decided_at = $2, decided_by = $3, decline_reason = $4
		WHERE id = $5 AND status = 'pending'`,
		string(status), now, decidedBy, declineReason, id)
	if err != nil {
		return nil, fmt.Errorf("overbook: decide: %w", err)
	}
	if tag.RowsAffected() == 0 {
		existing, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, &schedule.ConflictError{
			Entity: "recommendation",
			ID:     id.String(),
			Reason: fmt.Sprintf("already %s", existing.Status),
		}
	}
	return s.Get(ctx, id)
}

// ExpireStale transitions pending recommendations past their TTL to
// expired. Idempotent and safe to run concurrently.
func (s *Store) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE overbooking_recommendations SET status = 'expired', decided_at = $1
		WHERE status = 'pending' AND expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("overbook: expire stale: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRecommendation(row pgx.Row) (*Recommendation, error) {
	var r Recommendation
	var status, level string
	var decidedBy, declineReason *string
	err := row.Scan(
		&r.ID, &r.ProviderID, &r.SlotStart, &r.SlotEnd, &r.TargetAppointmentID,
		&r.RiskProbability, &level, &r.Rationale, &status,
		&r.RecommendedAt, &r.ExpiresAt, &r.DecidedAt, &decidedBy, &declineReason,
	)
	if err != nil {
		return nil, err
	}
	r.Status = Status(status)
	r.RiskLevel = noshow.RiskLevel(level)
	if decidedBy != nil {
		r.DecidedBy = *decidedBy
	}
	if declineReason != nil {
		r.DeclineReason = *declineReason
	}
	return &r, nil
}
