package overbook

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicpulse/schedule-engine/internal/schedule"
)

func recommendationRow(id uuid.UUID, status Status) *pgxmock.Rows {
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	decidedBy := "front-desk"
	return pgxmock.NewRows([]string{
		"id", "provider_id", "slot_start", "slot_end", "target_appointment_id",
		"risk_probability", "risk_level", "rationale", "status",
		"recommended_at", "expires_at", "decided_at", "decided_by", "decline_reason",
	}).AddRow(
		id, uuid.New(), now, now.Add(30*time.Minute), uuid.New(),
		0.54, "high", "54% no-show risk", string(status),
		now, now.Add(48*time.Hour), &now, &decidedBy, (*string)(nil),
	)
}

func TestDecide(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE overbooking_recommendations").
		WithArgs("accepted", pgxmock.AnyArg(), "front-desk", "", id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("FROM overbooking_recommendations").
		WithArgs(id).
		WillReturnRows(recommendationRow(id, StatusAccepted))

	store := NewStore(mock)
	rec, err := store.Decide(context.Background(), id, true, "front-desk", "")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, rec.Status)
	assert.Equal(t, "front-desk", rec.DecidedBy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDecideAlreadyDecided(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE overbooking_recommendations").
		WithArgs("declined", pgxmock.AnyArg(), "front-desk", "patient confirmed", id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("FROM overbooking_recommendations").
		WithArgs(id).
		WillReturnRows(recommendationRow(id, StatusAccepted))

	store := NewStore(mock)
	_, err = store.Decide(context.Background(), id, false, "front-desk", "patient confirmed")
	require.Error(t, err)
	assert.True(t, schedule.IsConflict(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("FROM overbooking_recommendations").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	store := NewStore(mock)
	_, err = store.Get(context.Background(), id)
	require.Error(t, err)
	assert.True(t, schedule.IsNotFound(err))
}

func TestExpireStale(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE overbooking_recommendations SET status = 'expired'").
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	store := NewStore(mock)
	n, err := store.ExpireStale(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountAcceptedForSlot(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	providerID := uuid.New()
	slot := time.Date(2026, 1, 6, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("status = 'accepted'").
		WithArgs(providerID, slot).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	store := NewStore(mock)
	count, err := store.CountAcceptedForSlot(context.Background(), providerID, slot)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
