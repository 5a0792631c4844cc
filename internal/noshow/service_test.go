package noshow

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicpulse/schedule-engine/internal/schedule"
)

type fakeAppointments struct {
	appts map[uuid.UUID]*schedule.AppointmentSnapshot
}

func (f fakeAppointments) Appointment(_ context.Context, id uuid.UUID) (*schedule.AppointmentSnapshot, error) {
	a, ok := f.appts[id]
	if !ok {
		return nil, &schedule.NotFoundError{Entity: "appointment", ID: id.String()}
	}
	return a, nil
}

type fakeHistories struct {
	histories map[uuid.UUID]*schedule.PatientHistory
}

func (f fakeHistories) PatientHistory(_ context.Context, patientID uuid.UUID) (*schedule.PatientHistory, error) {
	return f.histories[patientID], nil
}

func newTestService(t *testing.T, appts map[uuid.UUID]*schedule.AppointmentSnapshot, histories map[uuid.UUID]*schedule.PatientHistory) (*Service, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	model := NewModel(DefaultWeights()).WithClock(fixedClock)
	svc := NewService(model, fakeAppointments{appts: appts}, fakeHistories{histories: histories}, NewStore(mock), nil, nil)
	return svc, mock
}

func expectUpsert(mock pgxmock.PgxPoolIface, appointmentID uuid.UUID, riskLevel string) {
	mock.ExpectExec("INSERT INTO no_show_predictions").
		WithArgs(appointmentID, pgxmock.AnyArg(), riskLevel, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
}

func TestServicePredictPersistsPrediction(t *testing.T) {
	appt := testAppointment()
	appt.IsTelehealth = true
	history := &schedule.PatientHistory{PatientID: appt.PatientID, Completed: 2, NoShows: 3}

	svc, mock := newTestService(t,
		map[uuid.UUID]*schedule.AppointmentSnapshot{appt.ID: &appt},
		map[uuid.UUID]*schedule.PatientHistory{appt.PatientID: history},
	)
	expectUpsert(mock, appt.ID, "high")

	p, err := svc.Predict(context.Background(), appt.ID, Signals{})
	require.NoError(t, err)
	assert.InDelta(t, 0.54, p.Probability, 1e-9)
	assert.Equal(t, RiskHigh, p.RiskLevel)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchPredictMatchesIndividualPredict(t *testing.T) {
	chronic := testAppointment()
	chronic.IsTelehealth = true
	reliable := testAppointment()

	appts := map[uuid.UUID]*schedule.AppointmentSnapshot{
		chronic.ID:  &chronic,
		reliable.ID: &reliable,
	}
	histories := map[uuid.UUID]*schedule.PatientHistory{
		chronic.PatientID:  {PatientID: chronic.PatientID, Completed: 2, NoShows: 3},
		reliable.PatientID: {PatientID: reliable.PatientID, Completed: 10},
	}

	svc, mock := newTestService(t, appts, histories)

	// Individual predictions, then the batch over the same ids.
	expectUpsert(mock, chronic.ID, "high")
	expectUpsert(mock, reliable.ID, "medium")
	expectUpsert(mock, chronic.ID, "high")
	expectUpsert(mock, reliable.ID, "medium")

	chronicSolo, err := svc.Predict(context.Background(), chronic.ID, Signals{})
	require.NoError(t, err)
	reliableSolo, err := svc.Predict(context.Background(), reliable.ID, Signals{})
	require.NoError(t, err)

	items := svc.BatchPredict(context.Background(), []uuid.UUID{chronic.ID, reliable.ID}, Signals{})
	require.Len(t, items, 2)

	for i, solo := range []*Prediction{chronicSolo, reliableSolo} {
		require.NotNil(t, items[i].Prediction, "item %d", i)
		assert.Equal(t, solo.Probability, items[i].Prediction.Probability)
		assert.Equal(t, solo.RiskLevel, items[i].Prediction.RiskLevel)
		assert.Equal(t, solo.Factors, items[i].Prediction.Factors)
		assert.False(t, items[i].Skipped)
		assert.Empty(t, items[i].Error)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchPredictSkipsCancelled(t *testing.T) {
	cancelled := testAppointment()
	cancelled.Status = schedule.StatusCancelled

	svc, mock := newTestService(t,
		map[uuid.UUID]*schedule.AppointmentSnapshot{cancelled.ID: &cancelled},
		nil,
	)

	items := svc.BatchPredict(context.Background(), []uuid.UUID{cancelled.ID}, Signals{})
	require.Len(t, items, 1)
	assert.True(t, items[0].Skipped)
	assert.Nil(t, items[0].Prediction)
	assert.Empty(t, items[0].Error)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchPredictContinuesPastMissingAppointment(t *testing.T) {
	appt := testAppointment()
	missing := uuid.New()

	svc, mock := newTestService(t,
		map[uuid.UUID]*schedule.AppointmentSnapshot{appt.ID: &appt},
		map[uuid.UUID]*schedule.PatientHistory{appt.PatientID: {PatientID: appt.PatientID, Completed: 10}},
	)
	expectUpsert(mock, appt.ID, "medium")

	items := svc.BatchPredict(context.Background(), []uuid.UUID{missing, appt.ID}, Signals{})
	require.Len(t, items, 2)

	assert.NotEmpty(t, items[0].Error)
	assert.Nil(t, items[0].Prediction)
	require.NotNil(t, items[1].Prediction)
	assert.Empty(t, items[1].Error)
	require.NoError(t, mock.ExpectationsWereMet())
}
