package intents

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	sent    []string
	failOn  map[int]bool
	sendNum int
}

func (q *fakeQueue) Send(_ context.Context, body string) error {
	q.sendNum++
	if q.failOn[q.sendNum] {
		return errors.New("queue unavailable")
	}
	q.sent = append(q.sent, body)
	return nil
}

func pendingRows(entries ...Entry) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"id", "type", "payload", "created_at"})
	for _, e := range entries {
		rows.AddRow(e.ID, string(e.Type), []byte(e.Payload), e.CreatedAt)
	}
	return rows
}

func TestOutboxInsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO intent_outbox").
		WithArgs(pgxmock.AnyArg(), "send_message", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	outbox := NewOutbox(mock)
	id, err := outbox.Insert(context.Background(), TypeSendMessage, SendMessage{
		EnrollmentID: uuid.New(),
		StepNumber:   1,
		Channel:      "email",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkDeliveredGuard(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE intent_outbox SET delivered_at").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	outbox := NewOutbox(mock)
	claimed, err := outbox.MarkDelivered(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	entry := Entry{
		ID:        uuid.New(),
		Type:      TypeCreateAppointment,
		Payload:   json.RawMessage(`{"decided_by":"front-desk"}`),
		CreatedAt: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
	}

	mock.ExpectQuery("FROM intent_outbox").
		WithArgs(int32(10)).
		WillReturnRows(pendingRows(entry))
	mock.ExpectExec("UPDATE intent_outbox SET delivered_at").
		WithArgs(entry.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	queue := &fakeQueue{}
	d := NewDispatcher(NewOutbox(mock), queue, nil, nil)

	delivered, err := d.DispatchPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	require.Len(t, queue.sent, 1)

	var env struct {
		ID      string          `json:"id"`
		Type    Type            `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(queue.sent[0]), &env))
	assert.Equal(t, entry.ID.String(), env.ID)
	assert.Equal(t, TypeCreateAppointment, env.Type)
	assert.JSONEq(t, `{"decided_by":"front-desk"}`, string(env.Payload))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchPendingContinuesPastSendFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	first := Entry{ID: uuid.New(), Type: TypeSendMessage, Payload: json.RawMessage(`{}`)}
	second := Entry{ID: uuid.New(), Type: TypeSendMessage, Payload: json.RawMessage(`{}`)}

	mock.ExpectQuery("FROM intent_outbox").
		WithArgs(int32(10)).
		WillReturnRows(pendingRows(first, second))
	// Only the second entry reaches MarkDelivered; the first send failed and
	// stays pending for the next run.
	mock.ExpectExec("UPDATE intent_outbox SET delivered_at").
		WithArgs(second.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	queue := &fakeQueue{failOn: map[int]bool{1: true}}
	d := NewDispatcher(NewOutbox(mock), queue, nil, nil)

	delivered, err := d.DispatchPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchPendingUnclaimedNotCounted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	entry := Entry{ID: uuid.New(), Type: TypeSendMessage, Payload: json.RawMessage(`{}`)}

	mock.ExpectQuery("FROM intent_outbox").
		WithArgs(int32(5)).
		WillReturnRows(pendingRows(entry))
	// A concurrent dispatcher delivered it first.
	mock.ExpectExec("UPDATE intent_outbox SET delivered_at").
		WithArgs(entry.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	d := NewDispatcher(NewOutbox(mock), &fakeQueue{}, nil, nil)

	delivered, err := d.DispatchPending(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 0, delivered)
	require.NoError(t, mock.ExpectationsWereMet())
}
