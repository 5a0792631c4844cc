package intents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Entry is a pending intent awaiting delivery to the queue.
type Entry struct {
	ID        uuid.UUID
	Type      Type
	Payload   json.RawMessage
	CreatedAt time.Time
}

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Outbox persists intents for reliable delivery: the emitting transaction
// writes a row, the dispatcher drains it to SQS.
type Outbox struct {
	db DB
}

// NewOutbox creates an intent outbox.
func NewOutbox(db DB) *Outbox {
	return &Outbox{db: db}
}

// Insert stores an intent for delivery.
func (o *Outbox) Insert(ctx context.Context, intentType Type, payload any) (uuid.UUID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("intents: marshal payload: %w", err)
	}
	id := uuid.New()
	if _, err := o.db.Exec(ctx, `
		INSERT INTO intent_outbox (id, type, payload)
		VALUES ($1, $2, $3)`, id, string(intentType), data); err != nil {
		return uuid.Nil, fmt.Errorf("intents: insert outbox: %w", err)
	}
	return id, nil
}

// FetchPending returns undelivered intents, oldest first.
func (o *Outbox) FetchPending(ctx context.Context, limit int32) ([]Entry, error) {
	rows, err := o.db.Query(ctx, `
		SELECT id, type, payload, created_at
		FROM intent_outbox
		WHERE delivered_at IS NULL
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("intents: fetch pending: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var typ string
		if err := rows.Scan(&e.ID, &typ, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("intents: scan entry: %w", err)
		}
		e.Type = Type(typ)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkDelivered records successful delivery. Guarded so two concurrent
// dispatchers cannot both claim the same entry.
func (o *Outbox) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := o.db.Exec(ctx, `
		UPDATE intent_outbox SET delivered_at = NOW()
		WHERE id = $1 AND delivered_at IS NULL`, id)
	if err != nil {
		return false, fmt.Errorf("intents: mark delivered: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
