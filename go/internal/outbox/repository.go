package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/brainbolt/go/internal/sqlutil"
)

// NotifyChannel is the Postgres NOTIFY channel carrying new outbox event ids.
const NotifyChannel = "room_outbox_events"

// DBTX matches the database/sql surface used here, satisfied by *sql.DB and
// *sql.Tx so Insert can run inside the room mutation's transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repository struct {
	db DBTX
}

func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{db: tx}
}

// Insert writes one outbox row and notifies the listener with its id. Run it
// in the same transaction as the room mutation it describes so an event is
// published iff the mutation committed.
func (r *Repository) Insert(ctx context.Context, roomID uuid.UUID, eventType string, payload json.RawMessage) error {
	id := uuid.New()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO room_outbox (id, room_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, now())`,
		id, roomID, eventType, []byte(payload))
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, id.String()); err != nil {
		return fmt.Errorf("failed to notify outbox channel: %w", err)
	}
	return nil
}

func (r *Repository) FetchByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, room_id, event_type, payload, created_at, sent_at
		FROM room_outbox WHERE id = $1`, id)

	event, err := scanEvent(row)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outbox event: %w", err)
	}
	return event, nil
}

// FetchUnsent returns unpublished events oldest-first, for the fallback poll.
func (r *Repository) FetchUnsent(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, room_id, event_type, payload, created_at, sent_at
		FROM room_outbox
		WHERE sent_at IS NULL
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var unsent []OutboxEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		unsent = append(unsent, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox events: %w", err)
	}
	return unsent, nil
}

func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE room_outbox SET sent_at = now() WHERE id = $1 AND sent_at IS NULL`, id); err != nil {
		return fmt.Errorf("failed to mark outbox event sent: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*OutboxEvent, error) {
	var (
		event   OutboxEvent
		payload []byte
		sentAt  sql.NullTime
	)
	if err := row.Scan(&event.ID, &event.RoomID, &event.EventType, &payload, &event.CreatedAt, &sentAt); err != nil {
		return nil, err
	}
	event.Payload = json.RawMessage(payload)
	event.SentAt = sqlutil.FromSqlTime(sentAt)
	return &event, nil
}
