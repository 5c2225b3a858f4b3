package room

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mcdev12/brainbolt/go/internal/models"
	"github.com/mcdev12/brainbolt/go/internal/sqlutil"
)

// DBTX is the subset of database/sql used by the repository, satisfied by
// both *sql.DB and *sql.Tx so mutations can share a transaction with the
// outbox insert.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository implements the Room Store over Postgres. Every shared mutation
// is a conditional UPDATE whose WHERE clause encodes the state-machine
// precondition; zero affected rows means the precondition no longer holds and
// surfaces as ErrStaleWrite.
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

const roomColumns = `id, room_code, host_id, guest_id, game_status,
	current_question_id, current_question_index, question_start_time,
	host_answer, guest_answer, host_score, guest_score, winner_id,
	settings, version, created_at, updated_at`

type CreateRoomRequest struct {
	ID       uuid.UUID           `json:"id"`
	RoomCode string              `json:"room_code"`
	HostID   uuid.UUID           `json:"host_id"`
	Settings models.RoomSettings `json:"settings"`
}

// errCodeTaken signals a room_code unique violation so the app layer can
// retry with a fresh code.
var errCodeTaken = errors.New("room code already taken")

func (r *Repository) CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.Room, error) {
	settingsBytes, err := json.Marshal(req.Settings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal room settings: %w", err)
	}

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO rooms (id, room_code, host_id, game_status, current_question_index,
			host_score, guest_score, settings, version, created_at, updated_at)
		VALUES ($1, $2, $3, 'waiting', -1, 0, 0, $4, 1, now(), now())
		RETURNING `+roomColumns,
		req.ID, req.RoomCode, req.HostID, settingsBytes)

	room, err := scanRoom(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, errCodeTaken
		}
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	return room, nil
}

func (r *Repository) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id)
	room, err := scanRoom(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return room, nil
}

func (r *Repository) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE room_code = $1`, code)
	room, err := scanRoom(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get room by code: %w", err)
	}
	return room, nil
}

// ClaimGuestSlot atomically seats guestID in the room identified by code.
// The guest_id IS NULL condition guarantees exactly one concurrent join wins.
func (r *Repository) ClaimGuestSlot(ctx context.Context, code string, guestID uuid.UUID) (*models.Room, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE rooms
		SET guest_id = $1, version = version + 1, updated_at = now()
		WHERE room_code = $2 AND game_status = 'waiting' AND guest_id IS NULL
		RETURNING `+roomColumns,
		guestID, code)

	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStaleWrite
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim guest slot: %w", err)
	}
	return room, nil
}

// SubmitAnswer writes the caller's own answer field, and only that field.
// Preconditions: the room is playing the expected question and the caller's
// field is still null, so duplicate network retries are rejected server-side.
func (r *Repository) SubmitAnswer(ctx context.Context, roomID, userID uuid.UUID, questionIndex, answer int) (*models.Room, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE rooms
		SET host_answer  = CASE WHEN host_id  = $2 THEN $4 ELSE host_answer  END,
		    guest_answer = CASE WHEN guest_id = $2 THEN $4 ELSE guest_answer END,
		    version = version + 1, updated_at = now()
		WHERE id = $1
		  AND game_status = 'playing'
		  AND current_question_index = $3
		  AND ((host_id = $2 AND host_answer IS NULL)
		    OR (guest_id = $2 AND guest_answer IS NULL))
		RETURNING `+roomColumns,
		roomID, userID, questionIndex, answer)

	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStaleWrite
	}
	if err != nil {
		return nil, fmt.Errorf("failed to submit answer: %w", err)
	}
	return room, nil
}

type StartQuestionRequest struct {
	Index      int    `json:"index"`
	QuestionID string `json:"question_id"`
}

// StartQuestion assigns the next question and moves the room (back) into
// playing. Host-only: the host_id precondition makes a forged guest write a
// no-op at the storage layer, not just at the client. The first question
// starts from waiting (once a guest is seated); later ones from
// question_answered at the preceding index.
func (r *Repository) StartQuestion(ctx context.Context, roomID, hostID uuid.UUID, req StartQuestionRequest) (*models.Room, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE rooms
		SET game_status = 'playing',
		    current_question_id = $4,
		    current_question_index = $3,
		    question_start_time = now(),
		    host_answer = NULL, guest_answer = NULL,
		    version = version + 1, updated_at = now()
		WHERE id = $1 AND host_id = $2
		  AND ((game_status = 'waiting' AND $3 = 0 AND guest_id IS NOT NULL)
		    OR (game_status = 'question_answered' AND current_question_index = $3 - 1))
		RETURNING `+roomColumns,
		roomID, hostID, req.Index, req.QuestionID)

	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStaleWrite
	}
	if err != nil {
		return nil, fmt.Errorf("failed to start question: %w", err)
	}
	return room, nil
}

// MarkQuestionAnswered applies the host's scoring step for one question. The
// playing -> question_answered CAS fires at most once per question, so a
// duplicate feed delivery can never double-award points.
func (r *Repository) MarkQuestionAnswered(ctx context.Context, roomID, hostID uuid.UUID, questionIndex, hostDelta, guestDelta int) (*models.Room, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE rooms
		SET game_status = 'question_answered',
		    host_score = host_score + $4,
		    guest_score = guest_score + $5,
		    version = version + 1, updated_at = now()
		WHERE id = $1 AND host_id = $2
		  AND game_status = 'playing'
		  AND current_question_index = $3
		  AND host_answer IS NOT NULL AND guest_answer IS NOT NULL
		RETURNING `+roomColumns,
		roomID, hostID, questionIndex, hostDelta, guestDelta)

	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStaleWrite
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark question answered: %w", err)
	}
	return room, nil
}

// FinishGame terminates the match. winnerID nil records a draw.
func (r *Repository) FinishGame(ctx context.Context, roomID, hostID uuid.UUID, winnerID *uuid.UUID) (*models.Room, error) {
	winner := sqlutil.ToNullUUID(winnerID)

	row := r.db.QueryRowContext(ctx, `
		UPDATE rooms
		SET game_status = 'finished', winner_id = $3,
		    version = version + 1, updated_at = now()
		WHERE id = $1 AND host_id = $2 AND game_status = 'question_answered'
		RETURNING `+roomColumns,
		roomID, hostID, winner)

	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStaleWrite
	}
	if err != nil {
		return nil, fmt.Errorf("failed to finish game: %w", err)
	}
	return room, nil
}

// ActiveRooms lists every room that has not reached finished, oldest first.
func (r *Repository) ActiveRooms(ctx context.Context) ([]models.Room, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE game_status <> 'finished' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rooms: %w", err)
	}
	defer rows.Close()

	var active []models.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan active room: %w", err)
		}
		active = append(active, *room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate active rooms: %w", err)
	}
	return active, nil
}

// ExpireStale force-finishes rooms with no row activity since cutoff. Expired
// rooms get no winner and no history records.
func (r *Repository) ExpireStale(ctx context.Context, cutoff time.Time) ([]models.Room, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE rooms
		SET game_status = 'finished', version = version + 1, updated_at = now()
		WHERE game_status <> 'finished' AND updated_at < $1
		RETURNING `+roomColumns,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to expire stale rooms: %w", err)
	}
	defer rows.Close()

	var expired []models.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expired room: %w", err)
		}
		expired = append(expired, *room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expired rooms: %w", err)
	}
	return expired, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (*models.Room, error) {
	var (
		room          models.Room
		guestID       uuid.NullUUID
		questionID    sql.NullString
		questionStart sql.NullTime
		hostAnswer    sql.NullInt32
		guestAnswer   sql.NullInt32
		winnerID      uuid.NullUUID
		settingsBytes []byte
	)

	err := row.Scan(
		&room.ID, &room.RoomCode, &room.HostID, &guestID, &room.GameStatus,
		&questionID, &room.CurrentQuestionIndex, &questionStart,
		&hostAnswer, &guestAnswer, &room.HostScore, &room.GuestScore, &winnerID,
		&settingsBytes, &room.Version, &room.CreatedAt, &room.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	room.GuestID = sqlutil.FromNullUUID(guestID)
	room.CurrentQuestionID = sqlutil.FromSqlStringPtr(questionID)
	room.QuestionStartTime = sqlutil.FromSqlTime(questionStart)
	room.HostAnswer = sqlutil.FromSqlInt32(hostAnswer)
	room.GuestAnswer = sqlutil.FromSqlInt32(guestAnswer)
	room.WinnerID = sqlutil.FromNullUUID(winnerID)
	if err := json.Unmarshal(settingsBytes, &room.Settings); err != nil {
		room.Settings = models.RoomSettings{}
	}

	return &room, nil
}
