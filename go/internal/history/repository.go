package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/brainbolt/go/internal/models"
	"github.com/mcdev12/brainbolt/go/internal/sqlutil"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"
)

// DBTX is the database/sql surface the repository needs.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository persists per-player match records.
type Repository struct {
	db DBTX
}

func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

const historyColumns = `id, user_id, room_id, game_mode, final_score,
	questions_answered, correct_answers, max_streak, time_spent_sec,
	game_result, opponent_id, breakdown, created_at`

// Insert writes one history row. The UNIQUE (user_id, room_id) constraint
// plus DO NOTHING makes recording idempotent: replays after a crash or a
// duplicated finished event insert nothing.
func (r *Repository) Insert(ctx context.Context, record models.GameHistory) error {
	breakdown, err := marshalBreakdown(record.Breakdown)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO game_history (id, user_id, room_id, game_mode, final_score,
			questions_answered, correct_answers, max_streak, time_spent_sec,
			game_result, opponent_id, breakdown, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
		ON CONFLICT (user_id, room_id) DO NOTHING`,
		record.ID, record.UserID, record.RoomID, record.GameMode, record.FinalScore,
		record.QuestionsAnswered, record.CorrectAnswers, record.MaxStreak, record.TimeSpentSec,
		record.GameResult, sqlutil.ToNullUUID(record.OpponentID), breakdown)
	if err != nil {
		return fmt.Errorf("failed to insert game history: %w", err)
	}

	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		log.Debug().
			Str("user_id", record.UserID.String()).
			Str("room_id", record.RoomID.String()).
			Msg("game history already recorded")
	}
	return nil
}

// ListByUser returns a user's match records, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int32) ([]models.GameHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+historyColumns+`
		FROM game_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list game history: %w", err)
	}
	defer rows.Close()

	var records []models.GameHistory
	for rows.Next() {
		var (
			record     models.GameHistory
			opponentID uuid.NullUUID
			breakdown  pqtype.NullRawMessage
		)
		if err := rows.Scan(
			&record.ID, &record.UserID, &record.RoomID, &record.GameMode, &record.FinalScore,
			&record.QuestionsAnswered, &record.CorrectAnswers, &record.MaxStreak, &record.TimeSpentSec,
			&record.GameResult, &opponentID, &breakdown, &record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan game history: %w", err)
		}
		record.OpponentID = sqlutil.FromNullUUID(opponentID)
		if breakdown.Valid {
			if err := json.Unmarshal(breakdown.RawMessage, &record.Breakdown); err != nil {
				return nil, fmt.Errorf("failed to parse breakdown: %w", err)
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate game history: %w", err)
	}
	return records, nil
}

// GetForRoom returns a user's record for one room, or sql.ErrNoRows.
func (r *Repository) GetForRoom(ctx context.Context, userID, roomID uuid.UUID) (*models.GameHistory, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+historyColumns+`
		FROM game_history
		WHERE user_id = $1 AND room_id = $2`, userID, roomID)

	var (
		record     models.GameHistory
		opponentID uuid.NullUUID
		breakdown  pqtype.NullRawMessage
	)
	if err := row.Scan(
		&record.ID, &record.UserID, &record.RoomID, &record.GameMode, &record.FinalScore,
		&record.QuestionsAnswered, &record.CorrectAnswers, &record.MaxStreak, &record.TimeSpentSec,
		&record.GameResult, &opponentID, &breakdown, &record.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to get game history: %w", err)
	}
	record.OpponentID = sqlutil.FromNullUUID(opponentID)
	if breakdown.Valid {
		if err := json.Unmarshal(breakdown.RawMessage, &record.Breakdown); err != nil {
			return nil, fmt.Errorf("failed to parse breakdown: %w", err)
		}
	}
	return &record, nil
}

// marshalBreakdown maps an empty breakdown to SQL NULL rather than an empty
// JSON array.
func marshalBreakdown(breakdown []models.AnswerRecord) (pqtype.NullRawMessage, error) {
	if len(breakdown) == 0 {
		return pqtype.NullRawMessage{}, nil
	}
	data, err := json.Marshal(breakdown)
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("failed to marshal breakdown: %w", err)
	}
	return pqtype.NullRawMessage{RawMessage: data, Valid: true}, nil
}
