package models

import (
	"time"

	"github.com/google/uuid"
)

// GameResult is a player's outcome in a finished match.
type GameResult string

const (
	ResultWin  GameResult = "win"
	ResultLoss GameResult = "loss"
	ResultDraw GameResult = "draw"
)

// AnswerRecord is one entry of a player's per-question breakdown, kept as an
// optional JSONB blob on the history row.
type AnswerRecord struct {
	QuestionID string `json:"question_id"`
	Answer     int    `json:"answer"`
	Correct    bool   `json:"correct"`
}

// GameHistory is one player's record of one finished match. Each player
// writes exactly one row per room.
type GameHistory struct {
	ID                uuid.UUID      `json:"id"`
	UserID            uuid.UUID      `json:"user_id"`
	RoomID            uuid.UUID      `json:"room_id"`
	GameMode          string         `json:"game_mode"`
	FinalScore        int            `json:"final_score"`
	QuestionsAnswered int            `json:"questions_answered"`
	CorrectAnswers    int            `json:"correct_answers"`
	MaxStreak         int            `json:"max_streak"`
	TimeSpentSec      int            `json:"time_spent_sec"`
	GameResult        GameResult     `json:"game_result"`
	OpponentID        *uuid.UUID     `json:"opponent_id,omitempty"`
	Breakdown         []AnswerRecord `json:"breakdown,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}
