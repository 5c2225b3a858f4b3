package models

import (
	"time"

	"github.com/google/uuid"
)

// GameStatus defines the lifecycle phase of a multiplayer room.
type GameStatus string

const (
	GameStatusWaiting          GameStatus = "waiting"
	GameStatusPlaying          GameStatus = "playing"
	GameStatusQuestionAnswered GameStatus = "question_answered"
	GameStatusFinished         GameStatus = "finished"
)

// Ordinal returns the forward ordering of a status within a single question
// cycle. Combined with CurrentQuestionIndex it gives a total order over room
// states, used to reject stale change-feed deliveries.
func (s GameStatus) Ordinal() int {
	switch s {
	case GameStatusWaiting:
		return 0
	case GameStatusPlaying:
		return 1
	case GameStatusQuestionAnswered:
		return 2
	case GameStatusFinished:
		return 3
	default:
		return -1
	}
}

// PlayerRole identifies which seat a user occupies in a room.
type PlayerRole string

const (
	RoleHost  PlayerRole = "host"
	RoleGuest PlayerRole = "guest"
)

// AnswerNone is the sentinel written to a player's answer field when the
// question timer expires before they answered. It is scored as incorrect.
const AnswerNone = -1

// RoomSettings holds JSONB configuration for a match, fixed at creation.
// ShuffleSeed lets both clients derive the identical question order without
// shipping the deck through the room row.
type RoomSettings struct {
	QuestionDurationSec int      `json:"question_duration_sec"`
	TotalQuestions      int      `json:"total_questions"`
	ShuffleSeed         int64    `json:"shuffle_seed"`
	Categories          []string `json:"categories,omitempty"`
}

// Room is the single source of truth for one multiplayer match.
type Room struct {
	ID                   uuid.UUID    `json:"id"`
	RoomCode             string       `json:"room_code"`
	HostID               uuid.UUID    `json:"host_id"`
	GuestID              *uuid.UUID   `json:"guest_id,omitempty"`
	GameStatus           GameStatus   `json:"game_status"`
	CurrentQuestionID    *string      `json:"current_question_id,omitempty"`
	CurrentQuestionIndex int          `json:"current_question_index"`
	QuestionStartTime    *time.Time   `json:"question_start_time,omitempty"`
	HostAnswer           *int         `json:"host_answer,omitempty"`
	GuestAnswer          *int         `json:"guest_answer,omitempty"`
	HostScore            int          `json:"host_score"`
	GuestScore           int          `json:"guest_score"`
	WinnerID             *uuid.UUID   `json:"winner_id,omitempty"`
	Settings             RoomSettings `json:"settings"`
	Version              int64        `json:"version"`
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

// RoleOf returns the role userID holds in the room, or "" if not a member.
func (r *Room) RoleOf(userID uuid.UUID) PlayerRole {
	if r.HostID == userID {
		return RoleHost
	}
	if r.GuestID != nil && *r.GuestID == userID {
		return RoleGuest
	}
	return ""
}

// AnswerOf returns the answer field belonging to role.
func (r *Room) AnswerOf(role PlayerRole) *int {
	if role == RoleHost {
		return r.HostAnswer
	}
	return r.GuestAnswer
}

// BothAnswered reports whether both players have an answer (or timeout
// sentinel) recorded for the current question.
func (r *Room) BothAnswered() bool {
	return r.HostAnswer != nil && r.GuestAnswer != nil
}

// NewerThan reports whether r represents a strictly later room state than
// other. The row version gives a per-room total order; the
// (question index, status ordinal) pair is the fallback for stores that do
// not maintain versions.
func (r *Room) NewerThan(other *Room) bool {
	if other == nil {
		return true
	}
	if r.Version != 0 || other.Version != 0 {
		return r.Version > other.Version
	}
	if r.CurrentQuestionIndex != other.CurrentQuestionIndex {
		return r.CurrentQuestionIndex > other.CurrentQuestionIndex
	}
	return r.GameStatus.Ordinal() > other.GameStatus.Ordinal()
}
