package events

import (
	"encoding/json"
	"time"

	"github.com/mcdev12/brainbolt/go/internal/models"
)

// Event type names shared by the outbox, the change feed, and the gateway.
const (
	TypeRoomCreated      = "RoomCreated"
	TypePlayerJoined     = "PlayerJoined"
	TypeGameStarted      = "GameStarted"
	TypeAnswerSubmitted  = "AnswerSubmitted"
	TypeQuestionScored   = "QuestionScored"
	TypeQuestionAdvanced = "QuestionAdvanced"
	TypeGameFinished     = "GameFinished"
	TypeRoomExpired      = "RoomExpired"
)

// Envelope is the wire frame published to the change feed. Payload carries
// the event-specific struct below; every payload embeds the full updated room
// row so subscribers reconcile from authoritative state, never from deltas.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	RoomID    string          `json:"roomId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// RoomCreatedPayload is the payload for a RoomCreated event.
type RoomCreatedPayload struct {
	Room models.Room `json:"room"`
}

// PlayerJoinedPayload is the payload for a PlayerJoined event.
type PlayerJoinedPayload struct {
	Room     models.Room `json:"room"`
	GuestID  string      `json:"guest_id"`
	JoinedAt time.Time   `json:"joined_at"`
}

// GameStartedPayload is the payload for a GameStarted event.
type GameStartedPayload struct {
	Room           models.Room `json:"room"`
	TotalQuestions int         `json:"total_questions"`
	StartedAt      time.Time   `json:"started_at"`
}

// AnswerSubmittedPayload is the payload for an AnswerSubmitted event. The
// answer value is not duplicated next to the room row; the row itself carries
// both answers for backend consumers, and the gateway redacts them from the
// client broadcast until the scoring reveal.
type AnswerSubmittedPayload struct {
	Room          models.Room       `json:"room"`
	Role          models.PlayerRole `json:"role"`
	QuestionIndex int               `json:"question_index"`
	SubmittedAt   time.Time         `json:"submitted_at"`
}

// QuestionScoredPayload is the payload for a QuestionScored event.
type QuestionScoredPayload struct {
	Room          models.Room `json:"room"`
	QuestionIndex int         `json:"question_index"`
	HostDelta     int         `json:"host_delta"`
	GuestDelta    int         `json:"guest_delta"`
}

// QuestionAdvancedPayload is the payload for a QuestionAdvanced event.
type QuestionAdvancedPayload struct {
	Room          models.Room `json:"room"`
	QuestionIndex int         `json:"question_index"`
	QuestionID    string      `json:"question_id"`
	StartedAt     time.Time   `json:"started_at"`
}

// GameFinishedPayload is the payload for a GameFinished event.
type GameFinishedPayload struct {
	Room       models.Room `json:"room"`
	WinnerID   *string     `json:"winner_id,omitempty"`
	HostScore  int         `json:"host_score"`
	GuestScore int         `json:"guest_score"`
	FinishedAt time.Time   `json:"finished_at"`
}

// RoomExpiredPayload is the payload for a RoomExpired event.
type RoomExpiredPayload struct {
	Room      models.Room `json:"room"`
	ExpiredAt time.Time   `json:"expired_at"`
}

// RoomFromPayload extracts the embedded room row from any event payload.
// Every payload type embeds the room under the "room" key; unknown event
// types still reconcile as long as they follow that contract.
func RoomFromPayload(payload json.RawMessage) (*models.Room, error) {
	var wrapper struct {
		Room models.Room `json:"room"`
	}
	if err := json.Unmarshal(payload, &wrapper); err != nil {
		return nil, err
	}
	return &wrapper.Room, nil
}
