package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/brainbolt/go/internal/events"
	"github.com/mcdev12/brainbolt/go/internal/models"
)

func answerPayload(t *testing.T, status models.GameStatus) json.RawMessage {
	t.Helper()
	answer := 2
	guest := uuid.New()
	payload, err := json.Marshal(events.AnswerSubmittedPayload{
		Room: models.Room{
			ID:         uuid.New(),
			HostID:     uuid.New(),
			GuestID:    &guest,
			GameStatus: status,
			HostAnswer: &answer,
		},
		Role:          models.RoleHost,
		QuestionIndex: 0,
		SubmittedAt:   time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return payload
}

func TestRedactPayloadHidesOpenAnswers(t *testing.T) {
	redacted := redactPayload(answerPayload(t, models.GameStatusPlaying))

	room, err := events.RoomFromPayload(redacted)
	if err != nil {
		t.Fatal(err)
	}
	if room.HostAnswer != nil || room.GuestAnswer != nil {
		t.Fatalf("broadcast leaked answers while playing: host=%v guest=%v", room.HostAnswer, room.GuestAnswer)
	}

	// The rest of the payload survives the rewrite.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(redacted, &fields); err != nil {
		t.Fatal(err)
	}
	if _, ok := fields["question_index"]; !ok {
		t.Fatal("redaction dropped sibling payload fields")
	}
}

func TestRedactPayloadLeavesScoredStatesAlone(t *testing.T) {
	payload := answerPayload(t, models.GameStatusQuestionAnswered)

	room, err := events.RoomFromPayload(redactPayload(payload))
	if err != nil {
		t.Fatal(err)
	}
	if room.HostAnswer == nil {
		t.Fatal("scored answer must reach clients")
	}
}
