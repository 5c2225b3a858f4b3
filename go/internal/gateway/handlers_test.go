package gateway

import (
	"testing"

	"github.com/google/uuid"
	"github.com/mcdev12/brainbolt/go/internal/models"
)

func playingRoom(hostAnswer, guestAnswer *int) *models.Room {
	guest := uuid.New()
	return &models.Room{
		ID:          uuid.New(),
		HostID:      uuid.New(),
		GuestID:     &guest,
		GameStatus:  models.GameStatusPlaying,
		HostAnswer:  hostAnswer,
		GuestAnswer: guestAnswer,
	}
}

func intPtr(v int) *int { return &v }

func TestRedactOpponentAnswerWhilePlaying(t *testing.T) {
	r := playingRoom(intPtr(2), intPtr(3))

	hostView := redactOpponentAnswer(r, models.RoleHost)
	if hostView.HostAnswer == nil || *hostView.HostAnswer != 2 {
		t.Fatalf("host lost own answer: %v", hostView.HostAnswer)
	}
	if hostView.GuestAnswer != nil {
		t.Fatalf("host can see guest answer %d before the reveal", *hostView.GuestAnswer)
	}

	guestView := redactOpponentAnswer(r, models.RoleGuest)
	if guestView.HostAnswer != nil {
		t.Fatalf("guest can see host answer %d before the reveal", *guestView.HostAnswer)
	}
	if guestView.GuestAnswer == nil || *guestView.GuestAnswer != 3 {
		t.Fatalf("guest lost own answer: %v", guestView.GuestAnswer)
	}

	// The original row is untouched for backend consumers.
	if r.HostAnswer == nil || r.GuestAnswer == nil {
		t.Fatal("redaction mutated the source row")
	}
}

func TestRedactOpponentAnswerRevealsAfterScoring(t *testing.T) {
	r := playingRoom(intPtr(1), intPtr(0))
	r.GameStatus = models.GameStatusQuestionAnswered

	view := redactOpponentAnswer(r, models.RoleGuest)
	if view.HostAnswer == nil || view.GuestAnswer == nil {
		t.Fatal("scored answers must be visible to both seats")
	}
}
