package match

import (
	"testing"
	"time"

	"github.com/mcdev12/brainbolt/go/internal/models"
)

func playingRoom(start time.Time, durationSec int) *models.Room {
	return &models.Room{
		GameStatus:        models.GameStatusPlaying,
		QuestionStartTime: &start,
		Settings:          models.RoomSettings{QuestionDurationSec: durationSec},
	}
}

func TestCountdownForNonPlayingStates(t *testing.T) {
	if _, ok := CountdownFor(nil); ok {
		t.Fatal("nil room produced a countdown")
	}
	if _, ok := CountdownFor(&models.Room{GameStatus: models.GameStatusWaiting}); ok {
		t.Fatal("waiting room produced a countdown")
	}
	if _, ok := CountdownFor(&models.Room{GameStatus: models.GameStatusPlaying}); ok {
		t.Fatal("playing room with no start time produced a countdown")
	}
}

func TestCountdownRemaining(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	countdown, ok := CountdownFor(playingRoom(start, 15))
	if !ok {
		t.Fatal("expected a countdown")
	}

	if got := countdown.Remaining(start); got != 15*time.Second {
		t.Fatalf("remaining at start = %v, want 15s", got)
	}
	if got := countdown.Remaining(start.Add(9 * time.Second)); got != 6*time.Second {
		t.Fatalf("remaining after 9s = %v, want 6s", got)
	}
	if got := countdown.Remaining(start.Add(20 * time.Second)); got != 0 {
		t.Fatalf("remaining past deadline = %v, want 0", got)
	}
}

func TestCountdownExpired(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	countdown, _ := CountdownFor(playingRoom(start, 10))

	if countdown.Expired(start.Add(9 * time.Second)) {
		t.Fatal("expired before the deadline")
	}
	if !countdown.Expired(start.Add(10 * time.Second)) {
		t.Fatal("not expired at the deadline")
	}
}

// Two observers of the same room row agree on the deadline no matter when
// they computed it, since the countdown is derived, never decremented.
func TestCountdownConvergesAcrossObservers(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	room := playingRoom(start, 15)

	early, _ := CountdownFor(room)
	late, _ := CountdownFor(room)

	now := start.Add(7 * time.Second)
	if early.Remaining(now) != late.Remaining(now) {
		t.Fatalf("observers disagree: %v vs %v", early.Remaining(now), late.Remaining(now))
	}
	if !early.Deadline.Equal(late.Deadline) {
		t.Fatalf("deadlines diverged: %v vs %v", early.Deadline, late.Deadline)
	}
}
