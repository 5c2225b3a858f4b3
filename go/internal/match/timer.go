package match

import (
	"time"

	"github.com/mcdev12/brainbolt/go/internal/models"
)

// Countdown is the question timer derived from the persisted room row. The
// deadline is question_start_time plus the configured duration, so every
// participant computes the same remaining time from the same row regardless
// of when it joined or reconnected. Nothing here ever decrements locally.
type Countdown struct {
	Deadline time.Time
}

// CountdownFor derives the countdown for the room's current question. ok is
// false when no question is running.
func CountdownFor(room *models.Room) (Countdown, bool) {
	if room == nil || room.GameStatus != models.GameStatusPlaying || room.QuestionStartTime == nil {
		return Countdown{}, false
	}
	duration := time.Duration(room.Settings.QuestionDurationSec) * time.Second
	return Countdown{Deadline: room.QuestionStartTime.Add(duration)}, true
}

// Remaining returns the time left on the countdown, clamped at zero.
func (c Countdown) Remaining(now time.Time) time.Duration {
	remaining := c.Deadline.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Expired reports whether the countdown has run out.
func (c Countdown) Expired(now time.Time) bool {
	return !now.Before(c.Deadline)
}
