package history

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/brainbolt/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Inserter persists one finished-game row.
type Inserter interface {
	Insert(ctx context.Context, record models.GameHistory) error
}

var _ Inserter = (*Repository)(nil)

// Recorder writes one player's history row when their match reaches the
// terminal state. Its Record method matches the engine's OnFinished callback
// shape, so wiring is a single assignment:
//
//	eng.OnFinished = history.NewRecorder(repo, userID, eng.Breakdown).Record
type Recorder struct {
	sink      Inserter
	userID    uuid.UUID
	breakdown func() []models.AnswerRecord
	timeout   time.Duration
}

func NewRecorder(sink Inserter, userID uuid.UUID, breakdown func() []models.AnswerRecord) *Recorder {
	return &Recorder{
		sink:      sink,
		userID:    userID,
		breakdown: breakdown,
		timeout:   5 * time.Second,
	}
}

// Record builds and persists the row for the terminal room state. Failures
// are logged, not returned: the match is already over and the sink's unique
// constraint lets a later retry re-run this safely.
func (r *Recorder) Record(room models.Room) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	record := BuildRecord(room, r.userID, r.breakdown())
	if err := r.sink.Insert(ctx, record); err != nil {
		log.Error().
			Err(err).
			Str("room_id", room.ID.String()).
			Str("user_id", r.userID.String()).
			Msg("failed to record game history")
		return
	}

	log.Info().
		Str("room_id", room.ID.String()).
		Str("user_id", r.userID.String()).
		Str("result", string(record.GameResult)).
		Int("final_score", record.FinalScore).
		Msg("recorded game history")
}
