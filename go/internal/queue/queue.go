package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/brainbolt/go/internal/models"
	"github.com/mcdev12/brainbolt/go/internal/room"
	"github.com/rs/zerolog/log"
)

// Submitter is the slice of the Room Store the queue replays against.
type Submitter interface {
	SubmitAnswer(ctx context.Context, roomID, userID uuid.UUID, questionIndex, answer int) (*models.Room, error)
}

// Queue buffers answer submissions that could not reach the backend and
// replays them on reconnect. Only answers are queued: timer and advancement
// writes belong to whichever host copy is online, so replaying them late
// would fight the authoritative row.
type Queue struct {
	store Store
	clock clockwork.Clock
}

func New(store Store, clock clockwork.Clock) *Queue {
	return &Queue{store: store, clock: clock}
}

// Enqueue records a failed submission for later replay.
func (q *Queue) Enqueue(roomID, userID uuid.UUID, questionIndex, answer int) error {
	action := Action{
		ID:            uuid.New(),
		RoomID:        roomID,
		UserID:        userID,
		QuestionIndex: questionIndex,
		Answer:        answer,
		QueuedAt:      q.clock.Now(),
	}
	if err := q.store.Append(action); err != nil {
		return fmt.Errorf("failed to enqueue action: %w", err)
	}

	log.Warn().
		Str("room_id", roomID.String()).
		Int("question_index", questionIndex).
		Msg("queued answer for replay")
	return nil
}

// PendingCount reports how many actions await replay for the room.
func (q *Queue) PendingCount(roomID uuid.UUID) (int, error) {
	pending, err := q.store.Pending(roomID)
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

// Drain replays queued actions in order. Actions the room has moved past are
// dropped rather than applied: the server rejects them with a stale write and
// an answer for question 3 must never land on question 5. A transport failure
// stops the drain and keeps the remainder queued.
func (q *Queue) Drain(ctx context.Context, store Submitter, roomID uuid.UUID) (applied, dropped int, err error) {
	pending, err := q.store.Pending(roomID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load pending actions: %w", err)
	}

	for _, action := range pending {
		_, submitErr := store.SubmitAnswer(ctx, action.RoomID, action.UserID, action.QuestionIndex, action.Answer)
		switch {
		case submitErr == nil:
			applied++
		case errors.Is(submitErr, room.ErrStaleWrite):
			dropped++
			log.Info().
				Str("room_id", roomID.String()).
				Int("question_index", action.QuestionIndex).
				Msg("dropped stale queued answer")
		default:
			return applied, dropped, fmt.Errorf("failed to replay queued answer: %w", submitErr)
		}

		if err := q.store.Remove(action.ID); err != nil {
			return applied, dropped, fmt.Errorf("failed to remove queued action: %w", err)
		}
	}
	return applied, dropped, nil
}
