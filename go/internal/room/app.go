package room

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/brainbolt/go/internal/events"
	"github.com/mcdev12/brainbolt/go/internal/models"
	"github.com/mcdev12/brainbolt/go/internal/outbox"
	"github.com/mcdev12/brainbolt/go/internal/sqlutil"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultQuestionDurationSec is the per-question countdown in multiplayer.
	DefaultQuestionDurationSec = 15

	// DefaultTotalQuestions is the deck length for a match.
	DefaultTotalQuestions = 24

	// createRetries bounds room-code collision retries. At 36^6 codes the
	// retry budget is effectively never exhausted.
	createRetries = 5
)

// App handles room business logic. Every mutation runs the Room Store write
// and its outbox event in one transaction, so the change feed reflects
// exactly the committed row history.
type App struct {
	db     *sql.DB
	repo   *Repository
	outbox *outbox.Repository
}

// NewApp creates a new room App.
func NewApp(db *sql.DB) *App {
	return &App{
		db:     db,
		repo:   NewRepository(db),
		outbox: outbox.NewRepository(db),
	}
}

// CreateRoom opens a new room for hostID. Zero-valued settings fields get
// defaults; the shuffle seed is drawn here so both clients later derive the
// identical question order from the room row.
func (a *App) CreateRoom(ctx context.Context, hostID uuid.UUID, settings models.RoomSettings) (*models.Room, error) {
	if settings.QuestionDurationSec <= 0 {
		settings.QuestionDurationSec = DefaultQuestionDurationSec
	}
	if settings.TotalQuestions <= 0 {
		settings.TotalQuestions = DefaultTotalQuestions
	}
	if settings.ShuffleSeed == 0 {
		settings.ShuffleSeed = rand.Int63()
	}

	for attempt := 0; attempt < createRetries; attempt++ {
		code := GenerateRoomCode()

		var created *models.Room
		err := sqlutil.Run(ctx, a.db, func(tx *sql.Tx) error {
			room, err := a.repo.WithTx(tx).CreateRoom(ctx, CreateRoomRequest{
				ID:       uuid.New(),
				RoomCode: code,
				HostID:   hostID,
				Settings: settings,
			})
			if err != nil {
				return err
			}
			created = room
			return a.emit(ctx, tx, room.ID, events.TypeRoomCreated, events.RoomCreatedPayload{Room: *room})
		})
		if errors.Is(err, errCodeTaken) {
			log.Warn().Str("room_code", code).Msg("room code collision, retrying")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create room: %w", err)
		}

		log.Info().
			Str("room_id", created.ID.String()).
			Str("room_code", created.RoomCode).
			Str("host_id", hostID.String()).
			Msg("room created")
		return created, nil
	}

	return nil, ErrCodeExhausted
}

// JoinRoom seats guestID in the room identified by code. Exactly one of any
// number of concurrent joins wins the guest slot; the rest get an
// UnavailableError with a distinguishing reason.
func (a *App) JoinRoom(ctx context.Context, code string, guestID uuid.UUID) (*models.Room, error) {
	code = NormalizeRoomCode(code)
	if !ValidRoomCode(code) {
		return nil, &UnavailableError{Code: code, Reason: ReasonNotFound}
	}

	var joined *models.Room
	err := sqlutil.Run(ctx, a.db, func(tx *sql.Tx) error {
		room, err := a.repo.WithTx(tx).ClaimGuestSlot(ctx, code, guestID)
		if err != nil {
			return err
		}
		joined = room
		return a.emit(ctx, tx, room.ID, events.TypePlayerJoined, events.PlayerJoinedPayload{
			Room:     *room,
			GuestID:  guestID.String(),
			JoinedAt: room.UpdatedAt,
		})
	})
	if errors.Is(err, ErrStaleWrite) {
		return nil, a.joinFailureReason(ctx, code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to join room: %w", err)
	}

	log.Info().
		Str("room_id", joined.ID.String()).
		Str("guest_id", guestID.String()).
		Msg("guest joined room")
	return joined, nil
}

// joinFailureReason reads the room after a missed claim to distinguish why it
// was unavailable. The follow-up read races with further writes, so it can
// only ever misreport one unavailable reason as another, never availability.
func (a *App) joinFailureReason(ctx context.Context, code string) error {
	room, err := a.repo.GetRoomByCode(ctx, code)
	if err != nil {
		return &UnavailableError{Code: code, Reason: ReasonNotFound}
	}
	if room.GameStatus != models.GameStatusWaiting {
		return &UnavailableError{Code: code, Reason: ReasonAlreadyStarted}
	}
	return &UnavailableError{Code: code, Reason: ReasonFull}
}

// Room retrieves a room by ID.
func (a *App) Room(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	return a.repo.GetRoom(ctx, id)
}

// RoomByCode retrieves a room by its share code.
func (a *App) RoomByCode(ctx context.Context, code string) (*models.Room, error) {
	return a.repo.GetRoomByCode(ctx, NormalizeRoomCode(code))
}

// ActiveRooms lists rooms that have not reached finished.
func (a *App) ActiveRooms(ctx context.Context) ([]models.Room, error) {
	return a.repo.ActiveRooms(ctx)
}

// SubmitAnswer records userID's answer for the given question. Duplicate
// submissions and stale question indexes surface as ErrStaleWrite.
func (a *App) SubmitAnswer(ctx context.Context, roomID, userID uuid.UUID, questionIndex, answer int) (*models.Room, error) {
	if answer != models.AnswerNone && (answer < 0 || answer > 3) {
		return nil, fmt.Errorf("answer index %d out of range", answer)
	}

	var updated *models.Room
	err := sqlutil.Run(ctx, a.db, func(tx *sql.Tx) error {
		room, err := a.repo.WithTx(tx).SubmitAnswer(ctx, roomID, userID, questionIndex, answer)
		if err != nil {
			return err
		}
		updated = room
		return a.emit(ctx, tx, room.ID, events.TypeAnswerSubmitted, events.AnswerSubmittedPayload{
			Room:          *room,
			Role:          room.RoleOf(userID),
			QuestionIndex: questionIndex,
			SubmittedAt:   room.UpdatedAt,
		})
	})
	if err != nil {
		if errors.Is(err, ErrStaleWrite) {
			return nil, ErrStaleWrite
		}
		return nil, fmt.Errorf("failed to submit answer: %w", err)
	}
	return updated, nil
}

// StartQuestion is the host's forward transition into the next question
// (index 0 starts the game).
func (a *App) StartQuestion(ctx context.Context, roomID, hostID uuid.UUID, questionIndex int, questionID string) (*models.Room, error) {
	var updated *models.Room
	err := sqlutil.Run(ctx, a.db, func(tx *sql.Tx) error {
		room, err := a.repo.WithTx(tx).StartQuestion(ctx, roomID, hostID, StartQuestionRequest{
			Index:      questionIndex,
			QuestionID: questionID,
		})
		if err != nil {
			return err
		}
		updated = room

		if questionIndex == 0 {
			return a.emit(ctx, tx, room.ID, events.TypeGameStarted, events.GameStartedPayload{
				Room:           *room,
				TotalQuestions: room.Settings.TotalQuestions,
				StartedAt:      *room.QuestionStartTime,
			})
		}
		return a.emit(ctx, tx, room.ID, events.TypeQuestionAdvanced, events.QuestionAdvancedPayload{
			Room:          *room,
			QuestionIndex: questionIndex,
			QuestionID:    questionID,
			StartedAt:     *room.QuestionStartTime,
		})
	})
	if err != nil {
		if errors.Is(err, ErrStaleWrite) {
			return nil, ErrStaleWrite
		}
		return nil, fmt.Errorf("failed to start question: %w", err)
	}
	return updated, nil
}

// MarkQuestionAnswered applies the host's scoring step once both answers are
// present.
func (a *App) MarkQuestionAnswered(ctx context.Context, roomID, hostID uuid.UUID, questionIndex, hostDelta, guestDelta int) (*models.Room, error) {
	var updated *models.Room
	err := sqlutil.Run(ctx, a.db, func(tx *sql.Tx) error {
		room, err := a.repo.WithTx(tx).MarkQuestionAnswered(ctx, roomID, hostID, questionIndex, hostDelta, guestDelta)
		if err != nil {
			return err
		}
		updated = room
		return a.emit(ctx, tx, room.ID, events.TypeQuestionScored, events.QuestionScoredPayload{
			Room:          *room,
			QuestionIndex: questionIndex,
			HostDelta:     hostDelta,
			GuestDelta:    guestDelta,
		})
	})
	if err != nil {
		if errors.Is(err, ErrStaleWrite) {
			return nil, ErrStaleWrite
		}
		return nil, fmt.Errorf("failed to mark question answered: %w", err)
	}
	return updated, nil
}

// FinishGame terminates the match and records the winner (nil for a draw).
func (a *App) FinishGame(ctx context.Context, roomID, hostID uuid.UUID, winnerID *uuid.UUID) (*models.Room, error) {
	var updated *models.Room
	err := sqlutil.Run(ctx, a.db, func(tx *sql.Tx) error {
		room, err := a.repo.WithTx(tx).FinishGame(ctx, roomID, hostID, winnerID)
		if err != nil {
			return err
		}
		updated = room

		var winner *string
		if room.WinnerID != nil {
			w := room.WinnerID.String()
			winner = &w
		}
		return a.emit(ctx, tx, room.ID, events.TypeGameFinished, events.GameFinishedPayload{
			Room:       *room,
			WinnerID:   winner,
			HostScore:  room.HostScore,
			GuestScore: room.GuestScore,
			FinishedAt: room.UpdatedAt,
		})
	})
	if err != nil {
		if errors.Is(err, ErrStaleWrite) {
			return nil, ErrStaleWrite
		}
		return nil, fmt.Errorf("failed to finish game: %w", err)
	}

	log.Info().
		Str("room_id", updated.ID.String()).
		Int("host_score", updated.HostScore).
		Int("guest_score", updated.GuestScore).
		Msg("game finished")
	return updated, nil
}

// ExpireStaleRooms force-finishes rooms idle since before cutoff and emits a
// RoomExpired event for each.
func (a *App) ExpireStaleRooms(ctx context.Context, cutoff time.Time) (int, error) {
	var count int
	err := sqlutil.Run(ctx, a.db, func(tx *sql.Tx) error {
		expired, err := a.repo.WithTx(tx).ExpireStale(ctx, cutoff)
		if err != nil {
			return err
		}
		count = len(expired)
		for _, room := range expired {
			if err := a.emit(ctx, tx, room.ID, events.TypeRoomExpired, events.RoomExpiredPayload{
				Room:      room,
				ExpiredAt: room.UpdatedAt,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale rooms: %w", err)
	}
	return count, nil
}

func (a *App) emit(ctx context.Context, tx *sql.Tx, roomID uuid.UUID, eventType string, payload any) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return a.outbox.WithTx(tx).Insert(ctx, roomID, eventType, payloadBytes)
}
