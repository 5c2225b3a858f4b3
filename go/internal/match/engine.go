package match

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/brainbolt/go/internal/models"
	"github.com/mcdev12/brainbolt/go/internal/queue"
	"github.com/mcdev12/brainbolt/go/internal/questions"
	"github.com/mcdev12/brainbolt/go/internal/room"
	"github.com/rs/zerolog/log"
)

// RoomStore is the slice of the room application layer the engine drives.
// All writes are compare-and-swap: a write whose precondition no longer holds
// returns room.ErrStaleWrite and must be treated as already done by someone
// else.
type RoomStore interface {
	Room(ctx context.Context, id uuid.UUID) (*models.Room, error)
	SubmitAnswer(ctx context.Context, roomID, userID uuid.UUID, questionIndex, answer int) (*models.Room, error)
	StartQuestion(ctx context.Context, roomID, hostID uuid.UUID, questionIndex int, questionID string) (*models.Room, error)
	MarkQuestionAnswered(ctx context.Context, roomID, hostID uuid.UUID, questionIndex, hostDelta, guestDelta int) (*models.Room, error)
	FinishGame(ctx context.Context, roomID, hostID uuid.UUID, winnerID *uuid.UUID) (*models.Room, error)
}

var _ RoomStore = (*room.App)(nil)

// ChangeFeed delivers committed room states to a subscriber. Delivery may
// duplicate or reorder; the engine sorts that out with models.Room.NewerThan.
type ChangeFeed interface {
	Subscribe(ctx context.Context, roomID uuid.UUID, deliver func(*models.Room)) (func(), error)
}

// ErrNotPlaying is returned for an answer submitted outside a running
// question.
var ErrNotPlaying = errors.New("room is not playing a question")

// EngineConfig tunes the engine loop.
type EngineConfig struct {
	TickInterval     time.Duration // Timer resolution
	RevealDelay      time.Duration // How long results stay on screen between questions
	PointsPerCorrect int
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		TickInterval:     100 * time.Millisecond,
		RevealDelay:      3 * time.Second,
		PointsPerCorrect: 100,
	}
}

// Engine runs one participant's side of a match. Both participants observe
// the room through the change feed and submit their own answers; only the
// host drives the shared state machine forward (starting questions, scoring,
// finishing). Every forward step is a CAS on the room row, so a duplicated
// delivery or a second host process can never double-apply a transition.
type Engine struct {
	store RoomStore
	feed  ChangeFeed
	queue *queue.Queue
	bank  *questions.Bank
	clock clockwork.Clock
	cfg   EngineConfig

	roomID uuid.UUID
	userID uuid.UUID

	// OnFinished is invoked exactly once when the room reaches finished,
	// with the terminal row. Optional.
	OnFinished func(models.Room)

	mu             sync.Mutex
	latest         *models.Room
	deck           []models.Question
	lastAutoSubmit int       // highest question index the timeout sentinel fired for
	revealDeadline time.Time // zero while no reveal pause is pending
	finished       bool
	queued         bool // an answer is waiting in the offline queue
	records        []models.AnswerRecord
	lastRecorded   int

	updates chan *models.Room
}

func NewEngine(store RoomStore, feed ChangeFeed, q *queue.Queue, bank *questions.Bank, clock clockwork.Clock, roomID, userID uuid.UUID, cfg EngineConfig) *Engine {
	return &Engine{
		store:          store,
		feed:           feed,
		queue:          q,
		bank:           bank,
		clock:          clock,
		cfg:            cfg,
		roomID:         roomID,
		userID:         userID,
		lastAutoSubmit: -1,
		lastRecorded:   -1,
		updates:        make(chan *models.Room, 32),
	}
}

// Run subscribes to the change feed and drives the engine until ctx is
// cancelled.
func (e *Engine) Run(ctx context.Context) error {
	unsubscribe, err := e.feed.Subscribe(ctx, e.roomID, func(r *models.Room) {
		select {
		case e.updates <- r:
		default:
			// The channel only backs up if the loop is wedged; the next
			// delivery or tick resyncs from the authoritative row anyway.
			log.Warn().Str("room_id", e.roomID.String()).Msg("dropping room update, engine backlogged")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to room feed: %w", err)
	}
	defer unsubscribe()

	current, err := e.store.Room(ctx, e.roomID)
	if err != nil {
		return fmt.Errorf("failed to load room: %w", err)
	}
	e.Apply(ctx, current)

	ticker := e.clock.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-e.updates:
			e.Apply(ctx, r)
		case <-ticker.Chan():
			e.Tick(ctx)
		}
	}
}

// Latest returns the most recent room state the engine has accepted.
func (e *Engine) Latest() *models.Room {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latest
}

// Remaining returns the time left on the current question, and false when no
// question is running.
func (e *Engine) Remaining() (time.Duration, bool) {
	countdown, ok := CountdownFor(e.Latest())
	if !ok {
		return 0, false
	}
	return countdown.Remaining(e.clock.Now()), true
}

// SubmitAnswer records this player's answer for the current question. When
// the backend is unreachable the answer goes to the offline queue and nil is
// returned; the queue replays it on the next successful sync.
func (e *Engine) SubmitAnswer(ctx context.Context, answer int) error {
	latest := e.Latest()
	if latest == nil || latest.GameStatus != models.GameStatusPlaying {
		return ErrNotPlaying
	}
	index := latest.CurrentQuestionIndex

	updated, err := e.store.SubmitAnswer(ctx, e.roomID, e.userID, index, answer)
	if err == nil {
		e.Apply(ctx, updated)
		return nil
	}
	if errors.Is(err, room.ErrStaleWrite) {
		return err
	}

	if e.queue != nil {
		if qerr := e.queue.Enqueue(e.roomID, e.userID, index, answer); qerr == nil {
			e.mu.Lock()
			e.queued = true
			e.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("failed to submit answer: %w", err)
}

// Apply accepts a committed room state. Stale deliveries, judged by row
// version, are discarded; newer ones update the local view and may trigger
// the host's next transition.
func (e *Engine) Apply(ctx context.Context, r *models.Room) {
	if r == nil {
		return
	}

	e.mu.Lock()
	if e.latest != nil && !r.NewerThan(e.latest) {
		e.mu.Unlock()
		return
	}
	e.latest = r
	if e.deck == nil {
		deck, err := e.bank.Deck(r.Settings)
		if err != nil {
			log.Error().Err(err).Str("room_id", r.ID.String()).Msg("failed to derive deck")
		}
		e.deck = deck
	}
	if r.GameStatus != models.GameStatusQuestionAnswered {
		e.revealDeadline = time.Time{}
	}
	drain := e.queued
	e.mu.Unlock()

	if drain && e.queue != nil {
		applied, dropped, err := e.queue.Drain(ctx, e.store, e.roomID)
		if err == nil {
			e.mu.Lock()
			e.queued = false
			e.mu.Unlock()
			if applied+dropped > 0 {
				log.Info().Int("applied", applied).Int("dropped", dropped).Msg("drained offline queue")
			}
		}
	}

	e.advance(ctx, r)
}

// Tick fires timer-driven behavior: the timeout sentinel when the countdown
// runs out, and the host's advance after the reveal pause.
func (e *Engine) Tick(ctx context.Context) {
	now := e.clock.Now()

	e.mu.Lock()
	latest := e.latest
	lastAuto := e.lastAutoSubmit
	reveal := e.revealDeadline
	e.mu.Unlock()

	if latest == nil {
		return
	}

	if countdown, ok := CountdownFor(latest); ok && countdown.Expired(now) {
		index := latest.CurrentQuestionIndex
		role := latest.RoleOf(e.userID)
		if role != "" && latest.AnswerOf(role) == nil && index > lastAuto {
			e.mu.Lock()
			e.lastAutoSubmit = index
			e.mu.Unlock()

			updated, err := e.store.SubmitAnswer(ctx, e.roomID, e.userID, index, models.AnswerNone)
			switch {
			case err == nil:
				log.Info().Int("question_index", index).Msg("question timed out, recorded no answer")
				e.Apply(ctx, updated)
			case errors.Is(err, room.ErrStaleWrite):
				// The real answer or another sentinel landed first.
			default:
				log.Error().Err(err).Int("question_index", index).Msg("failed to record timeout")
				if e.queue != nil && e.queue.Enqueue(e.roomID, e.userID, index, models.AnswerNone) == nil {
					e.mu.Lock()
					e.queued = true
					e.mu.Unlock()
				}
			}
		}
	}

	if latest.RoleOf(e.userID) == models.RoleHost &&
		latest.GameStatus == models.GameStatusQuestionAnswered &&
		!reveal.IsZero() && !now.Before(reveal) {
		e.mu.Lock()
		e.revealDeadline = time.Time{}
		e.mu.Unlock()
		e.advanceAfterReveal(ctx, latest)
	}
}

// Breakdown returns this player's per-question answer records so far.
func (e *Engine) Breakdown() []models.AnswerRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.AnswerRecord, len(e.records))
	copy(out, e.records)
	return out
}

// recordAnswer captures this player's result for a freshly scored question.
func (e *Engine) recordAnswer(r *models.Room) {
	role := r.RoleOf(e.userID)
	answer := r.AnswerOf(role)
	if role == "" || answer == nil || r.CurrentQuestionID == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if r.CurrentQuestionIndex <= e.lastRecorded {
		return
	}
	e.lastRecorded = r.CurrentQuestionIndex

	correct := false
	if idx := r.CurrentQuestionIndex; idx >= 0 && idx < len(e.deck) {
		correct = e.deck[idx].IsCorrect(*answer)
	}
	e.records = append(e.records, models.AnswerRecord{
		QuestionID: *r.CurrentQuestionID,
		Answer:     *answer,
		Correct:    correct,
	})
}

// advance runs the host's reaction to a freshly accepted state. Guests react
// to nothing here; their transitions all arrive through the feed.
func (e *Engine) advance(ctx context.Context, r *models.Room) {
	if r.GameStatus == models.GameStatusQuestionAnswered {
		e.recordAnswer(r)
	}

	if r.GameStatus == models.GameStatusFinished {
		e.mu.Lock()
		alreadyDone := e.finished
		e.finished = true
		e.mu.Unlock()
		if !alreadyDone && e.OnFinished != nil {
			e.OnFinished(*r)
		}
		return
	}

	if r.RoleOf(e.userID) != models.RoleHost {
		return
	}

	switch r.GameStatus {
	case models.GameStatusWaiting:
		if r.GuestID != nil {
			e.startQuestion(ctx, 0)
		}
	case models.GameStatusPlaying:
		if r.BothAnswered() {
			e.scoreQuestion(ctx, r)
		}
	case models.GameStatusQuestionAnswered:
		e.mu.Lock()
		if e.revealDeadline.IsZero() {
			e.revealDeadline = e.clock.Now().Add(e.cfg.RevealDelay)
		}
		e.mu.Unlock()
	}
}

func (e *Engine) startQuestion(ctx context.Context, index int) {
	e.mu.Lock()
	deck := e.deck
	e.mu.Unlock()
	if index >= len(deck) {
		return
	}

	updated, err := e.store.StartQuestion(ctx, e.roomID, e.userID, index, deck[index].ID)
	switch {
	case err == nil:
		log.Info().Int("question_index", index).Str("question_id", deck[index].ID).Msg("question started")
		e.Apply(ctx, updated)
	case errors.Is(err, room.ErrStaleWrite):
	default:
		log.Error().Err(err).Int("question_index", index).Msg("failed to start question")
	}
}

func (e *Engine) scoreQuestion(ctx context.Context, r *models.Room) {
	e.mu.Lock()
	deck := e.deck
	e.mu.Unlock()

	index := r.CurrentQuestionIndex
	if index < 0 || index >= len(deck) {
		return
	}
	question := deck[index]

	var hostDelta, guestDelta int
	if r.HostAnswer != nil && question.IsCorrect(*r.HostAnswer) {
		hostDelta = e.cfg.PointsPerCorrect
	}
	if r.GuestAnswer != nil && question.IsCorrect(*r.GuestAnswer) {
		guestDelta = e.cfg.PointsPerCorrect
	}

	updated, err := e.store.MarkQuestionAnswered(ctx, e.roomID, e.userID, index, hostDelta, guestDelta)
	switch {
	case err == nil:
		log.Info().
			Int("question_index", index).
			Int("host_delta", hostDelta).
			Int("guest_delta", guestDelta).
			Msg("question scored")
		e.Apply(ctx, updated)
	case errors.Is(err, room.ErrStaleWrite):
	default:
		log.Error().Err(err).Int("question_index", index).Msg("failed to score question")
	}
}

// advanceAfterReveal moves from the scored question to the next one, or ends
// the game when the deck or the configured match length is exhausted.
func (e *Engine) advanceAfterReveal(ctx context.Context, r *models.Room) {
	e.mu.Lock()
	deckLen := len(e.deck)
	e.mu.Unlock()

	next := r.CurrentQuestionIndex + 1
	if next < r.Settings.TotalQuestions && next < deckLen {
		e.startQuestion(ctx, next)
		return
	}

	winner := winnerOf(r)
	updated, err := e.store.FinishGame(ctx, e.roomID, e.userID, winner)
	switch {
	case err == nil:
		e.Apply(ctx, updated)
	case errors.Is(err, room.ErrStaleWrite):
	default:
		log.Error().Err(err).Msg("failed to finish game")
	}
}

// winnerOf returns the leading player's id, or nil for a draw.
func winnerOf(r *models.Room) *uuid.UUID {
	switch {
	case r.HostScore > r.GuestScore:
		host := r.HostID
		return &host
	case r.GuestScore > r.HostScore && r.GuestID != nil:
		guest := *r.GuestID
		return &guest
	default:
		return nil
	}
}
