package match

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/brainbolt/go/internal/models"
	"github.com/mcdev12/brainbolt/go/internal/room"
	"github.com/rs/zerolog/log"
)

// InMemory is a RoomStore and ChangeFeed backed by a map. It enforces the
// same compare-and-swap preconditions as the Postgres store and delivers
// every committed state synchronously to subscribers in commit order, which
// makes engine behavior fully deterministic under test. It also serves
// single-process deployments that run without Postgres and NATS.
type InMemory struct {
	clock clockwork.Clock

	mu         sync.Mutex
	rooms      map[uuid.UUID]*models.Room
	byCode     map[string]uuid.UUID
	subs       map[uuid.UUID][]func(*models.Room)
	pending    map[uuid.UUID][]pendingDelivery
	delivering map[uuid.UUID]bool
}

// pendingDelivery is one committed snapshot waiting its turn on the feed,
// paired with the subscribers registered at commit time.
type pendingDelivery struct {
	snapshot *models.Room
	subs     []func(*models.Room)
}

var (
	_ RoomStore  = (*InMemory)(nil)
	_ ChangeFeed = (*InMemory)(nil)
)

func NewInMemory(clock clockwork.Clock) *InMemory {
	return &InMemory{
		clock:      clock,
		rooms:      make(map[uuid.UUID]*models.Room),
		byCode:     make(map[string]uuid.UUID),
		subs:       make(map[uuid.UUID][]func(*models.Room)),
		pending:    make(map[uuid.UUID][]pendingDelivery),
		delivering: make(map[uuid.UUID]bool),
	}
}

// CreateRoom opens a room in waiting with no question assigned yet.
func (s *InMemory) CreateRoom(ctx context.Context, hostID uuid.UUID, settings models.RoomSettings) (*models.Room, error) {
	s.mu.Lock()
	now := s.clock.Now()
	r := &models.Room{
		ID:                   uuid.New(),
		RoomCode:             room.GenerateRoomCode(),
		HostID:               hostID,
		GameStatus:           models.GameStatusWaiting,
		CurrentQuestionIndex: -1,
		Settings:             settings,
		Version:              1,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	s.rooms[r.ID] = r
	s.byCode[r.RoomCode] = r.ID
	snapshot := s.commitLocked(r)
	s.mu.Unlock()

	s.flush(snapshot.ID)
	return snapshot, nil
}

// JoinRoom seats guestID; the first claim wins, like the SQL guest_id IS NULL
// condition.
func (s *InMemory) JoinRoom(ctx context.Context, code string, guestID uuid.UUID) (*models.Room, error) {
	s.mu.Lock()
	id, ok := s.byCode[room.NormalizeRoomCode(code)]
	if !ok {
		s.mu.Unlock()
		return nil, &room.UnavailableError{Code: code, Reason: room.ReasonNotFound}
	}
	r := s.rooms[id]
	if r.GameStatus != models.GameStatusWaiting {
		s.mu.Unlock()
		return nil, &room.UnavailableError{Code: code, Reason: room.ReasonAlreadyStarted}
	}
	if r.GuestID != nil {
		s.mu.Unlock()
		return nil, &room.UnavailableError{Code: code, Reason: room.ReasonFull}
	}
	guest := guestID
	r.GuestID = &guest
	s.bumpLocked(r)
	snapshot := s.commitLocked(r)
	s.mu.Unlock()

	s.flush(snapshot.ID)
	return snapshot, nil
}

// ActiveRooms lists rooms that have not finished, so a restarted runner can
// resume their arbiters.
func (s *InMemory) ActiveRooms(ctx context.Context) ([]models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Room
	for _, r := range s.rooms {
		if r.GameStatus != models.GameStatusFinished {
			out = append(out, *cloneRoom(r))
		}
	}
	return out, nil
}

func (s *InMemory) Room(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, room.ErrStaleWrite
	}
	return cloneRoom(r), nil
}

func (s *InMemory) SubmitAnswer(ctx context.Context, roomID, userID uuid.UUID, questionIndex, answer int) (*models.Room, error) {
	s.mu.Lock()
	r, ok := s.rooms[roomID]
	if !ok || r.GameStatus != models.GameStatusPlaying || r.CurrentQuestionIndex != questionIndex {
		s.mu.Unlock()
		return nil, room.ErrStaleWrite
	}
	a := answer
	switch {
	case r.HostID == userID && r.HostAnswer == nil:
		r.HostAnswer = &a
	case r.GuestID != nil && *r.GuestID == userID && r.GuestAnswer == nil:
		r.GuestAnswer = &a
	default:
		s.mu.Unlock()
		return nil, room.ErrStaleWrite
	}
	s.bumpLocked(r)
	snapshot := s.commitLocked(r)
	s.mu.Unlock()

	s.flush(snapshot.ID)
	return snapshot, nil
}

func (s *InMemory) StartQuestion(ctx context.Context, roomID, hostID uuid.UUID, questionIndex int, questionID string) (*models.Room, error) {
	s.mu.Lock()
	r, ok := s.rooms[roomID]
	if !ok || r.HostID != hostID {
		s.mu.Unlock()
		return nil, room.ErrStaleWrite
	}
	fromWaiting := r.GameStatus == models.GameStatusWaiting && questionIndex == 0 && r.GuestID != nil
	fromAnswered := r.GameStatus == models.GameStatusQuestionAnswered && r.CurrentQuestionIndex == questionIndex-1
	if !fromWaiting && !fromAnswered {
		s.mu.Unlock()
		return nil, room.ErrStaleWrite
	}

	now := s.clock.Now()
	qid := questionID
	r.GameStatus = models.GameStatusPlaying
	r.CurrentQuestionID = &qid
	r.CurrentQuestionIndex = questionIndex
	r.QuestionStartTime = &now
	r.HostAnswer = nil
	r.GuestAnswer = nil
	s.bumpLocked(r)
	snapshot := s.commitLocked(r)
	s.mu.Unlock()

	s.flush(snapshot.ID)
	return snapshot, nil
}

func (s *InMemory) MarkQuestionAnswered(ctx context.Context, roomID, hostID uuid.UUID, questionIndex, hostDelta, guestDelta int) (*models.Room, error) {
	s.mu.Lock()
	r, ok := s.rooms[roomID]
	if !ok || r.HostID != hostID ||
		r.GameStatus != models.GameStatusPlaying ||
		r.CurrentQuestionIndex != questionIndex ||
		!r.BothAnswered() {
		s.mu.Unlock()
		return nil, room.ErrStaleWrite
	}
	r.GameStatus = models.GameStatusQuestionAnswered
	r.HostScore += hostDelta
	r.GuestScore += guestDelta
	s.bumpLocked(r)
	snapshot := s.commitLocked(r)
	s.mu.Unlock()

	s.flush(snapshot.ID)
	return snapshot, nil
}

func (s *InMemory) FinishGame(ctx context.Context, roomID, hostID uuid.UUID, winnerID *uuid.UUID) (*models.Room, error) {
	s.mu.Lock()
	r, ok := s.rooms[roomID]
	if !ok || r.HostID != hostID || r.GameStatus != models.GameStatusQuestionAnswered {
		s.mu.Unlock()
		return nil, room.ErrStaleWrite
	}
	r.GameStatus = models.GameStatusFinished
	if winnerID != nil {
		w := *winnerID
		r.WinnerID = &w
	}
	s.bumpLocked(r)
	snapshot := s.commitLocked(r)
	s.mu.Unlock()

	s.flush(snapshot.ID)
	return snapshot, nil
}

// Subscribe registers deliver for every future committed state of the room.
func (s *InMemory) Subscribe(ctx context.Context, roomID uuid.UUID, deliver func(*models.Room)) (func(), error) {
	s.mu.Lock()
	s.subs[roomID] = append(s.subs[roomID], deliver)
	index := len(s.subs[roomID]) - 1
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.subs[roomID]
		if index < len(subs) {
			subs[index] = func(*models.Room) {}
		}
	}, nil
}

func (s *InMemory) bumpLocked(r *models.Room) {
	r.Version++
	r.UpdatedAt = s.clock.Now()
}

// commitLocked snapshots the freshly bumped row and queues it for delivery.
// Queueing happens in the same critical section as the version bump, so the
// feed queue order is the commit order.
func (s *InMemory) commitLocked(r *models.Room) *models.Room {
	subs := make([]func(*models.Room), len(s.subs[r.ID]))
	copy(subs, s.subs[r.ID])
	snapshot := cloneRoom(r)
	s.pending[r.ID] = append(s.pending[r.ID], pendingDelivery{snapshot: snapshot, subs: subs})
	return snapshot
}

// flush delivers the room's queued commits in order, outside the store lock.
// A subscriber reacting with another mutation re-enters the store; its commit
// queues behind the one being delivered instead of overtaking it, so every
// subscriber observes versions in strictly increasing order.
func (s *InMemory) flush(roomID uuid.UUID) {
	s.mu.Lock()
	if s.delivering[roomID] {
		s.mu.Unlock()
		return
	}
	s.delivering[roomID] = true
	for {
		queued := s.pending[roomID]
		if len(queued) == 0 {
			delete(s.delivering, roomID)
			delete(s.pending, roomID)
			s.mu.Unlock()
			return
		}
		next := queued[0]
		s.pending[roomID] = queued[1:]
		s.mu.Unlock()

		for _, deliver := range next.subs {
			deliver(cloneRoom(next.snapshot))
		}
		log.Debug().
			Str("room_id", next.snapshot.ID.String()).
			Str("status", string(next.snapshot.GameStatus)).
			Int64("version", next.snapshot.Version).
			Msg("room state committed")

		s.mu.Lock()
	}
}

func cloneRoom(r *models.Room) *models.Room {
	out := *r
	if r.GuestID != nil {
		v := *r.GuestID
		out.GuestID = &v
	}
	if r.CurrentQuestionID != nil {
		v := *r.CurrentQuestionID
		out.CurrentQuestionID = &v
	}
	if r.QuestionStartTime != nil {
		v := *r.QuestionStartTime
		out.QuestionStartTime = &v
	}
	if r.HostAnswer != nil {
		v := *r.HostAnswer
		out.HostAnswer = &v
	}
	if r.GuestAnswer != nil {
		v := *r.GuestAnswer
		out.GuestAnswer = &v
	}
	if r.WinnerID != nil {
		v := *r.WinnerID
		out.WinnerID = &v
	}
	if r.Settings.Categories != nil {
		out.Settings.Categories = append([]string(nil), r.Settings.Categories...)
	}
	return &out
}
