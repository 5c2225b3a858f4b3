package match

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/brainbolt/go/internal/models"
)

type recordingSink struct {
	mu      sync.Mutex
	records []models.GameHistory
}

func (s *recordingSink) Insert(ctx context.Context, record models.GameHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *recordingSink) snapshot() []models.GameHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.GameHistory, len(s.records))
	copy(out, s.records)
	return out
}

// waitFor polls cond, optionally advancing the fake clock between polls so
// timer-driven engine steps can fire.
func waitFor(t *testing.T, clock *clockwork.FakeClock, advance time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		if advance > 0 {
			clock.Advance(advance)
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRunnerDrivesMatchToCompletion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewFakeClock()
	store := NewInMemory(clock)
	bank := testBank(t)
	sink := &recordingSink{}
	hostID, guestID := uuid.New(), uuid.New()

	runner := NewRunner(store, store, nil, bank, sink, clock, DefaultRunnerConfig())

	settings := models.RoomSettings{QuestionDurationSec: 15, TotalQuestions: 1, ShuffleSeed: 42}
	created, err := store.CreateRoom(ctx, hostID, settings)
	if err != nil {
		t.Fatal(err)
	}
	if err := runner.EnsureMatch(created); err != nil {
		t.Fatal(err)
	}

	go runner.Run(ctx)
	waitFor(t, clock, 0, "arbiter start", func() bool { return runner.ActiveMatches() == 1 })

	joined, err := store.JoinRoom(ctx, created.RoomCode, guestID)
	if err != nil {
		t.Fatal(err)
	}
	if err := runner.EnsureMatch(joined); err != nil {
		t.Fatal(err)
	}

	// The host arbiter reacts to the seated guest by starting question 0.
	waitFor(t, clock, 0, "first question", func() bool {
		r, err := store.Room(ctx, created.ID)
		return err == nil && r.GameStatus == models.GameStatusPlaying && r.CurrentQuestionIndex == 0
	})

	deck, err := bank.Deck(settings)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.SubmitAnswer(ctx, created.ID, hostID, 0, deck[0].CorrectAnswer); err != nil {
		t.Fatal(err)
	}
	if _, err := store.SubmitAnswer(ctx, created.ID, guestID, 0, (deck[0].CorrectAnswer+1)%4); err != nil {
		t.Fatal(err)
	}

	waitFor(t, clock, 0, "scoring", func() bool {
		r, err := store.Room(ctx, created.ID)
		return err == nil && r.GameStatus == models.GameStatusQuestionAnswered
	})

	// The reveal pause elapses on the clock, then the arbiter finishes the
	// single-question match.
	waitFor(t, clock, 200*time.Millisecond, "finish", func() bool {
		r, err := store.Room(ctx, created.ID)
		return err == nil && r.GameStatus == models.GameStatusFinished
	})

	final, err := store.Room(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if final.WinnerID == nil || *final.WinnerID != hostID {
		t.Fatalf("winner = %v, want host %s", final.WinnerID, hostID)
	}
	if final.HostScore != 100 || final.GuestScore != 0 {
		t.Fatalf("final scores = %d/%d, want 100/0", final.HostScore, final.GuestScore)
	}

	// Both seats record their history row and the arbiter is released.
	waitFor(t, clock, 0, "history rows", func() bool { return len(sink.snapshot()) == 2 })
	byUser := make(map[uuid.UUID]models.GameHistory)
	for _, record := range sink.snapshot() {
		byUser[record.UserID] = record
	}
	if byUser[hostID].GameResult != models.ResultWin || byUser[guestID].GameResult != models.ResultLoss {
		t.Fatalf("results = %s/%s, want win/loss", byUser[hostID].GameResult, byUser[guestID].GameResult)
	}
	waitFor(t, clock, 0, "arbiter release", func() bool { return runner.ActiveMatches() == 0 })
}

func TestRunnerResumesActiveRooms(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewFakeClock()
	store := NewInMemory(clock)
	bank := testBank(t)
	hostID, guestID := uuid.New(), uuid.New()

	// The room was created and joined before this process started; no arbiter
	// has seen it yet.
	created, err := store.CreateRoom(ctx, hostID, models.RoomSettings{QuestionDurationSec: 15, TotalQuestions: 3, ShuffleSeed: 42})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.JoinRoom(ctx, created.RoomCode, guestID); err != nil {
		t.Fatal(err)
	}

	runner := NewRunner(store, store, nil, bank, &recordingSink{}, clock, DefaultRunnerConfig())
	go runner.Run(ctx)

	waitFor(t, clock, 0, "resumed first question", func() bool {
		r, err := store.Room(ctx, created.ID)
		return err == nil && r.GameStatus == models.GameStatusPlaying && r.CurrentQuestionIndex == 0
	})
}

type stubLiveness struct {
	mu        sync.Mutex
	connected bool
	retries   int
	activity  int
}

func (s *stubLiveness) RecordActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity++
}

func (s *stubLiveness) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *stubLiveness) NextRetry() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries++
	return 0, true
}

func (s *stubLiveness) counts() (retries, activity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries, s.activity
}

type countingFeed struct {
	mu      sync.Mutex
	subs    int
	stops   int
	deliver func(*models.Room)
}

func (f *countingFeed) Subscribe(ctx context.Context, roomID uuid.UUID, deliver func(*models.Room)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs++
	f.deliver = deliver
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.stops++
	}, nil
}

func (f *countingFeed) counts() (subs, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs, f.stops
}

func TestMonitorFeedTracksActivityAndResubscribes(t *testing.T) {
	ctx := context.Background()
	inner := &countingFeed{}
	live := &stubLiveness{connected: true}
	f := &monitorFeed{inner: inner, liveness: live, clock: clockwork.NewFakeClock(), interval: time.Second}

	var delivered int
	stop, err := f.Subscribe(ctx, uuid.New(), func(*models.Room) { delivered++ })
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	// Every delivery counts as liveness evidence before reaching the engine.
	inner.deliver(&models.Room{})
	if _, activity := live.counts(); activity != 1 {
		t.Fatalf("activity = %d, want 1", activity)
	}
	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1", delivered)
	}

	// A healthy subscription is left alone.
	w := &feedWatch{stop: func() {}}
	f.checkOnce(ctx, uuid.New(), inner.deliver, w)
	if subs, _ := inner.counts(); subs != 1 {
		t.Fatalf("healthy check resubscribed: %d subscriptions", subs)
	}

	// A stale one consumes a retry and resubscribes.
	live.mu.Lock()
	live.connected = false
	live.mu.Unlock()
	f.checkOnce(ctx, uuid.New(), inner.deliver, w)
	subs, _ := inner.counts()
	retries, _ := live.counts()
	if subs != 2 || retries != 1 {
		t.Fatalf("stale check: subs = %d retries = %d, want 2 and 1", subs, retries)
	}
}
