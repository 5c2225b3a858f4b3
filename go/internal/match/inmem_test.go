package match

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/brainbolt/go/internal/models"
	"github.com/mcdev12/brainbolt/go/internal/room"
)

func TestJoinExclusivity(t *testing.T) {
	store := NewInMemory(clockwork.NewFakeClock())
	ctx := context.Background()

	r, err := store.CreateRoom(ctx, uuid.New(), models.RoomSettings{QuestionDurationSec: 15, TotalQuestions: 3, ShuffleSeed: 1})
	if err != nil {
		t.Fatal(err)
	}

	const guests = 8
	var wg sync.WaitGroup
	winners := make(chan uuid.UUID, guests)
	for i := 0; i < guests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			guestID := uuid.New()
			if _, err := store.JoinRoom(ctx, r.RoomCode, guestID); err == nil {
				winners <- guestID
			}
		}()
	}
	wg.Wait()
	close(winners)

	var seated []uuid.UUID
	for id := range winners {
		seated = append(seated, id)
	}
	if len(seated) != 1 {
		t.Fatalf("%d joins succeeded, want exactly 1", len(seated))
	}

	current, err := store.Room(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if current.GuestID == nil || *current.GuestID != seated[0] {
		t.Fatalf("seated guest = %v, want %s", current.GuestID, seated[0])
	}
}

func TestFeedDeliversCommitsInOrder(t *testing.T) {
	store := NewInMemory(clockwork.NewFakeClock())
	ctx := context.Background()
	hostID := uuid.New()

	r, err := store.CreateRoom(ctx, hostID, models.RoomSettings{QuestionDurationSec: 15, TotalQuestions: 3, ShuffleSeed: 1})
	if err != nil {
		t.Fatal(err)
	}

	// The first subscriber reacts to the join by starting the game, committing
	// from inside a delivery.
	if _, err := store.Subscribe(ctx, r.ID, func(snap *models.Room) {
		if snap.GameStatus == models.GameStatusWaiting && snap.GuestID != nil {
			if _, err := store.StartQuestion(ctx, r.ID, hostID, 0, "q1"); err != nil {
				t.Errorf("start question: %v", err)
			}
		}
	}); err != nil {
		t.Fatal(err)
	}

	var versions []int64
	if _, err := store.Subscribe(ctx, r.ID, func(snap *models.Room) {
		versions = append(versions, snap.Version)
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := store.JoinRoom(ctx, r.RoomCode, uuid.New()); err != nil {
		t.Fatal(err)
	}

	// The join commit (v2) must reach the second subscriber before the
	// re-entrant start commit (v3).
	if len(versions) < 2 {
		t.Fatalf("got %d deliveries, want the join and the start", len(versions))
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Fatalf("feed delivered versions out of commit order: %v", versions)
		}
	}
}

func TestJoinFailureReasons(t *testing.T) {
	store := NewInMemory(clockwork.NewFakeClock())
	ctx := context.Background()
	hostID := uuid.New()

	r, err := store.CreateRoom(ctx, hostID, models.RoomSettings{QuestionDurationSec: 15, TotalQuestions: 3, ShuffleSeed: 1})
	if err != nil {
		t.Fatal(err)
	}

	var unavailable *room.UnavailableError

	_, err = store.JoinRoom(ctx, "NOPE99", uuid.New())
	if !errors.As(err, &unavailable) || unavailable.Reason != room.ReasonNotFound {
		t.Fatalf("unknown code err = %v, want not_found", err)
	}

	if _, err := store.JoinRoom(ctx, r.RoomCode, uuid.New()); err != nil {
		t.Fatal(err)
	}

	_, err = store.JoinRoom(ctx, r.RoomCode, uuid.New())
	if !errors.As(err, &unavailable) || unavailable.Reason != room.ReasonFull {
		t.Fatalf("full room err = %v, want full", err)
	}

	if _, err := store.StartQuestion(ctx, r.ID, hostID, 0, "q1"); err != nil {
		t.Fatal(err)
	}
	_, err = store.JoinRoom(ctx, r.RoomCode, uuid.New())
	if !errors.As(err, &unavailable) || unavailable.Reason != room.ReasonAlreadyStarted {
		t.Fatalf("started room err = %v, want already_started", err)
	}
}
