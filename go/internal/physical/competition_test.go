package physical

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/brainbolt/go/internal/models"
)

func testDeck() []models.Question {
	return []models.Question{
		{ID: "q1", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: 0},
		{ID: "q2", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: 2},
	}
}

func newCompetition(t *testing.T) (*Competition, *MemoryBus, *clockwork.FakeClock) {
	t.Helper()
	bus := NewMemoryBus()
	clock := clockwork.NewFakeClock()
	c := NewCompetition(bus, clock, DefaultCompetitionConfig())
	if err := c.Start(context.Background(), testDeck()); err != nil {
		t.Fatal(err)
	}
	return c, bus, clock
}

func lastSent(t *testing.T, bus *MemoryBus) Message {
	t.Helper()
	sent := bus.Sent()
	if len(sent) == 0 {
		t.Fatal("nothing sent on the bus")
	}
	return sent[len(sent)-1]
}

func TestStartOpensPressRace(t *testing.T) {
	c, bus, _ := newCompetition(t)

	if c.CurrentPhase() != PhaseWaitingForPress {
		t.Fatalf("phase = %s, want waiting_for_press", c.CurrentPhase())
	}
	if got := lastSent(t, bus).Type; got != TypeQuestionStart {
		t.Fatalf("first command = %s, want question_start", got)
	}
	if err := c.Start(context.Background(), testDeck()); err != ErrNotIdle {
		t.Fatalf("second start err = %v, want ErrNotIdle", err)
	}
}

func TestWinnerOpensAnswerWindow(t *testing.T) {
	c, _, _ := newCompetition(t)
	ctx := context.Background()

	c.HandleMessage(ctx, Message{Type: TypeCompetitionWinner, Winner: ButtonFast1, ReactionTime: 182})
	if c.CurrentPhase() != PhaseAnswerWindow {
		t.Fatalf("phase = %s, want answer_window", c.CurrentPhase())
	}

	// A second verdict in the same round changes nothing.
	c.HandleMessage(ctx, Message{Type: TypeCompetitionWinner, Winner: ButtonFast2})
	c.HandleMessage(ctx, Message{Type: TypeButtonPress, Button: "A"})

	results := c.Results()
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].Winner != ButtonFast1 {
		t.Fatalf("winner = %s, want FAST1", results[0].Winner)
	}
	if results[0].ReactionTime != 182 {
		t.Fatalf("reaction time = %v, want 182", results[0].ReactionTime)
	}
}

func TestCorrectAnswerScoresWinner(t *testing.T) {
	c, bus, clock := newCompetition(t)
	ctx := context.Background()

	c.HandleMessage(ctx, Message{Type: TypeCompetitionWinner, Winner: ButtonFast1})
	c.HandleMessage(ctx, Message{Type: TypeButtonPress, Button: "A"})

	if got := lastSent(t, bus).Type; got != TypeAnswerCorrect {
		t.Fatalf("verdict = %s, want answer_correct", got)
	}
	if got := c.Scores()[ButtonFast1]; got != 1 {
		t.Fatalf("FAST1 score = %d, want 1", got)
	}

	// Next round opens after the reveal delay.
	clock.Advance(3 * time.Second)
	c.Tick(ctx)
	if c.CurrentPhase() != PhaseWaitingForPress {
		t.Fatalf("phase = %s, want waiting_for_press", c.CurrentPhase())
	}
	if c.Round() != 1 {
		t.Fatalf("round = %d, want 1", c.Round())
	}
}

func TestWrongAnswerScoresNothing(t *testing.T) {
	c, bus, _ := newCompetition(t)
	ctx := context.Background()

	c.HandleMessage(ctx, Message{Type: TypeCompetitionWinner, Winner: ButtonFast2})
	c.HandleMessage(ctx, Message{Type: TypeButtonPress, Button: "B"})

	if got := lastSent(t, bus).Type; got != TypeAnswerWrong {
		t.Fatalf("verdict = %s, want answer_wrong", got)
	}
	if got := c.Scores()[ButtonFast2]; got != 0 {
		t.Fatalf("FAST2 score = %d, want 0", got)
	}
}

func TestAnswerOutsideWindowDropped(t *testing.T) {
	c, _, _ := newCompetition(t)
	ctx := context.Background()

	// No winner declared yet: answer buttons do nothing.
	c.HandleMessage(ctx, Message{Type: TypeButtonPress, Button: "C"})
	if c.CurrentPhase() != PhaseWaitingForPress {
		t.Fatalf("phase = %s, want waiting_for_press", c.CurrentPhase())
	}
	if len(c.Results()) != 0 {
		t.Fatal("answer accepted without a press winner")
	}
}

func TestAnswerWindowTimeout(t *testing.T) {
	c, bus, clock := newCompetition(t)
	ctx := context.Background()

	c.HandleMessage(ctx, Message{Type: TypeCompetitionWinner, Winner: ButtonFast1})
	clock.Advance(10 * time.Second)
	c.Tick(ctx)

	if got := lastSent(t, bus).Type; got != TypeAnswerWrong {
		t.Fatalf("timeout verdict = %s, want answer_wrong", got)
	}
	results := c.Results()
	if len(results) != 1 || !results[0].TimedOut {
		t.Fatalf("results = %+v, want one timed-out round", results)
	}
	if results[0].Answer != models.AnswerNone {
		t.Fatalf("timeout answer = %d, want sentinel", results[0].Answer)
	}
}

func TestStalePressAfterAdvanceDropped(t *testing.T) {
	c, _, clock := newCompetition(t)
	ctx := context.Background()

	c.HandleMessage(ctx, Message{Type: TypeCompetitionWinner, Winner: ButtonFast1})
	c.HandleMessage(ctx, Message{Type: TypeButtonPress, Button: "A"})
	clock.Advance(3 * time.Second)
	c.Tick(ctx)

	// A buffered duplicate of round 0's verdict arrives during round 1:
	// it wins round 1's race legitimately, but a duplicate of the answer
	// must not score round 1 with round 0's bookkeeping.
	if c.Round() != 1 {
		t.Fatalf("round = %d, want 1", c.Round())
	}
	c.HandleMessage(ctx, Message{Type: TypeCompetitionWinner, Winner: ButtonFast2})
	c.HandleMessage(ctx, Message{Type: TypeButtonPress, Button: "C"})

	results := c.Results()
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[1].Round != 1 || results[1].Winner != ButtonFast2 {
		t.Fatalf("round 1 result = %+v", results[1])
	}
}

func TestGameEndAfterDeckExhausted(t *testing.T) {
	c, bus, clock := newCompetition(t)
	ctx := context.Background()

	for round := 0; round < 2; round++ {
		c.HandleMessage(ctx, Message{Type: TypeCompetitionWinner, Winner: ButtonFast1})
		c.HandleMessage(ctx, Message{Type: TypeButtonPress, Button: "A"})
		clock.Advance(3 * time.Second)
		c.Tick(ctx)
	}

	if c.CurrentPhase() != PhaseFinished {
		t.Fatalf("phase = %s, want finished", c.CurrentPhase())
	}
	if got := lastSent(t, bus).Type; got != TypeGameEnd {
		t.Fatalf("final command = %s, want game_end", got)
	}

	// Hardware noise after the end changes nothing.
	c.HandleMessage(ctx, Message{Type: TypeCompetitionWinner, Winner: ButtonFast2})
	if c.CurrentPhase() != PhaseFinished {
		t.Fatalf("phase = %s after noise, want finished", c.CurrentPhase())
	}
}
