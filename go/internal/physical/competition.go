package physical

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/brainbolt/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Phase is the competition state for one round.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseWaitingForPress Phase = "waiting_for_press"
	PhaseWinnerDeclared  Phase = "winner_declared"
	PhaseAnswerWindow    Phase = "answer_window"
	PhaseAnswerSubmitted Phase = "answer_submitted"
	PhaseFinished        Phase = "finished"
)

// ErrNotIdle is returned when a game is started over a running one.
var ErrNotIdle = errors.New("competition already running")

// CompetitionConfig tunes the physical-mode round flow.
type CompetitionConfig struct {
	AnswerWindow time.Duration // How long the press winner has to answer
	RevealDelay  time.Duration // Pause between the verdict and the next question
	TickInterval time.Duration
}

func DefaultCompetitionConfig() CompetitionConfig {
	return CompetitionConfig{
		AnswerWindow: 10 * time.Second,
		RevealDelay:  3 * time.Second,
		TickInterval: 100 * time.Millisecond,
	}
}

// RoundResult records one finished round.
type RoundResult struct {
	Round        int
	QuestionID   string
	Winner       string
	Answer       int
	Correct      bool
	ReactionTime float64
	TimedOut     bool
}

// Competition runs the hardware press-race variant of a match: the same
// first-to-act race as the network mode, arbitrated by the buzzer hardware
// instead of a shared row. Every accepting guard checks the round the event
// belongs to, so a stray frame from an earlier round can never corrupt the
// current one.
type Competition struct {
	bus   Bus
	clock clockwork.Clock
	cfg   CompetitionConfig

	phase Phase
	deck  []models.Question
	round int // current round, advances monotonically

	winner         string
	reaction       float64
	winnerRound    int // round the current winner verdict belongs to
	answeredRound  int // last round an answer was accepted for
	answerDeadline time.Time
	nextRoundAt    time.Time

	scores  map[string]int
	results []RoundResult
}

func NewCompetition(bus Bus, clock clockwork.Clock, cfg CompetitionConfig) *Competition {
	return &Competition{
		bus:           bus,
		clock:         clock,
		cfg:           cfg,
		phase:         PhaseIdle,
		winnerRound:   -1,
		answeredRound: -1,
		scores:        map[string]int{ButtonFast1: 0, ButtonFast2: 0},
	}
}

// CurrentPhase returns the competition phase.
func (c *Competition) CurrentPhase() Phase {
	return c.phase
}

// Round returns the current round index.
func (c *Competition) Round() int {
	return c.round
}

// Scores returns the running score per buzzer.
func (c *Competition) Scores() map[string]int {
	out := make(map[string]int, len(c.scores))
	for k, v := range c.scores {
		out[k] = v
	}
	return out
}

// Results returns the per-round outcomes so far.
func (c *Competition) Results() []RoundResult {
	out := make([]RoundResult, len(c.results))
	copy(out, c.results)
	return out
}

// Start begins a match over the given deck and opens the first press race.
func (c *Competition) Start(ctx context.Context, deck []models.Question) error {
	if c.phase != PhaseIdle {
		return ErrNotIdle
	}
	if len(deck) == 0 {
		return errors.New("empty deck")
	}
	c.deck = deck
	c.round = 0
	c.openRound(ctx)
	return nil
}

// Run drives the competition from bus events and the clock until the match
// finishes or ctx is cancelled.
func (c *Competition) Run(ctx context.Context) error {
	ticker := c.clock.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-c.bus.Receive():
			c.HandleMessage(ctx, msg)
		case <-ticker.Chan():
			c.Tick(ctx)
		}
		if c.phase == PhaseFinished {
			return nil
		}
	}
}

// HandleMessage applies one inbound hardware event. Events outside their
// accepting phase, or stamped by a guard as belonging to an earlier round,
// are dropped.
func (c *Competition) HandleMessage(ctx context.Context, msg Message) {
	switch msg.Type {
	case TypeCompetitionWinner:
		c.handleWinner(msg)
	case TypeButtonPress:
		switch msg.Button {
		case ButtonFast1, ButtonFast2:
			// Fallback arbitration when the hardware reports raw presses
			// instead of a verdict: first press wins.
			c.handleWinner(Message{Type: TypeCompetitionWinner, Winner: msg.Button})
		default:
			c.handleAnswer(ctx, msg.Button)
		}
	default:
		log.Debug().Str("type", msg.Type).Msg("ignoring unknown bus message")
	}
}

func (c *Competition) handleWinner(msg Message) {
	if c.phase != PhaseWaitingForPress || c.winnerRound >= c.round {
		log.Debug().
			Str("winner", msg.Winner).
			Str("phase", string(c.phase)).
			Int("round", c.round).
			Msg("dropping stale press verdict")
		return
	}
	if msg.Winner != ButtonFast1 && msg.Winner != ButtonFast2 {
		return
	}

	c.winner = msg.Winner
	c.reaction = msg.ReactionTime
	c.winnerRound = c.round
	c.phase = PhaseWinnerDeclared

	// The answer window opens immediately for the press winner.
	c.phase = PhaseAnswerWindow
	c.answerDeadline = c.clock.Now().Add(c.cfg.AnswerWindow)

	log.Info().
		Str("winner", c.winner).
		Float64("reaction_ms", c.reaction).
		Int("round", c.round).
		Msg("press race decided")
}

func (c *Competition) handleAnswer(ctx context.Context, button string) {
	answer := AnswerIndex(button)
	if answer < 0 {
		return
	}
	if c.phase != PhaseAnswerWindow || c.winnerRound != c.round || c.answeredRound >= c.round {
		log.Debug().
			Str("button", button).
			Str("phase", string(c.phase)).
			Int("round", c.round).
			Msg("dropping answer outside its window")
		return
	}

	c.answeredRound = c.round
	c.phase = PhaseAnswerSubmitted

	question := c.deck[c.round]
	correct := question.IsCorrect(answer)
	if correct {
		c.scores[c.winner]++
		c.send(ctx, Message{Type: TypeAnswerCorrect})
	} else {
		c.send(ctx, Message{Type: TypeAnswerWrong})
	}

	c.results = append(c.results, RoundResult{
		Round:        c.round,
		QuestionID:   question.ID,
		Winner:       c.winner,
		Answer:       answer,
		Correct:      correct,
		ReactionTime: c.reaction,
	})

	log.Info().
		Int("round", c.round).
		Str("winner", c.winner).
		Bool("correct", correct).
		Msg("round answered")

	c.scheduleNextRound()
}

// Tick fires the answer-window timeout and the delayed round advance.
func (c *Competition) Tick(ctx context.Context) {
	now := c.clock.Now()

	if c.phase == PhaseAnswerWindow && !now.Before(c.answerDeadline) {
		// Press winner never answered; scored as wrong.
		c.answeredRound = c.round
		c.phase = PhaseAnswerSubmitted
		c.send(ctx, Message{Type: TypeAnswerWrong})
		c.results = append(c.results, RoundResult{
			Round:        c.round,
			QuestionID:   c.deck[c.round].ID,
			Winner:       c.winner,
			Answer:       models.AnswerNone,
			Correct:      false,
			ReactionTime: c.reaction,
			TimedOut:     true,
		})
		log.Info().Int("round", c.round).Str("winner", c.winner).Msg("answer window timed out")
		c.scheduleNextRound()
	}

	if c.phase == PhaseAnswerSubmitted && !now.Before(c.nextRoundAt) {
		c.advanceRound(ctx)
	}
}

func (c *Competition) scheduleNextRound() {
	c.nextRoundAt = c.clock.Now().Add(c.cfg.RevealDelay)
}

func (c *Competition) advanceRound(ctx context.Context) {
	c.round++
	if c.round >= len(c.deck) {
		c.phase = PhaseFinished
		c.send(ctx, Message{Type: TypeGameEnd})
		log.Info().
			Int("fast1_score", c.scores[ButtonFast1]).
			Int("fast2_score", c.scores[ButtonFast2]).
			Msg("competition finished")
		return
	}
	c.openRound(ctx)
}

func (c *Competition) openRound(ctx context.Context) {
	c.winner = ""
	c.reaction = 0
	c.phase = PhaseWaitingForPress
	c.send(ctx, Message{Type: TypeQuestionStart})
	log.Info().Int("round", c.round).Str("question_id", c.deck[c.round].ID).Msg("press race open")
}

func (c *Competition) send(ctx context.Context, msg Message) {
	if err := c.bus.Send(ctx, msg); err != nil {
		log.Error().Err(err).Str("type", msg.Type).Msg("failed to send bus command")
	}
}
