package questions

import (
	"errors"
	"fmt"
	"math/rand"
	"os"

	"github.com/mcdev12/brainbolt/go/internal/models"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ErrEmptyDeck means the bank has no questions matching the room settings.
var ErrEmptyDeck = errors.New("no questions match the requested categories")

// Bank holds the question pool and derives per-match decks. The deck order is
// a pure function of the room settings, so two clients holding the same room
// row always agree on which question lives at which index without ever
// shipping the deck over the wire.
type Bank struct {
	questions []models.Question
	byID      map[string]models.Question
}

// LoadBank reads a YAML question file.
func LoadBank(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read question bank: %w", err)
	}

	var file struct {
		Questions []models.Question `yaml:"questions"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse question bank: %w", err)
	}

	bank, err := NewBank(file.Questions)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("path", path).
		Int("questions", len(file.Questions)).
		Msg("loaded question bank")
	return bank, nil
}

// NewBank validates the pool and builds the ID index.
func NewBank(pool []models.Question) (*Bank, error) {
	byID := make(map[string]models.Question, len(pool))
	for i, q := range pool {
		if q.ID == "" {
			return nil, fmt.Errorf("question %d has no id", i)
		}
		if _, ok := byID[q.ID]; ok {
			return nil, fmt.Errorf("duplicate question id %q", q.ID)
		}
		if len(q.Options) != 4 {
			return nil, fmt.Errorf("question %q has %d options, want 4", q.ID, len(q.Options))
		}
		if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
			return nil, fmt.Errorf("question %q correct answer %d out of range", q.ID, q.CorrectAnswer)
		}
		byID[q.ID] = q
	}
	return &Bank{questions: pool, byID: byID}, nil
}

// Size returns the number of questions in the pool.
func (b *Bank) Size() int {
	return len(b.questions)
}

// QuestionByID looks up a question; ok is false for unknown ids.
func (b *Bank) QuestionByID(id string) (models.Question, bool) {
	q, ok := b.byID[id]
	return q, ok
}

// Deck derives the match deck for the given settings: filter by category,
// shuffle with the room's seed, truncate to the match length. Callers on
// different machines get the identical order for identical settings.
func (b *Bank) Deck(settings models.RoomSettings) ([]models.Question, error) {
	pool := b.filter(settings.Categories)
	if len(pool) == 0 {
		return nil, ErrEmptyDeck
	}

	rng := rand.New(rand.NewSource(settings.ShuffleSeed))
	rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	if settings.TotalQuestions > 0 && settings.TotalQuestions < len(pool) {
		pool = pool[:settings.TotalQuestions]
	}
	return pool, nil
}

// filter returns a fresh slice of questions in the requested categories, or
// the whole pool when no categories are requested.
func (b *Bank) filter(categories []string) []models.Question {
	if len(categories) == 0 {
		out := make([]models.Question, len(b.questions))
		copy(out, b.questions)
		return out
	}

	wanted := make(map[string]bool, len(categories))
	for _, c := range categories {
		wanted[c] = true
	}

	var out []models.Question
	for _, q := range b.questions {
		if wanted[q.Category] {
			out = append(out, q)
		}
	}
	return out
}
