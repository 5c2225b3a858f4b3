package questions

import (
	"errors"
	"testing"

	"github.com/mcdev12/brainbolt/go/internal/models"
)

func testPool(n int) []models.Question {
	pool := make([]models.Question, n)
	for i := range pool {
		category := "science"
		if i%2 == 1 {
			category = "history"
		}
		pool[i] = models.Question{
			ID:            string(rune('a' + i)),
			Category:      category,
			Question:      "q?",
			Options:       []string{"a", "b", "c", "d"},
			CorrectAnswer: i % 4,
		}
	}
	return pool
}

func TestNewBankRejectsBadQuestions(t *testing.T) {
	tests := []struct {
		name string
		pool []models.Question
	}{
		{"missing id", []models.Question{{Options: []string{"a", "b", "c", "d"}}}},
		{"duplicate id", append(testPool(1), testPool(1)...)},
		{"wrong option count", []models.Question{{ID: "x", Options: []string{"a", "b"}}}},
		{"answer out of range", []models.Question{{ID: "x", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: 4}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewBank(tt.pool); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestDeckDeterministicAcrossBanks(t *testing.T) {
	settings := models.RoomSettings{TotalQuestions: 8, ShuffleSeed: 42}

	bankA, err := NewBank(testPool(20))
	if err != nil {
		t.Fatal(err)
	}
	bankB, err := NewBank(testPool(20))
	if err != nil {
		t.Fatal(err)
	}

	deckA, err := bankA.Deck(settings)
	if err != nil {
		t.Fatal(err)
	}
	deckB, err := bankB.Deck(settings)
	if err != nil {
		t.Fatal(err)
	}

	if len(deckA) != 8 {
		t.Fatalf("deck length = %d, want 8", len(deckA))
	}
	for i := range deckA {
		if deckA[i].ID != deckB[i].ID {
			t.Fatalf("deck diverged at index %d: %q vs %q", i, deckA[i].ID, deckB[i].ID)
		}
	}
}

func TestDeckSeedChangesOrder(t *testing.T) {
	bank, err := NewBank(testPool(20))
	if err != nil {
		t.Fatal(err)
	}

	deckA, _ := bank.Deck(models.RoomSettings{TotalQuestions: 20, ShuffleSeed: 1})
	deckB, _ := bank.Deck(models.RoomSettings{TotalQuestions: 20, ShuffleSeed: 2})

	same := true
	for i := range deckA {
		if deckA[i].ID != deckB[i].ID {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different seeds produced identical deck order")
	}
}

func TestDeckFiltersCategories(t *testing.T) {
	bank, err := NewBank(testPool(10))
	if err != nil {
		t.Fatal(err)
	}

	deck, err := bank.Deck(models.RoomSettings{ShuffleSeed: 7, Categories: []string{"science"}})
	if err != nil {
		t.Fatal(err)
	}
	for _, q := range deck {
		if q.Category != "science" {
			t.Fatalf("deck contains category %q", q.Category)
		}
	}

	if _, err := bank.Deck(models.RoomSettings{ShuffleSeed: 7, Categories: []string{"geography"}}); !errors.Is(err, ErrEmptyDeck) {
		t.Fatalf("err = %v, want ErrEmptyDeck", err)
	}
}

func TestDeckShorterThanRequested(t *testing.T) {
	bank, err := NewBank(testPool(5))
	if err != nil {
		t.Fatal(err)
	}

	deck, err := bank.Deck(models.RoomSettings{TotalQuestions: 24, ShuffleSeed: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(deck) != 5 {
		t.Fatalf("deck length = %d, want the whole pool (5)", len(deck))
	}
}
