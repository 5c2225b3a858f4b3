package history

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/brainbolt/go/internal/models"
)

func finishedRoom(hostID, guestID uuid.UUID, hostScore, guestScore int, winnerID *uuid.UUID) models.Room {
	guest := guestID
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return models.Room{
		ID:         uuid.New(),
		HostID:     hostID,
		GuestID:    &guest,
		GameStatus: models.GameStatusFinished,
		HostScore:  hostScore,
		GuestScore: guestScore,
		WinnerID:   winnerID,
		CreatedAt:  created,
		UpdatedAt:  created.Add(4 * time.Minute),
	}
}

func TestBuildRecordWinLossDraw(t *testing.T) {
	hostID, guestID := uuid.New(), uuid.New()

	room := finishedRoom(hostID, guestID, 30, 10, &hostID)
	if got := BuildRecord(room, hostID, nil).GameResult; got != models.ResultWin {
		t.Fatalf("host result = %s, want win", got)
	}
	if got := BuildRecord(room, guestID, nil).GameResult; got != models.ResultLoss {
		t.Fatalf("guest result = %s, want loss", got)
	}

	draw := finishedRoom(hostID, guestID, 20, 20, nil)
	if got := BuildRecord(draw, hostID, nil).GameResult; got != models.ResultDraw {
		t.Fatalf("draw result = %s, want draw", got)
	}
}

func TestBuildRecordScoresAndOpponents(t *testing.T) {
	hostID, guestID := uuid.New(), uuid.New()
	room := finishedRoom(hostID, guestID, 30, 10, &hostID)

	hostRecord := BuildRecord(room, hostID, nil)
	if hostRecord.FinalScore != 30 {
		t.Fatalf("host final score = %d, want 30", hostRecord.FinalScore)
	}
	if hostRecord.OpponentID == nil || *hostRecord.OpponentID != guestID {
		t.Fatalf("host opponent = %v, want %s", hostRecord.OpponentID, guestID)
	}

	guestRecord := BuildRecord(room, guestID, nil)
	if guestRecord.FinalScore != 10 {
		t.Fatalf("guest final score = %d, want 10", guestRecord.FinalScore)
	}
	if guestRecord.OpponentID == nil || *guestRecord.OpponentID != hostID {
		t.Fatalf("guest opponent = %v, want %s", guestRecord.OpponentID, hostID)
	}

	if hostRecord.TimeSpentSec != 240 {
		t.Fatalf("time spent = %d, want 240", hostRecord.TimeSpentSec)
	}
	if hostRecord.GameMode != GameModeMultiplayer {
		t.Fatalf("game mode = %s", hostRecord.GameMode)
	}
}

func TestBuildRecordStreaks(t *testing.T) {
	hostID, guestID := uuid.New(), uuid.New()
	room := finishedRoom(hostID, guestID, 40, 0, &hostID)

	breakdown := []models.AnswerRecord{
		{QuestionID: "q1", Answer: 0, Correct: true},
		{QuestionID: "q2", Answer: 1, Correct: true},
		{QuestionID: "q3", Answer: models.AnswerNone, Correct: false},
		{QuestionID: "q4", Answer: 2, Correct: true},
		{QuestionID: "q5", Answer: 0, Correct: true},
		{QuestionID: "q6", Answer: 3, Correct: true},
	}

	record := BuildRecord(room, hostID, breakdown)
	if record.QuestionsAnswered != 6 {
		t.Fatalf("questions answered = %d, want 6", record.QuestionsAnswered)
	}
	if record.CorrectAnswers != 5 {
		t.Fatalf("correct answers = %d, want 5", record.CorrectAnswers)
	}
	if record.MaxStreak != 3 {
		t.Fatalf("max streak = %d, want 3", record.MaxStreak)
	}
}
