package history

import (
	"github.com/google/uuid"
	"github.com/mcdev12/brainbolt/go/internal/models"
)

// GameModeMultiplayer tags rows written by the synchronized two-player mode.
const GameModeMultiplayer = "multiplayer"

// BuildRecord derives one player's history row from the terminal room state
// and their per-question breakdown. Pure, so both sides of a match produce
// their rows from the same inputs.
func BuildRecord(room models.Room, userID uuid.UUID, breakdown []models.AnswerRecord) models.GameHistory {
	role := room.RoleOf(userID)

	score := room.GuestScore
	var opponent *uuid.UUID
	if role == models.RoleHost {
		score = room.HostScore
		if room.GuestID != nil {
			guest := *room.GuestID
			opponent = &guest
		}
	} else {
		host := room.HostID
		opponent = &host
	}

	correct, maxStreak := summarize(breakdown)

	return models.GameHistory{
		ID:                uuid.New(),
		UserID:            userID,
		RoomID:            room.ID,
		GameMode:          GameModeMultiplayer,
		FinalScore:        score,
		QuestionsAnswered: len(breakdown),
		CorrectAnswers:    correct,
		MaxStreak:         maxStreak,
		TimeSpentSec:      int(room.UpdatedAt.Sub(room.CreatedAt).Seconds()),
		GameResult:        resultFor(room, userID),
		OpponentID:        opponent,
		Breakdown:         breakdown,
	}
}

func summarize(breakdown []models.AnswerRecord) (correct, maxStreak int) {
	streak := 0
	for _, record := range breakdown {
		if record.Correct {
			correct++
			streak++
			if streak > maxStreak {
				maxStreak = streak
			}
		} else {
			streak = 0
		}
	}
	return correct, maxStreak
}

func resultFor(room models.Room, userID uuid.UUID) models.GameResult {
	if room.WinnerID == nil {
		return models.ResultDraw
	}
	if *room.WinnerID == userID {
		return models.ResultWin
	}
	return models.ResultLoss
}
