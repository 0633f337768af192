// Package scoring computes per-player point awards. It is pure: a function
// of the question, the submitted answer, and the timestamps, with no store
// access and no side effects.
package scoring

import (
	"math"
	"sort"

	"github.com/quizwire/quizwire/go/internal/trivia"
)

// bonusWindowSec is the sub-window of the question duration in which a
// correct answer still earns a speed bonus. Answers beyond it score base
// points only.
const bonusWindowSec = 10.0

// Score returns the points earned for one answer to one question.
//
// Zero when the answer is missing or does not case-sensitively equal the
// correct option. Otherwise base points plus a speed bonus that decays
// linearly to zero across the bonus window. Missing timestamps forfeit the
// bonus, never the base points.
func Score(q trivia.QuestionRound, answer *string, answeredAt trivia.Millis, settings trivia.Settings) int {
	if answer == nil || *answer != q.CorrectOption {
		return 0
	}
	return settings.PointsForCorrect + speedBonus(q.StartedAt, answeredAt, settings.SpeedBonusMax)
}

func speedBonus(startedAt, answeredAt trivia.Millis, bonusMax int) int {
	if startedAt.IsZero() || answeredAt.IsZero() || answeredAt < startedAt {
		return 0
	}
	responseSec := float64(answeredAt-startedAt) / 1000.0
	if responseSec > bonusWindowSec {
		return 0
	}
	return int(math.Floor(float64(bonusMax) * (1 - responseSec/bonusWindowSec)))
}

// Standing is one row of a ranking.
type Standing struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`

	joinedAt trivia.Millis
}

// Rank orders players by score descending. Ties keep original join order, so
// the ordering is stable across re-ranks during a session.
func Rank(players map[string]trivia.Player) []Standing {
	standings := make([]Standing, 0, len(players))
	for id, p := range players {
		standings = append(standings, Standing{
			PlayerID: id,
			Name:     p.Name,
			Score:    p.Score,
			joinedAt: p.JoinedAt,
		})
	}
	sort.Slice(standings, func(i, j int) bool {
		if standings[i].Score != standings[j].Score {
			return standings[i].Score > standings[j].Score
		}
		if standings[i].joinedAt != standings[j].joinedAt {
			return standings[i].joinedAt < standings[j].joinedAt
		}
		return standings[i].PlayerID < standings[j].PlayerID
	})
	for i := range standings {
		standings[i].Rank = i + 1
	}
	return standings
}
