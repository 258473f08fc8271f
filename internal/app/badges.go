package app

import (
	"trivia-stats-service/internal/domain"
)

// BadgeDef pairs a badge id with its unlock predicate. Predicates are pure
// boolean functions of accumulated statistics; evaluation order follows table
// order.
type BadgeDef struct {
	ID   string
	Test func(domain.Stats) bool
}

// BadgeTable is the fixed set of achievable badges.
var BadgeTable = []BadgeDef{
	{ID: "first-quiz", Test: func(s domain.Stats) bool {
		return s.QuizzesTaken >= 1
	}},
	{ID: "perfect-score", Test: func(s domain.Stats) bool {
		for _, e := range s.History {
			if e.TotalQuestions > 0 && e.Score == e.TotalQuestions {
				return true
			}
		}
		return false
	}},
	{ID: "streak-3", Test: func(s domain.Stats) bool {
		return s.MaxStreak >= 3
	}},
	{ID: "streak-7", Test: func(s domain.Stats) bool {
		return s.MaxStreak >= 7
	}},
	{ID: "streak-30", Test: func(s domain.Stats) bool {
		return s.MaxStreak >= 30
	}},
	{ID: "ten-quizzes", Test: func(s domain.Stats) bool {
		return s.QuizzesTaken >= 10
	}},
	{ID: "fifty-quizzes", Test: func(s domain.Stats) bool {
		return s.QuizzesTaken >= 50
	}},
	{ID: "night-owl", Test: func(s domain.Stats) bool {
		for _, e := range s.History {
			if !e.Timestamp.IsZero() && e.Timestamp.Hour() >= 22 {
				return true
			}
		}
		return false
	}},
	{ID: "early-bird", Test: func(s domain.Stats) bool {
		for _, e := range s.History {
			h := e.Timestamp.Hour()
			if !e.Timestamp.IsZero() && h >= 5 && h < 7 {
				return true
			}
		}
		return false
	}},
	{ID: "first-share", Test: func(s domain.Stats) bool {
		return s.SharedCount >= 1
	}},
}

// EvaluateBadges returns the badges newly unlocked by stats, tagged with the
// completion date. Already-held ids are skipped before their predicate runs,
// so re-evaluating an unchanged snapshot never re-awards anything.
func EvaluateBadges(profile domain.UserProfile, stats domain.Stats, date string) []domain.Badge {
	var unlocked []domain.Badge
	for _, def := range BadgeTable {
		if profile.HasBadge(def.ID) {
			continue
		}
		if def.Test(stats) {
			unlocked = append(unlocked, domain.Badge{ID: def.ID, UnlockedOn: date})
		}
	}
	return unlocked
}
