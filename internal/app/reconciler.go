package app

import (
	"time"

	"trivia-stats-service/internal/domain"
)

// ReconcileResult is the outcome of merging one completion into a profile.
type ReconcileResult struct {
	Profile          domain.UserProfile
	NewBadges        []domain.Badge
	AlreadyCompleted bool
}

// Reconcile merges a quiz completion into profile state. Pure: no I/O, input
// profile is never mutated. today is the calendar-day key streaks count back
// from; it comes from the same clock that keys DailyTally.
//
// A completion for a date already in history updates only that entry's
// duration and answers (re-opening a finished quiz re-records timing, never
// re-scores); otherwise the entry is appended and the once-per-date counters
// advance. The streak is always recomputed in full from history so that
// out-of-order backfills cannot corrupt it.
func Reconcile(profile domain.UserProfile, c domain.Completion, today string) (ReconcileResult, error) {
	if c.Date == "" || c.TotalQuestions <= 0 || len(c.Answers) != c.TotalQuestions {
		return ReconcileResult{}, domain.ErrInvalidCompletion
	}
	if c.Score < 0 || c.Score > c.TotalQuestions {
		return ReconcileResult{}, domain.ErrInvalidCompletion
	}

	next := cloneProfile(profile)

	idx := next.EntryFor(c.Date)
	already := idx >= 0
	if already {
		// Keep original score, totals, and timestamp; only timing and the
		// recorded answers may change on a repeat view.
		next.History[idx].DurationSeconds = c.DurationSeconds
		next.History[idx].Answers = append([]int(nil), c.Answers...)
	} else {
		next.History = append(next.History, domain.CompletionEntry{
			Date:            c.Date,
			Score:           c.Score,
			TotalQuestions:  c.TotalQuestions,
			Timestamp:       c.CompletedAt,
			DurationSeconds: c.DurationSeconds,
			Answers:         append([]int(nil), c.Answers...),
		})
		next.TotalScore += c.Score
		next.QuizzesTaken++
		next.TotalQuestionsAnswered += c.TotalQuestions
	}

	next.CurrentStreak = StreakFrom(next.History, today)
	if next.CurrentStreak > next.MaxStreak {
		next.MaxStreak = next.CurrentStreak
	}

	latest := next.History[len(next.History)-1]
	if already {
		latest = next.History[idx]
	}
	newBadges := EvaluateBadges(next, domain.Stats{
		History:                next.History,
		CurrentStreak:          next.CurrentStreak,
		MaxStreak:              next.MaxStreak,
		TotalScore:             next.TotalScore,
		QuizzesTaken:           next.QuizzesTaken,
		TotalQuestionsAnswered: next.TotalQuestionsAnswered,
		SharedCount:            next.SharedCount,
		Latest:                 latest,
	}, c.Date)
	next.Badges = append(next.Badges, newBadges...)

	return ReconcileResult{Profile: next, NewBadges: newBadges, AlreadyCompleted: already}, nil
}

// StreakFrom counts consecutive completed days ending at today, walking
// backward one calendar day at a time until the first gap. Zero is a valid
// streak: no entry for today and no trailing run.
func StreakFrom(history []domain.CompletionEntry, today string) int {
	day, err := time.Parse(domain.DateKeyFormat, today)
	if err != nil {
		return 0
	}
	completed := make(map[string]bool, len(history))
	for _, e := range history {
		completed[e.Date] = true
	}
	streak := 0
	for completed[day.Format(domain.DateKeyFormat)] {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}

func cloneProfile(p domain.UserProfile) domain.UserProfile {
	next := p
	next.History = make([]domain.CompletionEntry, len(p.History))
	copy(next.History, p.History)
	for i := range next.History {
		next.History[i].Answers = append([]int(nil), p.History[i].Answers...)
	}
	next.Badges = append([]domain.Badge(nil), p.Badges...)
	next.Friends = append([]string(nil), p.Friends...)
	return next
}
