package domain

import "time"

// DateKeyFormat is the layout for calendar-day keys. Every component that
// needs "today" derives it through DateKey so tallies, streaks, and cache
// entries agree on the same day boundary (server reference clock, UTC).
const DateKeyFormat = "2006-01-02"

// QuestionsPerQuiz is the fixed daily quiz length.
const QuestionsPerQuiz = 4

// DateKey formats t as a calendar-day key.
func DateKey(t time.Time) string {
	return t.UTC().Format(DateKeyFormat)
}

// DailyTally aggregates how everyone answered on one calendar day.
type DailyTally struct {
	// AnswerCounts maps question index -> answer id -> vote count.
	AnswerCounts map[int]map[int]int64 `json:"answerCounts"`
	// ScoreCounts maps final score -> count of users finishing with it.
	ScoreCounts map[int]int64 `json:"scoreCounts"`
}

// NewDailyTally returns an empty tally with initialized maps.
func NewDailyTally() DailyTally {
	return DailyTally{
		AnswerCounts: make(map[int]map[int]int64),
		ScoreCounts:  make(map[int]int64),
	}
}

// AddAnswer bumps the count for (questionIndex, answerID), creating keys lazily.
func (t *DailyTally) AddAnswer(questionIndex, answerID int, n int64) {
	if t.AnswerCounts == nil {
		t.AnswerCounts = make(map[int]map[int]int64)
	}
	if t.AnswerCounts[questionIndex] == nil {
		t.AnswerCounts[questionIndex] = make(map[int]int64)
	}
	t.AnswerCounts[questionIndex][answerID] += n
}

// AddScore bumps the count for a final score, creating the key lazily.
func (t *DailyTally) AddScore(score int, n int64) {
	if t.ScoreCounts == nil {
		t.ScoreCounts = make(map[int]int64)
	}
	t.ScoreCounts[score] += n
}

// IsEmpty reports whether the tally holds no counts at all.
func (t DailyTally) IsEmpty() bool {
	return len(t.AnswerCounts) == 0 && len(t.ScoreCounts) == 0
}

// CompletionEntry is one finished quiz in a user's history.
type CompletionEntry struct {
	Date            string    `json:"date"`
	Score           int       `json:"score"`
	TotalQuestions  int       `json:"totalQuestions"`
	Timestamp       time.Time `json:"timestamp"`
	DurationSeconds int       `json:"durationSeconds"`
	Answers         []int     `json:"answers"`
	Shared          bool      `json:"shared"`
}

// Badge is a one-time achievement; once unlocked it is never revoked.
type Badge struct {
	ID         string `json:"id"`
	UnlockedOn string `json:"unlockedOn"`
}

// UserProfile is the durable per-user document.
type UserProfile struct {
	UserID                 string            `json:"userId"`
	History                []CompletionEntry `json:"history"`
	CurrentStreak          int               `json:"currentStreak"`
	MaxStreak              int               `json:"maxStreak"`
	Badges                 []Badge           `json:"badges"`
	TotalScore             int               `json:"totalScore"`
	QuizzesTaken           int               `json:"quizzesTaken"`
	TotalQuestionsAnswered int               `json:"totalQuestionsAnswered"`
	SharedCount            int               `json:"sharedCount"`
	Friends                []string          `json:"friends,omitempty"`
}

// HasBadge reports whether the profile already holds a badge id.
func (p UserProfile) HasBadge(id string) bool {
	for _, b := range p.Badges {
		if b.ID == id {
			return true
		}
	}
	return false
}

// EntryFor returns the index of the history entry for date, or -1.
func (p UserProfile) EntryFor(date string) int {
	for i := range p.History {
		if p.History[i].Date == date {
			return i
		}
	}
	return -1
}

// Completion is the input to reconciliation: one finished (or re-opened) quiz.
type Completion struct {
	Date            string
	Score           int
	TotalQuestions  int
	DurationSeconds int
	Answers         []int
	CompletedAt     time.Time
}

// Stats is the canonical snapshot badge predicates are evaluated against.
type Stats struct {
	History                []CompletionEntry
	CurrentStreak          int
	MaxStreak              int
	TotalScore             int
	QuizzesTaken           int
	TotalQuestionsAnswered int
	SharedCount            int
	// Latest is the completion entry that triggered this evaluation.
	Latest CompletionEntry
}

// FriendSummary is the slim view of a friend's profile used for comparison.
type FriendSummary struct {
	UserID        string `json:"userId"`
	CurrentStreak int    `json:"currentStreak"`
	MaxStreak     int    `json:"maxStreak"`
	TotalScore    int    `json:"totalScore"`
	QuizzesTaken  int    `json:"quizzesTaken"`
}
