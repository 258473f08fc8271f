package memory

import (
	"context"
	"sync"

	"trivia-stats-service/internal/domain"
)

// CounterStore is an in-process CounterStore for dev runs and tests. A single
// mutex stands in for the backing store's atomic increment primitive.
type CounterStore struct {
	mu      sync.Mutex
	tallies map[string]*domain.DailyTally
}

func NewCounterStore() *CounterStore {
	return &CounterStore{tallies: make(map[string]*domain.DailyTally)}
}

func (s *CounterStore) IncrementAnswer(_ context.Context, date string, questionIndex, answerID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tallyLocked(date).AddAnswer(questionIndex, answerID, 1)
	return nil
}

func (s *CounterStore) IncrementScore(_ context.Context, date string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tallyLocked(date).AddScore(score, 1)
	return nil
}

func (s *CounterStore) ReadTally(_ context.Context, date string) (domain.DailyTally, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tally, ok := s.tallies[date]
	if !ok {
		return domain.NewDailyTally(), nil
	}
	// Copy so callers never alias the live counters.
	out := domain.NewDailyTally()
	for q, answers := range tally.AnswerCounts {
		for a, n := range answers {
			out.AddAnswer(q, a, n)
		}
	}
	for score, n := range tally.ScoreCounts {
		out.AddScore(score, n)
	}
	return out, nil
}

func (s *CounterStore) tallyLocked(date string) *domain.DailyTally {
	tally, ok := s.tallies[date]
	if !ok {
		t := domain.NewDailyTally()
		tally = &t
		s.tallies[date] = tally
	}
	return tally
}
