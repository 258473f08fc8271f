package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"trivia-stats-service/internal/domain"
)

// CounterStore is the authoritative tally backend on Redis hashes.
// Answer votes:  HINCRBY tally:{date}:answers q{questionIndex}:a{answerID} 1
// Final scores:  HINCRBY tally:{date}:scores  {score} 1
// HINCRBY is a single atomic read-modify-write, so concurrent voters need no
// locking and no increments are lost.
type CounterStore struct {
	client *redis.Client
}

func NewCounterStore(client *redis.Client) *CounterStore {
	return &CounterStore{client: client}
}

func (s *CounterStore) IncrementAnswer(ctx context.Context, date string, questionIndex, answerID int) error {
	field := fmt.Sprintf("q%d:a%d", questionIndex, answerID)
	if err := s.client.HIncrBy(ctx, s.answersKey(date), field, 1).Err(); err != nil {
		return fmt.Errorf("increment answer: %w", err)
	}
	return nil
}

func (s *CounterStore) IncrementScore(ctx context.Context, date string, score int) error {
	if err := s.client.HIncrBy(ctx, s.scoresKey(date), strconv.Itoa(score), 1).Err(); err != nil {
		return fmt.Errorf("increment score: %w", err)
	}
	return nil
}

// ReadTally reads every counter under a date. Missing hashes read as empty
// maps, so a day with no votes yet is an empty tally, not an error.
func (s *CounterStore) ReadTally(ctx context.Context, date string) (domain.DailyTally, error) {
	answers, err := s.client.HGetAll(ctx, s.answersKey(date)).Result()
	if err != nil {
		return domain.DailyTally{}, fmt.Errorf("read answer counts: %w", err)
	}
	scores, err := s.client.HGetAll(ctx, s.scoresKey(date)).Result()
	if err != nil {
		return domain.DailyTally{}, fmt.Errorf("read score counts: %w", err)
	}

	tally := domain.NewDailyTally()
	for field, raw := range answers {
		q, a, ok := parseAnswerField(field)
		if !ok {
			continue
		}
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			tally.AddAnswer(q, a, n)
		}
	}
	for field, raw := range scores {
		score, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			tally.AddScore(score, n)
		}
	}
	return tally, nil
}

func (s *CounterStore) answersKey(date string) string {
	return "tally:" + date + ":answers"
}

func (s *CounterStore) scoresKey(date string) string {
	return "tally:" + date + ":scores"
}

func parseAnswerField(field string) (questionIndex, answerID int, ok bool) {
	q, a, found := strings.Cut(field, ":")
	if !found || !strings.HasPrefix(q, "q") || !strings.HasPrefix(a, "a") {
		return 0, 0, false
	}
	qi, err := strconv.Atoi(q[1:])
	if err != nil {
		return 0, 0, false
	}
	ai, err := strconv.Atoi(a[1:])
	if err != nil {
		return 0, 0, false
	}
	return qi, ai, true
}
