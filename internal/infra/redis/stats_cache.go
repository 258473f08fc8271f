package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-stats-service/internal/domain"
)

// StatsCache stores one JSON snapshot per date (key stats:{date}). The TTL is
// several refresh periods long: entries should outlive a couple of failed
// refreshes so readers get stale data instead of a cold miss, while still
// expiring dates that have left the refresh window.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStatsCache(client *redis.Client, ttl time.Duration) *StatsCache {
	return &StatsCache{client: client, ttl: ttl}
}

func (c *StatsCache) Get(ctx context.Context, date string) (domain.DailyTally, bool, error) {
	raw, err := c.client.Get(ctx, c.key(date)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.DailyTally{}, false, nil
	}
	if err != nil {
		return domain.DailyTally{}, false, fmt.Errorf("cache get: %w", err)
	}
	var tally domain.DailyTally
	if err := json.Unmarshal(raw, &tally); err != nil {
		return domain.DailyTally{}, false, fmt.Errorf("cache decode: %w", err)
	}
	return tally, true, nil
}

func (c *StatsCache) Put(ctx context.Context, date string, tally domain.DailyTally) error {
	raw, err := json.Marshal(tally)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, c.key(date), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *StatsCache) key(date string) string {
	return "stats:" + date
}
