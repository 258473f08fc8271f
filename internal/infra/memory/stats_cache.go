package memory

import (
	"context"
	"encoding/json"
	"sync"

	"trivia-stats-service/internal/domain"
)

// StatsCache keeps serialized tally snapshots in process memory. Entries are
// only ever overwritten by a refresh pass, never expired: stale-but-present
// beats absent for the read path.
type StatsCache struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewStatsCache() *StatsCache {
	return &StatsCache{entries: make(map[string][]byte)}
}

func (c *StatsCache) Get(_ context.Context, date string) (domain.DailyTally, bool, error) {
	c.mu.RLock()
	raw, ok := c.entries[date]
	c.mu.RUnlock()
	if !ok {
		return domain.DailyTally{}, false, nil
	}
	var tally domain.DailyTally
	if err := json.Unmarshal(raw, &tally); err != nil {
		return domain.DailyTally{}, false, err
	}
	return tally, true, nil
}

func (c *StatsCache) Put(_ context.Context, date string, tally domain.DailyTally) error {
	raw, err := json.Marshal(tally)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.entries[date] = raw
	c.mu.Unlock()
	return nil
}
