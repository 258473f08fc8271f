package app

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"trivia-stats-service/internal/domain"
)

// CounterStore is the authoritative tally backend (atomic increments, full
// reads by date). Implementations: redis hashes, in-memory for dev/tests.
type CounterStore interface {
	IncrementAnswer(ctx context.Context, date string, questionIndex, answerID int) error
	IncrementScore(ctx context.Context, date string, score int) error
	ReadTally(ctx context.Context, date string) (domain.DailyTally, error)
}

// StatsCache is the read-optimized snapshot store fronting high-fanout reads.
type StatsCache interface {
	Get(ctx context.Context, date string) (domain.DailyTally, bool, error)
	Put(ctx context.Context, date string, tally domain.DailyTally) error
}

// TallyWriter issues one atomic increment per answer selection and per
// finished-quiz score. Calls are fire-and-forget: a missed tally is acceptable
// loss and must never block the quiz flow, so failures are logged and dropped.
type TallyWriter struct {
	counters CounterStore
	timeout  time.Duration
	wg       sync.WaitGroup
}

func NewTallyWriter(counters CounterStore) *TallyWriter {
	return &TallyWriter{counters: counters, timeout: 5 * time.Second}
}

// RecordVote counts one answer selection. Returns immediately.
func (w *TallyWriter) RecordVote(date string, questionIndex, answerID int) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		if err := w.counters.IncrementAnswer(ctx, date, questionIndex, answerID); err != nil {
			log.Printf("tally: vote increment dropped for %s q%d a%d: %v", date, questionIndex, answerID, err)
		}
	}()
}

// RecordScore counts one finished quiz at its final score. Returns immediately.
func (w *TallyWriter) RecordScore(date string, score int) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		if err := w.counters.IncrementScore(ctx, date, score); err != nil {
			log.Printf("tally: score increment dropped for %s score=%d: %v", date, score, err)
		}
	}()
}

// Drain blocks until all in-flight increments have settled. Used on shutdown
// and in tests; normal callers never wait.
func (w *TallyWriter) Drain() {
	w.wg.Wait()
}

// StatsService is the exclusive read path for tallies plus the scheduled
// refresh that keeps the edge cache within one period of the counter store.
type StatsService struct {
	cache           StatsCache
	counters        CounterStore
	fallbackTimeout time.Duration
	clock           func() time.Time
	sf              singleflight.Group
}

func NewStatsService(cache StatsCache, counters CounterStore, fallbackTimeout time.Duration) *StatsService {
	if fallbackTimeout <= 0 {
		fallbackTimeout = 2 * time.Second
	}
	return &StatsService{
		cache:           cache,
		counters:        counters,
		fallbackTimeout: fallbackTimeout,
		clock:           time.Now,
	}
}

// NewStatsServiceWithClock is test-only for deterministic refresh windows.
func NewStatsServiceWithClock(cache StatsCache, counters CounterStore, fallbackTimeout time.Duration, now func() time.Time) *StatsService {
	s := NewStatsService(cache, counters, fallbackTimeout)
	s.clock = now
	return s
}

// FetchStats returns the tally for a date: cache first, direct counter read on
// miss, empty tally when both fail. It never returns an error; the stats view
// degrades to "no data yet" rather than failing the page.
func (s *StatsService) FetchStats(ctx context.Context, date string) domain.DailyTally {
	tally, ok, err := s.cache.Get(ctx, date)
	if err == nil && ok {
		return tally
	}
	if err != nil {
		log.Printf("stats: cache read for %s failed, falling back: %v", date, err)
	}

	// Collapse concurrent cold-date fallbacks into one authoritative read.
	result, err, _ := s.sf.Do(date, func() (interface{}, error) {
		if tally, ok, err := s.cache.Get(ctx, date); err == nil && ok {
			return tally, nil
		}
		fbCtx, cancel := context.WithTimeout(ctx, s.fallbackTimeout)
		defer cancel()
		return s.counters.ReadTally(fbCtx, date)
	})
	if err != nil {
		log.Printf("stats: fallback read for %s failed, serving empty: %v", date, err)
		return domain.NewDailyTally()
	}
	return result.(domain.DailyTally)
}

// RefreshWindow returns the date keys a refresh pass covers: yesterday, today,
// and tomorrow relative to now, tolerating client/server clock skew.
func RefreshWindow(now time.Time) []string {
	return []string{
		domain.DateKey(now.AddDate(0, 0, -1)),
		domain.DateKey(now),
		domain.DateKey(now.AddDate(0, 0, 1)),
	}
}

// Refresh copies the window's tallies from the counter store into the cache.
// A failed authoritative read leaves that date's cache entry untouched:
// stale-but-present beats absent. Last refresh wins; no merge is needed since
// the counter store is authoritative.
func (s *StatsService) Refresh(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, date := range RefreshWindow(s.clock()) {
		date := date
		g.Go(func() error {
			tally, err := s.counters.ReadTally(ctx, date)
			if err != nil {
				log.Printf("stats: refresh read for %s failed, keeping cached entry: %v", date, err)
				return nil
			}
			if err := s.cache.Put(ctx, date, tally); err != nil {
				log.Printf("stats: refresh write for %s failed: %v", date, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// RunRefreshLoop runs Refresh on a fixed period until ctx is canceled.
func (s *StatsService) RunRefreshLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = s.Refresh(ctx)
		case <-ctx.Done():
			return
		}
	}
}
