package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"trivia-stats-service/internal/app"
	"trivia-stats-service/internal/domain"
	"trivia-stats-service/internal/infra/memory"
)

func fastRetry() app.RetryPolicy {
	return app.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2}
}

func newOrchestrator(store app.ProfileStore, today string) *app.Orchestrator {
	return app.NewOrchestratorWithClock(store, fastRetry(), fixedClock(today))
}

func TestCompletePersistsDurably(t *testing.T) {
	ctx := context.Background()
	store := memory.NewProfileStore()
	orch := newOrchestrator(store, "2026-02-10")

	result, err := orch.Complete(ctx, "u1", completionOn("2026-02-10", 3))
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if result.Profile.CurrentStreak != 1 || result.Profile.TotalScore != 3 {
		t.Fatalf("unexpected result: %+v", result.Profile)
	}

	orch.Drain()
	persisted, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get persisted: %v", err)
	}
	if persisted.TotalScore != 3 || len(persisted.History) != 1 {
		t.Fatalf("durable state diverges: %+v", persisted)
	}
}

func TestOptimisticStateSurvivesStoreOutage(t *testing.T) {
	ctx := context.Background()
	store := &flakyProfileStore{inner: memory.NewProfileStore(), failPuts: true}
	orch := newOrchestrator(store, "2026-02-10")

	result, err := orch.Complete(ctx, "u1", completionOn("2026-02-10", 4))
	if err != nil {
		t.Fatalf("complete must not fail on write outage: %v", err)
	}
	if result.Profile.CurrentStreak != 1 {
		t.Fatalf("optimistic result missing: %+v", result.Profile)
	}
	orch.Drain()

	// Local state is the session's source of truth; the failed sync must not
	// roll it back.
	local, err := orch.Profile(ctx, "u1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if local.CurrentStreak != 1 || local.TotalScore != 4 {
		t.Fatalf("just-earned streak disappeared: %+v", local)
	}
	if store.puts.Load() != 3 {
		t.Fatalf("expected 3 put attempts, got %d", store.puts.Load())
	}
}

func TestReadOutageRecoveryFoldsDurableState(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewProfileStore()

	// A long-standing account: ten consecutive days already on record.
	seeded := domain.UserProfile{UserID: "u1"}
	start := mustParseDay("2026-01-26")
	for i := 0; i < 10; i++ {
		date := domain.DateKey(start.AddDate(0, 0, i))
		result, err := app.Reconcile(seeded, completionOn(date, 4), date)
		if err != nil {
			t.Fatalf("seed day %s: %v", date, err)
		}
		seeded = result.Profile
	}
	if err := inner.Put(ctx, "u1", seeded); err != nil {
		t.Fatalf("seed put: %v", err)
	}

	// The store is down for exactly the session's first read, so the
	// completion reconciles against a blank local profile. It recovers in
	// time for the background sync.
	store := &flakyProfileStore{inner: inner}
	store.failGets.Add(3)
	orch := newOrchestrator(store, "2026-02-10")
	if _, err := orch.Complete(ctx, "u1", completionOn("2026-02-10", 2)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	orch.Drain()

	// The sync must fold the durable document in before writing, not replace
	// ten days of history with the session's single entry.
	persisted, err := inner.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get persisted: %v", err)
	}
	if persisted.QuizzesTaken != 11 || len(persisted.History) != 11 {
		t.Fatalf("durable history clobbered: quizzes=%d history=%d", persisted.QuizzesTaken, len(persisted.History))
	}
	if persisted.TotalScore != seeded.TotalScore+2 {
		t.Fatalf("durable score clobbered: got %d, want %d", persisted.TotalScore, seeded.TotalScore+2)
	}
	if persisted.MaxStreak != 10 {
		t.Fatalf("max streak lost: %d", persisted.MaxStreak)
	}
	for _, b := range seeded.Badges {
		if !persisted.HasBadge(b.ID) {
			t.Fatalf("badge %s lost in recovery", b.ID)
		}
	}
	if persisted.EntryFor("2026-02-10") < 0 {
		t.Fatalf("session completion dropped: %+v", persisted.History)
	}
}

func TestConcurrentSameDateCompletionsCountOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewProfileStore()
	orch := newOrchestrator(store, "2026-02-10")

	// Two browser tabs submit the same date at once.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := orch.Complete(ctx, "u1", completionOn("2026-02-10", 3)); err != nil {
				t.Errorf("complete: %v", err)
			}
		}()
	}
	wg.Wait()
	orch.Drain()

	profile, err := orch.Profile(ctx, "u1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.QuizzesTaken != 1 || profile.TotalScore != 3 || len(profile.History) != 1 {
		t.Fatalf("race double counted: %+v", profile)
	}
}

func TestAnonymousCompletionMergesOnAttach(t *testing.T) {
	ctx := context.Background()
	store := memory.NewProfileStore()
	orch := newOrchestrator(store, "2026-02-10")

	result, err := orch.CompleteAnonymous("sess-1", completionOn("2026-02-10", 4))
	if err != nil {
		t.Fatalf("anonymous complete: %v", err)
	}
	if result.Profile.CurrentStreak != 1 || !result.Profile.HasBadge("first-quiz") {
		t.Fatalf("pending completion not computed: %+v", result.Profile)
	}
	if _, err := store.Get(ctx, "u1"); !errors.Is(err, domain.ErrProfileNotFound) {
		t.Fatalf("anonymous completion persisted early: %v", err)
	}

	merged, err := orch.Attach(ctx, "sess-1", "u1")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if merged.QuizzesTaken != 1 || merged.TotalScore != 4 || !merged.HasBadge("first-quiz") {
		t.Fatalf("merge lost pending state: %+v", merged)
	}

	orch.Drain()
	if _, err := store.Get(ctx, "u1"); err != nil {
		t.Fatalf("attached profile not persisted: %v", err)
	}
	if _, err := orch.Attach(ctx, "sess-1", "u1"); !errors.Is(err, domain.ErrNoPendingCompletion) {
		t.Fatalf("pending completion not discarded after merge: %v", err)
	}
}

func TestAttachMergesAdditivelyIntoExistingProfile(t *testing.T) {
	ctx := context.Background()
	store := memory.NewProfileStore()
	existing, err := app.Reconcile(domain.UserProfile{UserID: "u1"}, completionOn("2026-02-09", 2), "2026-02-09")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Put(ctx, "u1", existing.Profile); err != nil {
		t.Fatalf("seed put: %v", err)
	}

	orch := newOrchestrator(store, "2026-02-10")
	if _, err := orch.CompleteAnonymous("sess-1", completionOn("2026-02-10", 3)); err != nil {
		t.Fatalf("anonymous complete: %v", err)
	}
	merged, err := orch.Attach(ctx, "sess-1", "u1")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if merged.QuizzesTaken != 2 || merged.TotalScore != 5 {
		t.Fatalf("existing counters overwritten, not added to: %+v", merged)
	}
	if merged.CurrentStreak != 2 {
		t.Fatalf("merged streak not recomputed across both days: %d", merged.CurrentStreak)
	}
	orch.Drain()
}

func TestMarkSharedCountsOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewProfileStore()
	orch := newOrchestrator(store, "2026-02-10")

	if _, err := orch.Complete(ctx, "u1", completionOn("2026-02-10", 3)); err != nil {
		t.Fatalf("complete: %v", err)
	}

	badges, err := orch.MarkShared(ctx, "u1", "2026-02-10")
	if err != nil {
		t.Fatalf("share: %v", err)
	}
	if len(badges) != 1 || badges[0].ID != "first-share" {
		t.Fatalf("expected first-share unlock, got %+v", badges)
	}

	if badges, err = orch.MarkShared(ctx, "u1", "2026-02-10"); err != nil || badges != nil {
		t.Fatalf("second share must be a no-op, got badges=%v err=%v", badges, err)
	}
	profile, _ := orch.Profile(ctx, "u1")
	if profile.SharedCount != 1 {
		t.Fatalf("share double counted: %d", profile.SharedCount)
	}
	orch.Drain()
}

func TestFriendSummariesPruneDanglingReferences(t *testing.T) {
	ctx := context.Background()
	store := memory.NewProfileStore()
	orch := newOrchestrator(store, "2026-02-10")

	if _, err := orch.Complete(ctx, "u1", completionOn("2026-02-10", 3)); err != nil {
		t.Fatalf("complete u1: %v", err)
	}
	if _, err := orch.Complete(ctx, "u2", completionOn("2026-02-10", 4)); err != nil {
		t.Fatalf("complete u2: %v", err)
	}
	orch.Drain()
	if err := orch.AddFriend(ctx, "u1", "u2"); err != nil {
		t.Fatalf("add friend: %v", err)
	}
	// u1 also references a profile that never existed.
	if err := orch.AddFriend(ctx, "u1", "ghost"); err != nil {
		t.Fatalf("add ghost: %v", err)
	}

	summaries, err := orch.FriendSummaries(ctx, "u1")
	if err != nil {
		t.Fatalf("summaries: %v", err)
	}
	if len(summaries) != 1 || summaries[0].UserID != "u2" {
		t.Fatalf("expected only u2, got %+v", summaries)
	}

	orch.Drain()
	profile, err := orch.Profile(ctx, "u1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if len(profile.Friends) != 1 || profile.Friends[0] != "u2" {
		t.Fatalf("dangling reference not pruned: %+v", profile.Friends)
	}
}

type flakyProfileStore struct {
	inner    *memory.ProfileStore
	failPuts bool
	failGets atomicCounter
	puts     atomicCounter
}

func (s *flakyProfileStore) Get(ctx context.Context, userID string) (domain.UserProfile, error) {
	if s.failGets.DecIfPositive() {
		return domain.UserProfile{}, errors.New("profile store unreachable")
	}
	return s.inner.Get(ctx, userID)
}

func (s *flakyProfileStore) Put(ctx context.Context, userID string, p domain.UserProfile) error {
	s.puts.Add(1)
	if s.failPuts {
		return errors.New("profile store unreachable")
	}
	return s.inner.Put(ctx, userID, p)
}

type atomicCounter struct {
	mu sync.Mutex
	n  int
}

func (c *atomicCounter) Add(d int) {
	c.mu.Lock()
	c.n += d
	c.mu.Unlock()
}

func (c *atomicCounter) Load() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// DecIfPositive decrements and reports true while the counter is above zero.
func (c *atomicCounter) DecIfPositive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n <= 0 {
		return false
	}
	c.n--
	return true
}
