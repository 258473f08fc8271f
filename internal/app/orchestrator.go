package app

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"trivia-stats-service/internal/domain"
)

// ProfileStore is the durable per-user document backend. Put always carries
// the complete field set, so repeated delivery under retry is idempotent.
type ProfileStore interface {
	Get(ctx context.Context, userID string) (domain.UserProfile, error)
	Put(ctx context.Context, userID string, profile domain.UserProfile) error
}

// Orchestrator wraps Reconcile with I/O: the reconciled profile is applied to
// session-local state immediately (the user sees streak/badges/totals with
// zero latency) and persisted in the background with retries. Local state is
// authoritative for the session and is never rolled back on a failed write.
//
// Completions for a given user are serialized through a per-user lock so the
// idempotency check always runs against the latest state, even when two tabs
// race on the same date.
type Orchestrator struct {
	profiles ProfileStore
	retry    RetryPolicy
	clock    func() time.Time

	mu      sync.Mutex
	local   map[string]domain.UserProfile
	locks   map[string]*sync.Mutex
	pending map[string]domain.UserProfile
	// unseeded marks users whose durable document could not be read when the
	// session started. Their local state is session-only truth; it must be
	// folded into the durable document before any Put, never written over it.
	unseeded map[string]bool

	syncTimeout time.Duration
	wg          sync.WaitGroup
}

func NewOrchestrator(profiles ProfileStore, retry RetryPolicy) *Orchestrator {
	return &Orchestrator{
		profiles:    profiles,
		retry:       retry,
		clock:       time.Now,
		local:       make(map[string]domain.UserProfile),
		locks:       make(map[string]*sync.Mutex),
		pending:     make(map[string]domain.UserProfile),
		unseeded:    make(map[string]bool),
		syncTimeout: 30 * time.Second,
	}
}

// NewOrchestratorWithClock is test-only for deterministic "today" boundaries.
func NewOrchestratorWithClock(profiles ProfileStore, retry RetryPolicy, now func() time.Time) *Orchestrator {
	o := NewOrchestrator(profiles, retry)
	o.clock = now
	return o
}

// Complete reconciles a signed-in user's completion and kicks off the durable
// sync. The returned result reflects local state; persistence happens in the
// background and its failure is logged, never surfaced.
func (o *Orchestrator) Complete(ctx context.Context, userID string, c domain.Completion) (ReconcileResult, error) {
	if userID == "" {
		return ReconcileResult{}, domain.ErrInvalidCompletion
	}
	lock := o.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	profile, err := o.loadProfile(ctx, userID)
	if err != nil {
		return ReconcileResult{}, err
	}

	result, err := Reconcile(profile, c, domain.DateKey(o.clock()))
	if err != nil {
		return ReconcileResult{}, err
	}

	o.setLocal(userID, result.Profile)
	o.syncAsync(userID)
	return result, nil
}

// CompleteAnonymous reconciles a completion for a session with no account yet.
// The result is held as the session's pending completion until Attach.
func (o *Orchestrator) CompleteAnonymous(sessionID string, c domain.Completion) (ReconcileResult, error) {
	if sessionID == "" {
		return ReconcileResult{}, domain.ErrInvalidCompletion
	}
	o.mu.Lock()
	base := o.pending[sessionID]
	o.mu.Unlock()

	result, err := Reconcile(base, c, domain.DateKey(o.clock()))
	if err != nil {
		return ReconcileResult{}, err
	}

	o.mu.Lock()
	o.pending[sessionID] = result.Profile
	o.mu.Unlock()
	return result, nil
}

// Attach merges a session's pending completion into userID's profile once an
// account exists, additively so nothing already present is overwritten, then
// discards the pending state.
func (o *Orchestrator) Attach(ctx context.Context, sessionID, userID string) (domain.UserProfile, error) {
	o.mu.Lock()
	pending, ok := o.pending[sessionID]
	o.mu.Unlock()
	if !ok {
		return domain.UserProfile{}, domain.ErrNoPendingCompletion
	}

	lock := o.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	profile, err := o.loadProfile(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}

	merged := mergeProfiles(profile, pending, domain.DateKey(o.clock()))
	merged.UserID = userID

	o.setLocal(userID, merged)
	o.mu.Lock()
	delete(o.pending, sessionID)
	o.mu.Unlock()
	o.syncAsync(userID)
	return merged, nil
}

// AbandonSession drops any pending completion held for a session.
func (o *Orchestrator) AbandonSession(sessionID string) {
	o.mu.Lock()
	delete(o.pending, sessionID)
	o.mu.Unlock()
}

// MarkShared flags a history entry as shared, counts the share once, and
// re-evaluates badges against the new snapshot.
func (o *Orchestrator) MarkShared(ctx context.Context, userID, date string) ([]domain.Badge, error) {
	lock := o.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	profile, err := o.loadProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	idx := profile.EntryFor(date)
	if idx < 0 {
		return nil, domain.ErrInvalidCompletion
	}
	next := cloneProfile(profile)
	if next.History[idx].Shared {
		return nil, nil
	}
	next.History[idx].Shared = true
	next.SharedCount++

	newBadges := EvaluateBadges(next, domain.Stats{
		History:                next.History,
		CurrentStreak:          next.CurrentStreak,
		MaxStreak:              next.MaxStreak,
		TotalScore:             next.TotalScore,
		QuizzesTaken:           next.QuizzesTaken,
		TotalQuestionsAnswered: next.TotalQuestionsAnswered,
		SharedCount:            next.SharedCount,
		Latest:                 next.History[idx],
	}, date)
	next.Badges = append(next.Badges, newBadges...)

	o.setLocal(userID, next)
	o.syncAsync(userID)
	return newBadges, nil
}

// Profile returns the session-local profile when present, loading from the
// durable store otherwise.
func (o *Orchestrator) Profile(ctx context.Context, userID string) (domain.UserProfile, error) {
	lock := o.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	return o.loadProfile(ctx, userID)
}

// AddFriend links two users in both directions. If the second side's write
// fails after the first succeeded, the asymmetry is tolerated and self-heals
// when the dangling side is next read.
func (o *Orchestrator) AddFriend(ctx context.Context, userID, friendID string) error {
	if err := o.editFriends(ctx, userID, friendID, true); err != nil {
		return err
	}
	if err := o.editFriends(ctx, friendID, userID, true); err != nil {
		log.Printf("orchestrator: friend link %s->%s applied one-sided: %v", userID, friendID, err)
	}
	return nil
}

// RemoveFriend unlinks two users in both directions, tolerating half-failure
// the same way AddFriend does.
func (o *Orchestrator) RemoveFriend(ctx context.Context, userID, friendID string) error {
	if err := o.editFriends(ctx, userID, friendID, false); err != nil {
		return err
	}
	if err := o.editFriends(ctx, friendID, userID, false); err != nil {
		log.Printf("orchestrator: friend unlink %s->%s applied one-sided: %v", userID, friendID, err)
	}
	return nil
}

// FriendSummaries resolves a user's friend list. References to profiles that
// no longer exist are pruned from the list as they are discovered.
func (o *Orchestrator) FriendSummaries(ctx context.Context, userID string) ([]domain.FriendSummary, error) {
	lock := o.userLock(userID)
	lock.Lock()
	profile, err := o.loadProfile(ctx, userID)
	lock.Unlock()
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.FriendSummary, 0, len(profile.Friends))
	var dangling []string
	for _, friendID := range profile.Friends {
		var friend domain.UserProfile
		err := o.retry.Do(ctx, func(ctx context.Context) error {
			var err error
			friend, err = o.profiles.Get(ctx, friendID)
			if errors.Is(err, domain.ErrProfileNotFound) {
				return nil
			}
			return err
		})
		if err != nil {
			log.Printf("orchestrator: friend read %s abandoned: %v", friendID, err)
			continue
		}
		if friend.UserID == "" {
			dangling = append(dangling, friendID)
			continue
		}
		summaries = append(summaries, domain.FriendSummary{
			UserID:        friend.UserID,
			CurrentStreak: friend.CurrentStreak,
			MaxStreak:     friend.MaxStreak,
			TotalScore:    friend.TotalScore,
			QuizzesTaken:  friend.QuizzesTaken,
		})
	}

	if len(dangling) > 0 {
		lock.Lock()
		if current, err := o.loadProfile(ctx, userID); err == nil {
			next := cloneProfile(current)
			next.Friends = withoutAll(next.Friends, dangling)
			o.setLocal(userID, next)
			o.syncAsync(userID)
		}
		lock.Unlock()
	}
	return summaries, nil
}

// Drain blocks until all background syncs finish. Shutdown/test hook.
func (o *Orchestrator) Drain() {
	o.wg.Wait()
}

func (o *Orchestrator) editFriends(ctx context.Context, userID, friendID string, add bool) error {
	lock := o.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := o.seedLocked(ctx, userID); err != nil {
		return err
	}
	profile, err := o.loadExisting(ctx, userID)
	if err != nil {
		return err
	}
	next := cloneProfile(profile)
	next.UserID = userID
	if add {
		for _, f := range next.Friends {
			if f == friendID {
				return nil
			}
		}
		next.Friends = append(next.Friends, friendID)
	} else {
		next.Friends = withoutAll(next.Friends, []string{friendID})
	}
	o.setLocal(userID, next)

	// Friend edits are durable synchronously so both sides observe the same
	// outcome; the caller handles half-failure.
	return o.retry.Do(ctx, func(ctx context.Context) error {
		return o.profiles.Put(ctx, userID, next)
	})
}

func (o *Orchestrator) userLock(userID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[userID] = lock
	}
	return lock
}

// loadProfile prefers session-local state; the durable store is consulted only
// for the first touch of a user. A missing document yields a zeroed profile.
func (o *Orchestrator) loadProfile(ctx context.Context, userID string) (domain.UserProfile, error) {
	o.mu.Lock()
	profile, ok := o.local[userID]
	o.mu.Unlock()
	if ok {
		return profile, nil
	}

	var loaded domain.UserProfile
	err := o.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		loaded, err = o.profiles.Get(ctx, userID)
		if errors.Is(err, domain.ErrProfileNotFound) {
			loaded = domain.UserProfile{UserID: userID}
			return nil
		}
		return err
	})
	if err != nil {
		// The store is unreachable; start from a zeroed profile so the
		// session still works. The unseeded mark keeps background sync from
		// writing this zero-based state over the real durable document: it
		// must fold the durable state in first.
		log.Printf("orchestrator: profile read %s failed, starting local-only: %v", userID, err)
		loaded = domain.UserProfile{UserID: userID}
		o.mu.Lock()
		o.unseeded[userID] = true
		o.mu.Unlock()
	}
	o.setLocal(userID, loaded)
	return loaded, nil
}

// seed folds the durable document into an unseeded local profile. No-op for
// seeded users. Takes the per-user lock so a concurrent Complete cannot
// reconcile against the pre-fold state.
func (o *Orchestrator) seed(ctx context.Context, userID string) error {
	o.mu.Lock()
	needed := o.unseeded[userID]
	o.mu.Unlock()
	if !needed {
		return nil
	}
	lock := o.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	return o.seedLocked(ctx, userID)
}

// seedLocked is seed for callers already holding the per-user lock.
func (o *Orchestrator) seedLocked(ctx context.Context, userID string) error {
	o.mu.Lock()
	needed := o.unseeded[userID]
	snapshot := o.local[userID]
	o.mu.Unlock()
	if !needed {
		return nil
	}

	durable, err := o.profiles.Get(ctx, userID)
	if errors.Is(err, domain.ErrProfileNotFound) {
		durable = domain.UserProfile{UserID: userID}
	} else if err != nil {
		return err
	}

	merged := mergeProfiles(durable, snapshot, domain.DateKey(o.clock()))
	merged.UserID = userID
	o.mu.Lock()
	o.local[userID] = merged
	delete(o.unseeded, userID)
	o.mu.Unlock()
	return nil
}

// loadExisting is like loadProfile but propagates ErrProfileNotFound instead
// of synthesizing a zeroed profile. Friend edits must never conjure a profile
// for a user that was deleted or never existed.
func (o *Orchestrator) loadExisting(ctx context.Context, userID string) (domain.UserProfile, error) {
	o.mu.Lock()
	profile, ok := o.local[userID]
	o.mu.Unlock()
	if ok {
		return profile, nil
	}
	var loaded domain.UserProfile
	var notFound bool
	err := o.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		loaded, err = o.profiles.Get(ctx, userID)
		if errors.Is(err, domain.ErrProfileNotFound) {
			// Not transient; don't burn retries on it.
			notFound = true
			return nil
		}
		notFound = false
		return err
	})
	if err != nil {
		return domain.UserProfile{}, err
	}
	if notFound {
		return domain.UserProfile{}, domain.ErrProfileNotFound
	}
	o.setLocal(userID, loaded)
	return loaded, nil
}

func (o *Orchestrator) setLocal(userID string, profile domain.UserProfile) {
	o.mu.Lock()
	o.local[userID] = profile
	o.mu.Unlock()
}

// syncAsync persists the latest local snapshot in the background. The snapshot
// is re-read inside the attempt so retries always send the freshest complete
// field set; an exhausted retry ladder is logged and abandoned, never rolled
// back into local state.
func (o *Orchestrator) syncAsync(userID string) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), o.syncTimeout)
		defer cancel()
		err := o.retry.Do(ctx, func(ctx context.Context) error {
			if err := o.seed(ctx, userID); err != nil {
				return err
			}
			o.mu.Lock()
			snapshot := o.local[userID]
			o.mu.Unlock()
			return o.profiles.Put(ctx, userID, snapshot)
		})
		if err != nil {
			log.Printf("orchestrator: profile sync %s abandoned: %v", userID, err)
		}
	}()
}

// mergeProfiles folds a pending (anonymous) profile into an existing one
// additively: history entries for unseen dates are appended with their totals,
// badges are unioned, and the streak is recomputed from the merged history.
func mergeProfiles(existing, pending domain.UserProfile, today string) domain.UserProfile {
	merged := cloneProfile(existing)
	for _, e := range pending.History {
		if merged.EntryFor(e.Date) >= 0 {
			continue
		}
		merged.History = append(merged.History, e)
		merged.TotalScore += e.Score
		merged.QuizzesTaken++
		merged.TotalQuestionsAnswered += e.TotalQuestions
		if e.Shared {
			merged.SharedCount++
		}
	}
	for _, b := range pending.Badges {
		if !merged.HasBadge(b.ID) {
			merged.Badges = append(merged.Badges, b)
		}
	}
	for _, f := range pending.Friends {
		linked := false
		for _, have := range merged.Friends {
			if have == f {
				linked = true
				break
			}
		}
		if !linked {
			merged.Friends = append(merged.Friends, f)
		}
	}
	merged.CurrentStreak = StreakFrom(merged.History, today)
	if merged.CurrentStreak > merged.MaxStreak {
		merged.MaxStreak = merged.CurrentStreak
	}
	if pending.MaxStreak > merged.MaxStreak {
		merged.MaxStreak = pending.MaxStreak
	}
	return merged
}

func withoutAll(list []string, remove []string) []string {
	drop := make(map[string]bool, len(remove))
	for _, r := range remove {
		drop[r] = true
	}
	kept := list[:0]
	for _, v := range list {
		if !drop[v] {
			kept = append(kept, v)
		}
	}
	return kept
}
