package memory

import (
	"context"
	"encoding/json"
	"sync"

	"trivia-stats-service/internal/domain"
)

// ProfileStore keeps profile documents in process memory, serialized so
// callers never share state with the store. Dev/test stand-in for postgres.
type ProfileStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewProfileStore() *ProfileStore {
	return &ProfileStore{docs: make(map[string][]byte)}
}

func (s *ProfileStore) Get(_ context.Context, userID string) (domain.UserProfile, error) {
	s.mu.RLock()
	raw, ok := s.docs[userID]
	s.mu.RUnlock()
	if !ok {
		return domain.UserProfile{}, domain.ErrProfileNotFound
	}
	var profile domain.UserProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return domain.UserProfile{}, err
	}
	return profile, nil
}

func (s *ProfileStore) Put(_ context.Context, userID string, profile domain.UserProfile) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.docs[userID] = raw
	s.mu.Unlock()
	return nil
}
