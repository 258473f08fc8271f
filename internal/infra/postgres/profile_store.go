package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-stats-service/internal/domain"
)

// ProfileStore keeps one JSONB document per user. Put upserts the complete
// document, which makes at-least-once delivery under retry safe: re-sending
// the same field set is a no-op.
type ProfileStore struct {
	pool *pgxpool.Pool
}

func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

func (s *ProfileStore) Get(ctx context.Context, userID string) (domain.UserProfile, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM profiles WHERE id=$1`, userID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserProfile{}, domain.ErrProfileNotFound
	}
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("load profile: %w", err)
	}
	var profile domain.UserProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return domain.UserProfile{}, fmt.Errorf("unmarshal profile: %w", err)
	}
	return profile, nil
}

func (s *ProfileStore) Put(ctx context.Context, userID string, profile domain.UserProfile) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO profiles (id, data, updated_at) VALUES ($1, $2::jsonb, now())
		 ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data, updated_at=now()`,
		userID, raw)
	if err != nil {
		return fmt.Errorf("store profile: %w", err)
	}
	return nil
}
