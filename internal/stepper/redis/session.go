package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tamoortahir09/atlas-store/internal/domain"
	apperrors "github.com/tamoortahir09/atlas-store/pkg/errors"
)

const keyPrefix = "stepper:session:"

// SessionRepository implements stepper.Repository using Redis. Each session
// is one JSON blob; every transition rewrites the whole blob so a restore
// never observes a torn state.
type SessionRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionRepository creates a new Redis-backed session repository.
func NewSessionRepository(client *redis.Client, ttl time.Duration) *SessionRepository {
	return &SessionRepository{
		client: client,
		ttl:    ttl,
	}
}

// GetSession retrieves the persisted session for a steam id.
func (r *SessionRepository) GetSession(ctx context.Context, steamID string) (*domain.StepperSession, error) {
	data, err := r.client.Get(ctx, keyPrefix+steamID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("stepper session", steamID)
		}
		return nil, fmt.Errorf("redis get stepper session: %w", err)
	}

	var session domain.StepperSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal stepper session: %w", err)
	}

	return &session, nil
}

// SaveSession persists the session with the configured TTL.
func (r *SessionRepository) SaveSession(ctx context.Context, session *domain.StepperSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal stepper session: %w", err)
	}

	if err := r.client.Set(ctx, keyPrefix+session.SteamID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set stepper session: %w", err)
	}

	return nil
}

// DeleteSession removes the persisted session.
func (r *SessionRepository) DeleteSession(ctx context.Context, steamID string) error {
	if err := r.client.Del(ctx, keyPrefix+steamID).Err(); err != nil {
		return fmt.Errorf("redis del stepper session: %w", err)
	}
	return nil
}
