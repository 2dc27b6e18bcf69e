package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamoortahir09/atlas-store/internal/domain"
	apperrors "github.com/tamoortahir09/atlas-store/pkg/errors"
)

func setupTestRepo(t *testing.T) (*SessionRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSessionRepository(client, 24*time.Hour), mr
}

func sampleSession() *domain.StepperSession {
	return &domain.StepperSession{
		SessionID:       "sess-1",
		SteamID:         "76561198000000001",
		SelectedItemIDs: []string{"item-1", "item-2"},
		Steps: []domain.StepState{
			{ItemID: "item-1", PlanID: "prod-vip", PlanName: "VIP", PlanPrice: 9.99, Status: domain.StepCompleted, Subscription: true},
			{ItemID: "item-2", PlanID: "prod-mvp", PlanName: "MVP", PlanPrice: 14.99, Status: domain.StepPending, Subscription: true},
		},
		CurrentStepIndex: 1,
		StartedAt:        time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestSessionRepository_RoundTrip(t *testing.T) {
	repo, _ := setupTestRepo(t)
	ctx := context.Background()

	session := sampleSession()
	require.NoError(t, repo.SaveSession(ctx, session))

	got, err := repo.GetSession(ctx, session.SteamID)
	require.NoError(t, err)
	assert.Equal(t, session.SessionID, got.SessionID)
	assert.Equal(t, session.SelectedItemIDs, got.SelectedItemIDs)
	assert.Equal(t, session.CurrentStepIndex, got.CurrentStepIndex)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, domain.StepCompleted, got.Steps[0].Status)
	assert.Equal(t, domain.StepPending, got.Steps[1].Status)
}

func TestSessionRepository_GetMissing(t *testing.T) {
	repo, _ := setupTestRepo(t)

	_, err := repo.GetSession(context.Background(), "nobody")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSessionRepository_Delete(t *testing.T) {
	repo, mr := setupTestRepo(t)
	ctx := context.Background()

	session := sampleSession()
	require.NoError(t, repo.SaveSession(ctx, session))
	assert.True(t, mr.Exists("stepper:session:"+session.SteamID))

	require.NoError(t, repo.DeleteSession(ctx, session.SteamID))
	assert.False(t, mr.Exists("stepper:session:"+session.SteamID))

	// Deleting again is a no-op.
	assert.NoError(t, repo.DeleteSession(ctx, session.SteamID))
}

func TestSessionRepository_TTL(t *testing.T) {
	repo, mr := setupTestRepo(t)

	require.NoError(t, repo.SaveSession(context.Background(), sampleSession()))

	ttl := mr.TTL("stepper:session:76561198000000001")
	assert.True(t, ttl > 23*time.Hour, "expected TTL > 23h, got %v", ttl)
}
