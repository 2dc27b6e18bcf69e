package paynow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tamoortahir09/atlas-store/pkg/errors"
)

type stubRecords struct {
	items   []InventoryItem
	subs    []Subscription
	itemErr error
	subErr  error
}

func (s *stubRecords) GetInventory(ctx context.Context, token string) ([]InventoryItem, error) {
	return s.items, s.itemErr
}

func (s *stubRecords) GetSubscriptions(ctx context.Context, token string) ([]Subscription, error) {
	return s.subs, s.subErr
}

func TestVerifier_MatchesInventoryItem(t *testing.T) {
	v := &Verifier{records: &stubRecords{
		items: []InventoryItem{{ID: "inv-1", ProductID: "prod-gems-500"}},
	}}

	found, err := v.HasPurchase(context.Background(), "token", "prod-gems-500")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestVerifier_MatchesActiveSubscriptionOnly(t *testing.T) {
	v := &Verifier{records: &stubRecords{
		subs: []Subscription{
			{ID: "sub-1", ProductID: "prod-vip", Status: SubscriptionCanceled},
			{ID: "sub-2", ProductID: "prod-mvp", Status: SubscriptionActive},
		},
	}}

	found, err := v.HasPurchase(context.Background(), "token", "prod-vip")
	require.NoError(t, err)
	assert.False(t, found, "a canceled subscription is not a purchase")

	found, err = v.HasPurchase(context.Background(), "token", "prod-mvp")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestVerifier_EmptyRecordIsNotAnError(t *testing.T) {
	v := &Verifier{records: &stubRecords{
		itemErr: apperrors.NotFound("inventory", "token"),
		subErr:  apperrors.NotFound("subscriptions", "token"),
	}}

	found, err := v.HasPurchase(context.Background(), "token", "prod-vip")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestVerifier_PropagatesTransportFailure(t *testing.T) {
	v := &Verifier{records: &stubRecords{
		itemErr: apperrors.ServiceUnavailable("payment provider is unreachable"),
	}}

	_, err := v.HasPurchase(context.Background(), "token", "prod-vip")
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
}
