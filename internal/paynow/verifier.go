package paynow

import (
	"context"
	"errors"

	apperrors "github.com/tamoortahir09/atlas-store/pkg/errors"
)

// customerRecords is the slice of Client the verifier needs.
type customerRecords interface {
	GetInventory(ctx context.Context, storeToken string) ([]InventoryItem, error)
	GetSubscriptions(ctx context.Context, storeToken string) ([]Subscription, error)
}

// Verifier resolves ambiguous checkout outcomes by checking whether a
// product shows up in the customer's own purchase record. One-time
// purchases land in the inventory; recurring plans show up as an active
// subscription.
type Verifier struct {
	records customerRecords
}

// NewVerifier creates a purchase verifier over the given client.
func NewVerifier(client *Client) *Verifier {
	return &Verifier{records: client}
}

// HasPurchase reports whether the customer's record contains the given
// store product. An empty record on either endpoint is not an error; only
// transport and auth failures are.
func (v *Verifier) HasPurchase(ctx context.Context, storeToken, productID string) (bool, error) {
	items, err := v.records.GetInventory(ctx, storeToken)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return false, err
	}
	for _, item := range items {
		if item.ProductID == productID {
			return true, nil
		}
	}

	subs, err := v.records.GetSubscriptions(ctx, storeToken)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return false, err
	}
	for _, sub := range subs {
		if sub.ProductID == productID && sub.Status == SubscriptionActive {
			return true, nil
		}
	}
	return false, nil
}
