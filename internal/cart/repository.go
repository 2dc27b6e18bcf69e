package cart

import (
	"context"

	"github.com/tamoortahir09/atlas-store/internal/domain"
)

// Repository defines the persistence contract for carts. Carts are scoped
// to a browsing session per steam id, not long-lived account state.
type Repository interface {
	// Get retrieves the cart for a steam id. Returns ErrNotFound when none exists.
	Get(ctx context.Context, steamID string) (*domain.Cart, error)

	// Save persists the cart unconditionally.
	Save(ctx context.Context, cart *domain.Cart) error

	// SaveIfVersion persists the cart only if the stored version still equals
	// expectedVersion, incrementing the version on success. Returns false
	// when the cart was modified concurrently.
	SaveIfVersion(ctx context.Context, cart *domain.Cart, expectedVersion int) (bool, error)

	// Delete removes the cart. Deleting a missing cart is not an error.
	Delete(ctx context.Context, steamID string) error

	// AddCompletedItems records item ids purchased during the active basket
	// visit. Tracked separately from the cart so a purchased item can still
	// be shown and then explicitly dismissed.
	AddCompletedItems(ctx context.Context, steamID string, itemIDs []string) error

	// CompletedItemIDs returns the recorded purchased item ids.
	CompletedItemIDs(ctx context.Context, steamID string) ([]string, error)

	// RemoveCompletedItem dismisses one purchased item id.
	RemoveCompletedItem(ctx context.Context, steamID, itemID string) error
}
