package profile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/tamoortahir09/atlas-store/internal/atlas"
	"github.com/tamoortahir09/atlas-store/internal/domain"
	"github.com/tamoortahir09/atlas-store/internal/paynow"
	"github.com/tamoortahir09/atlas-store/pkg/cache"
)

// PayNowCustomer is the slice of the payment provider client the
// aggregator reads from.
type PayNowCustomer interface {
	GetCustomer(ctx context.Context, storeToken string) (*paynow.Customer, error)
	GetInventory(ctx context.Context, storeToken string) ([]paynow.InventoryItem, error)
	GetSubscriptions(ctx context.Context, storeToken string) ([]paynow.Subscription, error)
	CancelSubscription(ctx context.Context, storeToken, subscriptionID string) error
}

// AtlasClient reads gem balance and gem purchase history.
type AtlasClient interface {
	GetBalance(ctx context.Context, token string) (*atlas.Balance, error)
	GetPurchases(ctx context.Context, token string) ([]atlas.Purchase, error)
	GetOwnedItems(ctx context.Context, token string) ([]atlas.OwnedItem, error)
}

// CatalogProvider resolves display prices for inventory items.
type CatalogProvider interface {
	GetCatalog(ctx context.Context) (domain.Catalog, error)
}

// Service normalizes the payment provider's customer records into unified
// packages and transactions, and fronts the Atlas gem endpoints with
// short-lived per-user caches.
type Service struct {
	paynow  PayNowCustomer
	atlas   AtlasClient
	catalog CatalogProvider
	logger  *slog.Logger

	balances  *cache.Keyed[*atlas.Balance]
	purchases *cache.Keyed[[]atlas.Purchase]
	owned     *cache.Keyed[[]atlas.OwnedItem]
}

// NewService creates a profile service. cacheTTL bounds how stale the gem
// balance and purchase views may be.
func NewService(pn PayNowCustomer, at AtlasClient, catalog CatalogProvider, logger *slog.Logger, cacheTTL time.Duration) *Service {
	return &Service{
		paynow:  pn,
		atlas:   at,
		catalog: catalog,
		logger:  logger,
		balances: cache.NewKeyed(cacheTTL, func(ctx context.Context, token string) (*atlas.Balance, error) {
			return at.GetBalance(ctx, token)
		}),
		purchases: cache.NewKeyed(cacheTTL, func(ctx context.Context, token string) ([]atlas.Purchase, error) {
			return at.GetPurchases(ctx, token)
		}),
		owned: cache.NewKeyed(cacheTTL, func(ctx context.Context, token string) ([]atlas.OwnedItem, error) {
			return at.GetOwnedItems(ctx, token)
		}),
	}
}

// GetPackages returns the customer's holdings as one unified list: owned
// one-time products, gifts received, and recurring subscriptions.
// Subscription amounts arrive in minor units and are converted once;
// inventory prices are resolved from the merged catalog, which already
// carries display units.
func (s *Service) GetPackages(ctx context.Context, storeToken string) ([]domain.Package, error) {
	items, err := s.paynow.GetInventory(ctx, storeToken)
	if err != nil {
		return nil, fmt.Errorf("fetch inventory: %w", err)
	}
	subs, err := s.paynow.GetSubscriptions(ctx, storeToken)
	if err != nil {
		return nil, fmt.Errorf("fetch subscriptions: %w", err)
	}

	catalog, err := s.catalog.GetCatalog(ctx)
	if err != nil {
		// Inventory prices degrade to zero rather than failing the whole
		// profile view.
		s.logger.WarnContext(ctx, "catalog unavailable for price resolution",
			slog.String("error", err.Error()),
		)
		catalog = domain.Catalog{}
	}

	packages := make([]domain.Package, 0, len(items)+len(subs))
	for _, item := range items {
		kind := domain.PackageOneTime
		if item.GiftedBy != "" {
			kind = domain.PackageGift
		}
		price, _ := catalog.PriceByProductID(item.ProductID)
		packages = append(packages, domain.Package{
			ID:         item.ID,
			Kind:       kind,
			Name:       item.ProductName,
			ProductID:  item.ProductID,
			Price:      price,
			Active:     item.State == paynow.InventoryActive,
			GiftedBy:   item.GiftedBy,
			AcquiredAt: item.AddedAt,
		})
	}
	for _, sub := range subs {
		packages = append(packages, domain.Package{
			ID:            sub.ID,
			Kind:          domain.PackageSubscription,
			Name:          sub.ProductName,
			ProductID:     sub.ProductID,
			Price:         minorToDecimal(sub.Amount),
			Currency:      sub.Currency,
			Active:        sub.Status == paynow.SubscriptionActive,
			AcquiredAt:    sub.CreatedAt,
			NextBillingAt: sub.NextBillingAt,
		})
	}

	sort.SliceStable(packages, func(i, j int) bool {
		return packages[i].AcquiredAt.After(packages[j].AcquiredAt)
	})
	return packages, nil
}

// GetTransactions returns the purchase history view, newest first.
func (s *Service) GetTransactions(ctx context.Context, storeToken string) ([]domain.Transaction, error) {
	packages, err := s.GetPackages(ctx, storeToken)
	if err != nil {
		return nil, err
	}

	transactions := make([]domain.Transaction, 0, len(packages))
	for _, pkg := range packages {
		transactions = append(transactions, domain.Transaction{
			ID:       pkg.ID,
			Kind:     pkg.Kind,
			Name:     pkg.Name,
			Amount:   pkg.Price,
			Currency: pkg.Currency,
			Date:     pkg.AcquiredAt,
		})
	}
	return transactions, nil
}

// GetCustomer returns the provider's customer record for the signed-in user.
func (s *Service) GetCustomer(ctx context.Context, storeToken string) (*paynow.Customer, error) {
	return s.paynow.GetCustomer(ctx, storeToken)
}

// CancelSubscription cancels a recurring plan with the provider.
func (s *Service) CancelSubscription(ctx context.Context, storeToken, subscriptionID string) error {
	if err := s.paynow.CancelSubscription(ctx, storeToken, subscriptionID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "subscription cancelled",
		slog.String("subscription_id", subscriptionID),
	)
	return nil
}

// GemBalance returns the user's gem balance, cached per token.
func (s *Service) GemBalance(ctx context.Context, token string) (*atlas.Balance, error) {
	return s.balances.Get(ctx, token)
}

// GemPurchases returns the user's gem purchase ledger, cached per token.
func (s *Service) GemPurchases(ctx context.Context, token string) ([]atlas.Purchase, error) {
	return s.purchases.Get(ctx, token)
}

// OwnedItems returns the gem-bought items the user owns, cached per token.
func (s *Service) OwnedItems(ctx context.Context, token string) ([]atlas.OwnedItem, error) {
	return s.owned.Get(ctx, token)
}

// InvalidateGems drops the cached gem views for a user, forcing the next
// read to hit Atlas.
func (s *Service) InvalidateGems(token string) {
	s.balances.Invalidate(token)
	s.purchases.Invalidate(token)
	s.owned.Invalidate(token)
}

func minorToDecimal(amount int64) float64 {
	return float64(amount) / 100
}
