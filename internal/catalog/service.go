package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tamoortahir09/atlas-store/internal/domain"
	"github.com/tamoortahir09/atlas-store/internal/paynow"
	"github.com/tamoortahir09/atlas-store/pkg/cache"
)

// ProductLister fetches the live storefront listing.
type ProductLister interface {
	GetStoreProducts(ctx context.Context) ([]paynow.StoreProduct, error)
}

// Service serves the merged catalog. The merged view is cached globally
// (it carries nothing user-specific) with a short freshness window, and
// concurrent refreshes collapse into a single provider request.
type Service struct {
	local    LocalConfig
	resource *cache.Resource[domain.Catalog]
	logger   *slog.Logger
}

// NewService creates a catalog service over the given product lister.
func NewService(local LocalConfig, lister ProductLister, freshness time.Duration, logger *slog.Logger) *Service {
	s := &Service{
		local:  local,
		logger: logger,
	}
	s.resource = cache.NewResource(freshness, func(ctx context.Context) (domain.Catalog, error) {
		products, err := lister.GetStoreProducts(ctx)
		if err != nil {
			return domain.Catalog{}, fmt.Errorf("fetch store products: %w", err)
		}

		merged := Merge(s.local, products)
		logger.DebugContext(ctx, "catalog refreshed",
			slog.Int("store_products", len(products)),
			slog.Int("ranks", len(merged.Ranks)),
			slog.Int("gem_packages", len(merged.GemPackages)),
			slog.Int("bundles", len(merged.Bundles)),
		)
		return merged, nil
	})
	return s
}

// GetCatalog returns the merged catalog, refreshing it when stale.
func (s *Service) GetCatalog(ctx context.Context) (domain.Catalog, error) {
	return s.resource.Get(ctx)
}

// Invalidate discards the cached catalog so the next read refetches pricing.
func (s *Service) Invalidate() {
	s.resource.Invalidate()
}
