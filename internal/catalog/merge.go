package catalog

import (
	"github.com/tamoortahir09/atlas-store/internal/domain"
	"github.com/tamoortahir09/atlas-store/internal/paynow"
)

// LocalConfig is the locally maintained product configuration merged with
// live store pricing.
type LocalConfig struct {
	Ranks       []domain.RankConfig
	GemPackages []domain.GemConfig
	Bundles     []domain.BundleConfig
}

// Merge combines local product configuration with the live store listing.
// Matching is by store product id only; a descriptor whose product is
// missing from the listing keeps its local data and stays non-purchasable.
// Remote amounts are in minor units and are converted to decimal display
// units here.
func Merge(local LocalConfig, products []paynow.StoreProduct) domain.Catalog {
	byID := make(map[string]*paynow.StoreProduct, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	catalog := domain.Catalog{
		Ranks:       make([]domain.Rank, 0, len(local.Ranks)),
		GemPackages: make([]domain.GemPackage, 0, len(local.GemPackages)),
		Bundles:     make([]domain.Bundle, 0, len(local.Bundles)),
	}

	for _, cfg := range local.Ranks {
		rank := domain.Rank{
			Tier:     cfg.Tier,
			Name:     cfg.Name,
			Position: cfg.Position,
			Benefits: cfg.Benefits,
		}
		if product, ok := byID[cfg.PayNowProductID]; ok {
			applyPricing(product, &rank.Price, &rank.OriginalPrice, &rank.Currency, &rank.ImageURL)
			rank.PayNowProductID = product.ID
		}
		catalog.Ranks = append(catalog.Ranks, rank)
	}

	for _, cfg := range local.GemPackages {
		pkg := domain.GemPackage{
			Amount: cfg.Amount,
			Name:   cfg.Name,
		}
		if product, ok := byID[cfg.PayNowProductID]; ok {
			applyPricing(product, &pkg.Price, &pkg.OriginalPrice, &pkg.Currency, &pkg.ImageURL)
			pkg.PayNowProductID = product.ID
		}
		catalog.GemPackages = append(catalog.GemPackages, pkg)
	}

	for _, cfg := range local.Bundles {
		bundle := domain.Bundle{
			ID:              cfg.ID,
			Name:            cfg.Name,
			IncludedRankIDs: cfg.IncludedRankIDs,
			BonusGems:       cfg.BonusGems,
		}
		if product, ok := byID[cfg.PayNowProductID]; ok {
			applyPricing(product, &bundle.Price, &bundle.OriginalPrice, &bundle.Currency, &bundle.ImageURL)
			bundle.PayNowProductID = product.ID
		}
		catalog.Bundles = append(catalog.Bundles, bundle)
	}

	return catalog
}

// applyPricing copies identity and pricing fields from a store product onto
// a merged entry. OriginalPrice is set only when an active sale lowers the
// price below the base price.
func applyPricing(product *paynow.StoreProduct, price *float64, originalPrice **float64, currency, imageURL *string) {
	*currency = product.Currency
	*imageURL = product.ImageURL

	base := minorToDecimal(product.Price)
	*price = base

	if product.Pricing != nil && product.Pricing.SaleActive && product.Pricing.SalePrice > 0 && product.Pricing.SalePrice != product.Price {
		*price = minorToDecimal(product.Pricing.SalePrice)
		orig := base
		*originalPrice = &orig
	}
}

func minorToDecimal(amount int64) float64 {
	return float64(amount) / 100
}
