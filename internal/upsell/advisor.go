package upsell

import (
	"sort"

	"github.com/tamoortahir09/atlas-store/internal/domain"
)

// ComputeOffers derives the contextual upsell offers for the current cart.
// Pure and deterministic: the same cart and catalog always produce the same
// offers in the same order (vip upgrades, then bundles, then gem upgrades).
func ComputeOffers(cart *domain.Cart, catalog *domain.Catalog) []domain.Offer {
	var offers []domain.Offer

	if offer := vipUpgradeOffer(cart, catalog); offer != nil {
		offers = append(offers, *offer)
	}
	offers = append(offers, bundleUpgradeOffers(cart, catalog)...)
	offers = append(offers, gemUpgradeOffers(cart, catalog)...)

	return offers
}

// vipUpgradeOffer emits a tier-upgrade offer when the cart holds the
// lowest-tier rank as a self purchase and higher purchasable tiers exist.
func vipUpgradeOffer(cart *domain.Cart, catalog *domain.Catalog) *domain.Offer {
	lowest := lowestTier(catalog)
	if lowest == nil || !lowest.Purchasable() {
		return nil
	}

	var target *domain.CartItem
	for i := range cart.Items {
		it := &cart.Items[i]
		if it.Type == domain.ItemTypeRank && !it.IsGift && it.PayNowProductID == lowest.PayNowProductID {
			target = it
			break
		}
	}
	if target == nil {
		return nil
	}

	var options []domain.TierOption
	for i := range catalog.Ranks {
		r := &catalog.Ranks[i]
		if r.Position <= lowest.Position || !r.Purchasable() {
			continue
		}
		options = append(options, domain.TierOption{
			Tier:            r.Tier,
			Name:            r.Name,
			PayNowProductID: r.PayNowProductID,
			Price:           r.Price,
			PriceDelta:      r.Price - target.Price,
		})
	}
	if len(options) == 0 {
		return nil
	}
	sort.Slice(options, func(i, j int) bool {
		return tierPosition(catalog, options[i].Tier) < tierPosition(catalog, options[j].Tier)
	})

	return &domain.Offer{
		ID:           "vip_upgrade:" + lowest.Tier,
		Type:         domain.OfferVIPUpgrade,
		Title:        "Upgrade your " + lowest.Name + " rank",
		TargetItemID: target.ID,
		Options:      options,
	}
}

// bundleUpgradeOffers emits one offer per purchasable bundle containing at
// least one self-purchase rank already in the cart, priced above those
// ranks. Bundles already accepted this session are skipped.
func bundleUpgradeOffers(cart *domain.Cart, catalog *domain.Catalog) []domain.Offer {
	var offers []domain.Offer

	for i := range catalog.Bundles {
		bundle := &catalog.Bundles[i]
		if !bundle.Purchasable() {
			continue
		}

		offerID := "bundle_upgrade:" + bundle.ID
		if cart.HasAcceptedOffer(offerID) {
			continue
		}

		included := make(map[string]bool, len(bundle.IncludedRankIDs))
		for _, id := range bundle.IncludedRankIDs {
			included[id] = true
		}

		var superseded []string
		var inCartSum float64
		inCart := make(map[string]bool)
		for j := range cart.Items {
			it := &cart.Items[j]
			if it.Type != domain.ItemTypeRank || it.IsGift || !included[it.PayNowProductID] {
				continue
			}
			superseded = append(superseded, it.ID)
			inCartSum += it.Price
			inCart[it.PayNowProductID] = true
		}
		if len(superseded) == 0 || bundle.Price <= inCartSum {
			continue
		}

		var extraRanks []string
		var fullSum float64
		for _, id := range bundle.IncludedRankIDs {
			rank := catalog.RankByProductID(id)
			if rank == nil {
				continue
			}
			fullSum += rank.Price
			if !inCart[id] {
				extraRanks = append(extraRanks, id)
			}
		}

		gemValue := float64(bundle.BonusGems) * catalog.CheapestGemRate()
		savings := fullSum + gemValue - bundle.Price

		offers = append(offers, domain.Offer{
			ID:              offerID,
			Type:            domain.OfferBundleUpgrade,
			Title:           "Upgrade to the " + bundle.Name,
			BundleID:        bundle.ID,
			BundlePrice:     bundle.Price,
			ExtraRankIDs:    extraRanks,
			SupersededItems: superseded,
			Savings:         savings,
		})
	}

	return offers
}

// gemUpgradeOffers emits one offer per gem item that has a larger
// purchasable package above it in the catalog.
func gemUpgradeOffers(cart *domain.Cart, catalog *domain.Catalog) []domain.Offer {
	var offers []domain.Offer

	for i := range cart.Items {
		it := &cart.Items[i]
		if it.Type != domain.ItemTypeGems {
			continue
		}

		current := catalog.GemPackageByProductID(it.PayNowProductID)
		if current == nil {
			continue
		}

		next := nextGemTier(catalog, current)
		if next == nil {
			continue
		}

		offers = append(offers, domain.Offer{
			ID:                "gem_upgrade:" + it.ID,
			Type:              domain.OfferGemUpgrade,
			Title:             "Get " + next.Name + " instead",
			TargetItemID:      it.ID,
			NextTierProductID: next.PayNowProductID,
			AdditionalCost:    next.Price - it.Price,
			AdditionalGems:    next.Amount - current.Amount,
		})
	}

	return offers
}

func lowestTier(catalog *domain.Catalog) *domain.Rank {
	var lowest *domain.Rank
	for i := range catalog.Ranks {
		r := &catalog.Ranks[i]
		if lowest == nil || r.Position < lowest.Position {
			lowest = r
		}
	}
	return lowest
}

func tierPosition(catalog *domain.Catalog, tier string) int {
	for i := range catalog.Ranks {
		if catalog.Ranks[i].Tier == tier {
			return catalog.Ranks[i].Position
		}
	}
	return int(^uint(0) >> 1)
}

// nextGemTier returns the smallest purchasable package strictly larger than
// current, or nil when current is already the largest.
func nextGemTier(catalog *domain.Catalog, current *domain.GemPackage) *domain.GemPackage {
	var next *domain.GemPackage
	for i := range catalog.GemPackages {
		g := &catalog.GemPackages[i]
		if !g.Purchasable() || g.Amount <= current.Amount {
			continue
		}
		if next == nil || g.Amount < next.Amount {
			next = g
		}
	}
	return next
}
