package domain

// RankConfig is the locally defined descriptor for one rank tier. Pricing
// and identity come from the remote store product it maps to.
type RankConfig struct {
	Tier            string   `json:"tier"`
	Name            string   `json:"name"`
	Position        int      `json:"position"`
	PayNowProductID string   `json:"paynow_product_id"`
	Benefits        []string `json:"benefits"`
}

// GemConfig is the locally defined descriptor for one gem package size.
type GemConfig struct {
	Amount          int64  `json:"amount"`
	Name            string `json:"name"`
	PayNowProductID string `json:"paynow_product_id"`
}

// BundleConfig is the locally defined descriptor for a bundle of ranks plus
// bonus gems.
type BundleConfig struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	PayNowProductID string   `json:"paynow_product_id"`
	IncludedRankIDs []string `json:"included_rank_ids"` // PayNow product ids of member ranks
	BonusGems       int64    `json:"bonus_gems"`
}

// Rank is a merged catalog entry for a subscription rank tier. An entry
// without a PayNowProductID is display-only and cannot be purchased.
type Rank struct {
	Tier            string   `json:"tier"`
	Name            string   `json:"name"`
	Position        int      `json:"position"`
	Price           float64  `json:"price"`
	OriginalPrice   *float64 `json:"original_price,omitempty"`
	Currency        string   `json:"currency,omitempty"`
	ImageURL        string   `json:"image_url,omitempty"`
	PayNowProductID string   `json:"paynow_product_id,omitempty"`
	Benefits        []string `json:"benefits"`
}

// GemPackage is a merged catalog entry for a one-time gem purchase.
type GemPackage struct {
	Amount          int64    `json:"amount"`
	Name            string   `json:"name"`
	Price           float64  `json:"price"`
	OriginalPrice   *float64 `json:"original_price,omitempty"`
	Currency        string   `json:"currency,omitempty"`
	ImageURL        string   `json:"image_url,omitempty"`
	PayNowProductID string   `json:"paynow_product_id,omitempty"`
}

// Bundle is a merged catalog entry for a composite rank+gems product.
type Bundle struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Price           float64  `json:"price"`
	OriginalPrice   *float64 `json:"original_price,omitempty"`
	Currency        string   `json:"currency,omitempty"`
	ImageURL        string   `json:"image_url,omitempty"`
	PayNowProductID string   `json:"paynow_product_id,omitempty"`
	IncludedRankIDs []string `json:"included_rank_ids"`
	BonusGems       int64    `json:"bonus_gems"`
}

// Catalog is the merged view of local product configuration and live store
// pricing.
type Catalog struct {
	Ranks       []Rank       `json:"ranks"`
	GemPackages []GemPackage `json:"gem_packages"`
	Bundles     []Bundle     `json:"bundles"`
}

// Purchasable reports whether the rank is linked to a store product.
func (r *Rank) Purchasable() bool { return r.PayNowProductID != "" }

// Purchasable reports whether the gem package is linked to a store product.
func (g *GemPackage) Purchasable() bool { return g.PayNowProductID != "" }

// Purchasable reports whether the bundle is linked to a store product.
func (b *Bundle) Purchasable() bool { return b.PayNowProductID != "" }

// RankByProductID returns the rank with the given store product id, or nil.
func (c *Catalog) RankByProductID(productID string) *Rank {
	if productID == "" {
		return nil
	}
	for i := range c.Ranks {
		if c.Ranks[i].PayNowProductID == productID {
			return &c.Ranks[i]
		}
	}
	return nil
}

// GemPackageByProductID returns the gem package with the given store
// product id, or nil.
func (c *Catalog) GemPackageByProductID(productID string) *GemPackage {
	if productID == "" {
		return nil
	}
	for i := range c.GemPackages {
		if c.GemPackages[i].PayNowProductID == productID {
			return &c.GemPackages[i]
		}
	}
	return nil
}

// BundleByID returns the bundle with the given id, or nil.
func (c *Catalog) BundleByID(id string) *Bundle {
	for i := range c.Bundles {
		if c.Bundles[i].ID == id {
			return &c.Bundles[i]
		}
	}
	return nil
}

// CheapestGemRate returns the lowest price per gem across purchasable
// packages, used to monetize bonus gems in bundle savings. Returns 0 when no
// purchasable package exists.
func (c *Catalog) CheapestGemRate() float64 {
	var best float64
	for i := range c.GemPackages {
		g := &c.GemPackages[i]
		if !g.Purchasable() || g.Amount <= 0 {
			continue
		}
		rate := g.Price / float64(g.Amount)
		if best == 0 || rate < best {
			best = rate
		}
	}
	return best
}

// PriceByProductID resolves the display price of any catalog entry by its
// store product id. The merged catalog always carries display units, so no
// unit conversion happens here.
func (c *Catalog) PriceByProductID(productID string) (float64, bool) {
	if r := c.RankByProductID(productID); r != nil {
		return r.Price, true
	}
	if g := c.GemPackageByProductID(productID); g != nil {
		return g.Price, true
	}
	for i := range c.Bundles {
		if c.Bundles[i].PayNowProductID == productID {
			return c.Bundles[i].Price, true
		}
	}
	return 0, false
}
