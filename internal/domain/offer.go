package domain

// Offer types emitted by the upsell advisor.
const (
	OfferVIPUpgrade    = "vip_upgrade"
	OfferBundleUpgrade = "bundle_upgrade"
	OfferGemUpgrade    = "gem_upgrade"
)

// TierOption is one selectable higher tier within a VIP upgrade offer.
type TierOption struct {
	Tier            string  `json:"tier"`
	Name            string  `json:"name"`
	PayNowProductID string  `json:"paynow_product_id"`
	Price           float64 `json:"price"`
	PriceDelta      float64 `json:"price_delta"`
}

// Offer is a contextual upsell derived from the current cart and catalog.
// Exactly one of the type-specific field groups is populated, keyed by Type.
type Offer struct {
	ID           string  `json:"id"`
	Type         string  `json:"type"`
	Title        string  `json:"title"`
	TargetItemID string  `json:"target_item_id,omitempty"` // cart item superseded on accept

	// vip_upgrade
	Options []TierOption `json:"options,omitempty"`

	// bundle_upgrade
	BundleID        string   `json:"bundle_id,omitempty"`
	BundlePrice     float64  `json:"bundle_price,omitempty"`
	ExtraRankIDs    []string `json:"extra_rank_ids,omitempty"`
	SupersededItems []string `json:"superseded_items,omitempty"`
	Savings         float64  `json:"savings,omitempty"`

	// gem_upgrade
	NextTierProductID string  `json:"next_tier_product_id,omitempty"`
	AdditionalCost    float64 `json:"additional_cost,omitempty"`
	AdditionalGems    int64   `json:"additional_gems,omitempty"`
}
