package domain

import "time"

// Cart item types.
const (
	ItemTypeRank      = "rank"
	ItemTypeGems      = "gems"
	ItemTypeBundle    = "bundle"
	ItemTypeAccessory = "accessory"
)

// GiftRecipient identifies the player a gift item is purchased for.
type GiftRecipient struct {
	Platform    string `json:"platform"`
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
}

// CartItem is a line item pending purchase. Name and price are snapshots
// taken when the item was added; later catalog changes do not affect them.
type CartItem struct {
	ID              string         `json:"id"`
	Type            string         `json:"type"`
	Quantity        int            `json:"quantity"`
	Price           float64        `json:"price"`
	OriginalPrice   *float64       `json:"original_price,omitempty"`
	SaleValue       *float64       `json:"sale_value,omitempty"`
	Name            string         `json:"name"`
	PayNowProductID string         `json:"paynow_product_id"`
	IsGift          bool           `json:"is_gift"`
	GiftTo          *GiftRecipient `json:"gift_to,omitempty"`
	Subscription    bool           `json:"subscription"`
}

// HasValidGiftRecipient reports whether a gift item carries a usable
// recipient. Non-gift items trivially pass.
func (i *CartItem) HasValidGiftRecipient() bool {
	if !i.IsGift {
		return true
	}
	return i.GiftTo != nil && i.GiftTo.ID != ""
}

// Cart holds a user's pending items plus the set of upsell offers already
// accepted this session (so an accepted offer is not re-offered).
type Cart struct {
	SteamID         string     `json:"steam_id"`
	Items           []CartItem `json:"items"`
	AcceptedOffers  []string   `json:"accepted_offers,omitempty"`
	Version         int        `json:"version"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
}

// FindItemIndex returns the index of the item with the given id, or -1.
func (c *Cart) FindItemIndex(itemID string) int {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return i
		}
	}
	return -1
}

// HasProductForSelf reports whether a non-gift item of the given type and
// store product id is already in the cart. Gift copies of the same product
// are legitimate and do not count.
func (c *Cart) HasProductForSelf(itemType, productID string) bool {
	if productID == "" {
		return false
	}
	for i := range c.Items {
		it := &c.Items[i]
		if it.Type == itemType && it.PayNowProductID == productID && !it.IsGift {
			return true
		}
	}
	return false
}

// RanksForSelf returns all non-gift rank items currently in the cart.
func (c *Cart) RanksForSelf() []CartItem {
	var out []CartItem
	for _, it := range c.Items {
		if it.Type == ItemTypeRank && !it.IsGift {
			out = append(out, it)
		}
	}
	return out
}

// TotalAmount is the sum of item prices times quantities.
func (c *Cart) TotalAmount() float64 {
	var total float64
	for _, it := range c.Items {
		total += it.Price * float64(it.Quantity)
	}
	return total
}

// HasAcceptedOffer reports whether the given offer id was already accepted
// this session.
func (c *Cart) HasAcceptedOffer(offerID string) bool {
	for _, id := range c.AcceptedOffers {
		if id == offerID {
			return true
		}
	}
	return false
}
