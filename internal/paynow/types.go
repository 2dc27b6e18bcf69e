package paynow

import "time"

// Customer is the provider's customer record for the authenticated user.
type Customer struct {
	ID        string           `json:"id"`
	SteamID   string           `json:"steam_id"`
	Name      string           `json:"name"`
	CreatedAt time.Time        `json:"created_at"`
	Profile   *CustomerProfile `json:"profile,omitempty"`
}

// CustomerProfile carries the platform identity attached to a customer.
type CustomerProfile struct {
	Platform  string `json:"platform"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// InventoryItem is one owned one-time product in the customer's inventory.
type InventoryItem struct {
	ID          string     `json:"id"`
	ProductID   string     `json:"product_id"`
	ProductName string     `json:"product_name"`
	GiftedBy    string     `json:"gifted_by,omitempty"`
	State       string     `json:"state"`
	AddedAt     time.Time  `json:"added_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Subscription is one recurring-billing record for the customer.
// Amounts are in minor units.
type Subscription struct {
	ID            string     `json:"id"`
	ProductID     string     `json:"product_id"`
	ProductName   string     `json:"product_name"`
	Status        string     `json:"status"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	CreatedAt     time.Time  `json:"created_at"`
	NextBillingAt *time.Time `json:"next_billing_at,omitempty"`
}

// Subscription statuses the provider reports.
const (
	SubscriptionActive   = "active"
	SubscriptionCanceled = "canceled"
)

// InventoryActive is the state of an inventory item that is currently
// usable (not revoked or expired).
const InventoryActive = "active"

// ProductPricing carries sale metadata on a storefront product.
// All amounts are in minor units.
type ProductPricing struct {
	SaleActive bool  `json:"sale_active"`
	SalePrice  int64 `json:"sale_price"`
	SaleValue  int64 `json:"sale_value"`
}

// StoreProduct is one purchasable product from the storefront listing.
// Price is in minor units.
type StoreProduct struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Slug           string          `json:"slug"`
	Price          int64           `json:"price"`
	Currency       string          `json:"currency"`
	ImageURL       string          `json:"image_url,omitempty"`
	InStock        bool            `json:"in_stock"`
	AllowSubscribe bool            `json:"allow_subscription"`
	Pricing        *ProductPricing `json:"pricing,omitempty"`
}

// CheckoutLine is one line item in a checkout-session request.
type CheckoutLine struct {
	ProductID    string `json:"product_id"`
	Quantity     int    `json:"quantity"`
	Subscription bool   `json:"subscription"`
	GiftTo       string `json:"gift_to,omitempty"`
}

// CheckoutRequest creates a hosted checkout session. ReferenceID is an
// opaque correlation token echoed back in completion signals.
type CheckoutRequest struct {
	Lines       []CheckoutLine `json:"lines"`
	Currency    string         `json:"currency"`
	ReferenceID string         `json:"reference_id"`
	ReturnURL   string         `json:"return_url,omitempty"`
	CancelURL   string         `json:"cancel_url,omitempty"`
}

// CheckoutSession is the provider's response to a checkout-session request.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}
