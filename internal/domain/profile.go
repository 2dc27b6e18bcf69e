package domain

import "time"

// Package kinds for the unified profile view.
const (
	PackageOneTime      = "one_time"
	PackageGift         = "gift"
	PackageSubscription = "subscription"
)

// Package unifies one-time purchases, gifts received, and recurring
// subscriptions under one shape for profile display.
type Package struct {
	ID            string     `json:"id"`
	Kind          string     `json:"kind"`
	Name          string     `json:"name"`
	ProductID     string     `json:"product_id"`
	Price         float64    `json:"price"`
	Currency      string     `json:"currency,omitempty"`
	Active        bool       `json:"active"`
	GiftedBy      string     `json:"gifted_by,omitempty"`
	AcquiredAt    time.Time  `json:"acquired_at"`
	NextBillingAt *time.Time `json:"next_billing_at,omitempty"`
}

// Transaction is one entry in the purchase history view.
type Transaction struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	Name     string    `json:"name"`
	Amount   float64   `json:"amount"`
	Currency string    `json:"currency,omitempty"`
	Date     time.Time `json:"date"`
}
