package order

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
)

type Order struct {
	Reference string `json:"reference"`
	Email     string `json:"email,omitempty"`
	Status    Status `json:"status"`
	// Cents; nil until the carrier has confirmed a delivery method.
	ShippingCents *int64    `json:"shipping_cents,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Item struct {
	ID             string `json:"id"`
	OrderReference string `json:"order_reference"`
	Title          string `json:"title"`
	// Base unit price in cents, before any promotion.
	UnitCents        int64  `json:"unit_cents"`
	Quantity         int    `json:"quantity"`
	VariantID        string `json:"variant_id,omitempty"`
	PromotionPercent int    `json:"promotion_percent,omitempty"`
}
