package product

import "time"

// Variant is one sellable size of a product. Promotion is a whole
// percentage applied to the parent product price at checkout time.
type Variant struct {
	ID               string    `json:"id"`
	ProductID        string    `json:"product_id"`
	Size             string    `json:"size,omitempty"`
	WeightGrams      int       `json:"weight_grams"`
	PromotionPercent int       `json:"promotion_percent"`
	Quantity         int       `json:"quantity"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
