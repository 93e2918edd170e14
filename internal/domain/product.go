package domain

import "time"

type Product struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Price         float64   `json:"price"`
	DiscountPrice *float64  `json:"discount_price,omitempty"`
	ImageURL      string    `json:"image_url"`
	IsActive      bool      `json:"is_active"`
	IsPublished   bool      `json:"is_published"`
	CreatedAt     time.Time `json:"created_at"`
}

// Eligible reports whether the product may be sold: active and published.
func (p Product) Eligible() bool {
	return p.IsActive && p.IsPublished
}

// EffectivePrice is the discount price when one is set, else the list price.
func (p Product) EffectivePrice() float64 {
	if p.DiscountPrice != nil && *p.DiscountPrice > 0 {
		return *p.DiscountPrice
	}
	return p.Price
}
