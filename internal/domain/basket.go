package domain

import "time"

type Basket struct {
	ID             string       `bson:"_id,omitempty" json:"id,omitempty"`
	UserID         string       `bson:"user_id" json:"user_id"`
	Items          []BasketItem `bson:"items" json:"items"`
	Subtotal       float64      `bson:"subtotal" json:"subtotal"`
	Discount       float64      `bson:"discount" json:"discount"`
	ShippingCost   float64      `bson:"shipping_cost" json:"shipping_cost"`
	ShippingMethod string       `bson:"shipping_method" json:"shipping_method,omitempty"`
	Total          float64      `bson:"total" json:"total"`
	PointsToUse    int          `bson:"points_to_use" json:"points_to_use"`
	CouponID       string       `bson:"coupon_id" json:"coupon_id,omitempty"`
	Revision       int64        `bson:"revision" json:"revision"`
	CreatedAt      time.Time    `bson:"created_at" json:"created_at"`
	LastUpdated    time.Time    `bson:"last_updated" json:"last_updated"`
}

type BasketItem struct {
	ID        string            `bson:"id" json:"id"`
	ProductID string            `bson:"product_id" json:"product_id"`
	Quantity  int               `bson:"quantity" json:"quantity"`
	Options   map[string]string `bson:"options,omitempty" json:"options,omitempty"`
	AddedAt   time.Time         `bson:"added_at" json:"added_at"`
}

// NewBasket returns an empty basket owned by userID.
func NewBasket(userID string, now time.Time) *Basket {
	return &Basket{
		UserID:      userID,
		Items:       []BasketItem{},
		CreatedAt:   now,
		LastUpdated: now,
	}
}

// AddItem merges item into the basket. A product that is already present
// has its quantity increased; its id, options and added_at are kept.
func (b *Basket) AddItem(item BasketItem) BasketItem {
	for i := range b.Items {
		if b.Items[i].ProductID == item.ProductID {
			b.Items[i].Quantity += item.Quantity
			return b.Items[i]
		}
	}
	b.Items = append(b.Items, item)
	return item
}

// SetItemQuantity replaces the quantity of the item. A quantity of zero or
// less removes the item.
func (b *Basket) SetItemQuantity(itemID string, quantity int) error {
	if quantity <= 0 {
		return b.RemoveItem(itemID)
	}
	i := b.indexOf(itemID)
	if i < 0 {
		return ErrItemNotFound
	}
	b.Items[i].Quantity = quantity
	return nil
}

func (b *Basket) RemoveItem(itemID string) error {
	i := b.indexOf(itemID)
	if i < 0 {
		return ErrItemNotFound
	}
	b.Items = append(b.Items[:i], b.Items[i+1:]...)
	return nil
}

// Clear resets the basket to its zero state. Coupon, points and shipping
// selection are detached as well.
func (b *Basket) Clear(now time.Time) {
	b.Items = []BasketItem{}
	b.Subtotal = 0
	b.Discount = 0
	b.ShippingCost = 0
	b.ShippingMethod = ""
	b.Total = 0
	b.PointsToUse = 0
	b.CouponID = ""
	b.LastUpdated = now
}

// ProductIDs returns the distinct product ids referenced by the items.
func (b *Basket) ProductIDs() []string {
	return ProductIDs(b.Items)
}

func ProductIDs(items []BasketItem) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

func (b *Basket) indexOf(itemID string) int {
	for i := range b.Items {
		if b.Items[i].ID == itemID {
			return i
		}
	}
	return -1
}
