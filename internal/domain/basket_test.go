package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddItem_SameProductIncrementsQuantity(t *testing.T) {
	b := NewBasket("u1", time.Now())

	b.AddItem(BasketItem{ID: "i1", ProductID: "p1", Quantity: 2})
	merged := b.AddItem(BasketItem{ID: "i2", ProductID: "p1", Quantity: 3})

	require.Len(t, b.Items, 1)
	assert.Equal(t, 5, b.Items[0].Quantity)
	assert.Equal(t, "i1", merged.ID)
}

func TestAddItem_KeepsOriginalAddedAt(t *testing.T) {
	first := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	b := NewBasket("u1", first)

	b.AddItem(BasketItem{ID: "i1", ProductID: "p1", Quantity: 1, AddedAt: first})
	b.AddItem(BasketItem{ID: "i2", ProductID: "p1", Quantity: 1, AddedAt: first.Add(time.Hour)})

	assert.Equal(t, first, b.Items[0].AddedAt)
}

func TestSetItemQuantity(t *testing.T) {
	b := NewBasket("u1", time.Now())
	b.AddItem(BasketItem{ID: "i1", ProductID: "p1", Quantity: 2})
	b.AddItem(BasketItem{ID: "i2", ProductID: "p2", Quantity: 1})

	require.NoError(t, b.SetItemQuantity("i1", 7))
	assert.Equal(t, 7, b.Items[0].Quantity)

	require.NoError(t, b.SetItemQuantity("i1", 0))
	require.Len(t, b.Items, 1)
	assert.Equal(t, "i2", b.Items[0].ID)

	require.NoError(t, b.SetItemQuantity("i2", -4))
	assert.Empty(t, b.Items)
}

func TestSetItemQuantity_UnknownItem(t *testing.T) {
	b := NewBasket("u1", time.Now())
	assert.ErrorIs(t, b.SetItemQuantity("missing", 3), ErrItemNotFound)
	assert.ErrorIs(t, b.SetItemQuantity("missing", 0), ErrItemNotFound)
}

func TestRemoveItem(t *testing.T) {
	b := NewBasket("u1", time.Now())
	b.AddItem(BasketItem{ID: "i1", ProductID: "p1", Quantity: 2})

	require.NoError(t, b.RemoveItem("i1"))
	assert.Empty(t, b.Items)
	assert.ErrorIs(t, b.RemoveItem("i1"), ErrItemNotFound)
}

func TestClear_ResetsEverything(t *testing.T) {
	now := time.Now()
	b := &Basket{
		UserID:         "u1",
		Items:          []BasketItem{{ID: "i1", ProductID: "p1", Quantity: 2}},
		Subtotal:       200,
		Discount:       20,
		ShippingCost:   15,
		ShippingMethod: "standard",
		Total:          195,
		PointsToUse:    10,
		CouponID:       "c1",
	}

	b.Clear(now)

	assert.Empty(t, b.Items)
	assert.NotNil(t, b.Items)
	assert.Zero(t, b.Subtotal)
	assert.Zero(t, b.Discount)
	assert.Zero(t, b.ShippingCost)
	assert.Zero(t, b.Total)
	assert.Zero(t, b.PointsToUse)
	assert.Empty(t, b.CouponID)
	assert.Empty(t, b.ShippingMethod)
	assert.Equal(t, now, b.LastUpdated)
}

func TestProductIDs_Distinct(t *testing.T) {
	items := []BasketItem{{ProductID: "a"}, {ProductID: "b"}, {ProductID: "a"}}
	assert.Equal(t, []string{"a", "b"}, ProductIDs(items))
}

func TestEffectivePrice(t *testing.T) {
	discount := 40.0
	zero := 0.0

	assert.Equal(t, 50.0, Product{Price: 50}.EffectivePrice())
	assert.Equal(t, 40.0, Product{Price: 50, DiscountPrice: &discount}.EffectivePrice())
	assert.Equal(t, 50.0, Product{Price: 50, DiscountPrice: &zero}.EffectivePrice())
}

func TestEligible(t *testing.T) {
	assert.True(t, Product{IsActive: true, IsPublished: true}.Eligible())
	assert.False(t, Product{IsActive: true}.Eligible())
	assert.False(t, Product{IsPublished: true}.Eligible())
}
