package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/basket-service/internal/domain"
	"github.com/shopspring/decimal"
)

var ErrCatalogUnavailable = errors.New("catalog unavailable")

// pointValue is the currency value of one loyalty point.
var pointValue = decimal.New(1, -1)

// CatalogLookup returns the catalog entry for each requested id. Ids that are
// not in the catalog are simply absent from the result.
type CatalogLookup interface {
	LookupProducts(ctx context.Context, ids []string) (map[string]domain.Product, error)
}

type Totals struct {
	Subtotal float64
	Total    float64
}

// RecomputeTotals prices items against the catalog and applies the
// pre-resolved discount, points redemption and shipping cost. The total is
// not floored at zero.
func RecomputeTotals(
	ctx context.Context,
	items []domain.BasketItem,
	lookup CatalogLookup,
	discount float64,
	pointsToUse int,
	shippingCost float64) (Totals, error) {

	subtotal, err := Subtotal(ctx, items, lookup)
	if err != nil {
		return Totals{}, err
	}

	return Totals{
		Subtotal: subtotal,
		Total:    Total(subtotal, discount, pointsToUse, shippingCost),
	}, nil
}

// Subtotal sums effective price times quantity over eligible items.
// Products missing from the catalog, inactive or unpublished add nothing.
func Subtotal(ctx context.Context, items []domain.BasketItem, lookup CatalogLookup) (float64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	products, err := lookup.LookupProducts(ctx, domain.ProductIDs(items))
	if err != nil {
		if errors.Is(err, ErrCatalogUnavailable) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}

	sum := decimal.Zero
	for _, item := range items {
		p, ok := products[item.ProductID]
		if !ok || !p.Eligible() {
			continue
		}
		line := decimal.NewFromFloat(p.EffectivePrice()).Mul(decimal.NewFromInt(int64(item.Quantity)))
		sum = sum.Add(line)
	}

	return sum.InexactFloat64(), nil
}

// Total computes subtotal - discount - points*0.1 + shipping.
func Total(subtotal, discount float64, pointsToUse int, shippingCost float64) float64 {
	points := pointValue.Mul(decimal.NewFromInt(int64(pointsToUse)))

	return decimal.NewFromFloat(subtotal).
		Sub(decimal.NewFromFloat(discount)).
		Sub(points).
		Add(decimal.NewFromFloat(shippingCost)).
		InexactFloat64()
}

// PointsValue is the monetary value of redeeming the given points.
func PointsValue(pointsToUse int) float64 {
	return pointValue.Mul(decimal.NewFromInt(int64(pointsToUse))).InexactFloat64()
}

// Reprice keeps the subtotal and recomputes the total with new adjustments.
func (t Totals) Reprice(discount float64, pointsToUse int, shippingCost float64) Totals {
	t.Total = Total(t.Subtotal, discount, pointsToUse, shippingCost)
	return t
}

// ApplyTo writes subtotal and total onto the basket and stamps LastUpdated.
func (t Totals) ApplyTo(b *domain.Basket, now time.Time) {
	b.Subtotal = t.Subtotal
	b.Total = t.Total
	b.LastUpdated = now
}
