package coupon

import (
	"errors"
	"fmt"
	"time"

	"github.com/fjod/basket-service/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrCouponNotFound = errors.New("coupon not found")
	ErrCouponInvalid  = errors.New("coupon is not valid")
	ErrMinOrderValue  = errors.New("basket subtotal is below the coupon minimum")
)

var hundred = decimal.NewFromInt(100)

// Resolve turns a coupon into an absolute discount for the given subtotal.
// The discount never exceeds the subtotal.
func Resolve(c domain.Coupon, subtotal float64, now time.Time) (float64, error) {
	if err := Validate(c, now); err != nil {
		return 0, err
	}
	if subtotal < c.MinOrderValue {
		return 0, fmt.Errorf("%w: needs %.2f", ErrMinOrderValue, c.MinOrderValue)
	}

	sub := decimal.NewFromFloat(subtotal)
	var discount decimal.Decimal

	switch c.Type {
	case domain.CouponPercentage:
		discount = sub.Mul(decimal.NewFromFloat(c.Value)).Div(hundred).Round(2)
		if c.MaxDiscount > 0 {
			discount = decimal.Min(discount, decimal.NewFromFloat(c.MaxDiscount))
		}
	case domain.CouponFixed:
		discount = decimal.NewFromFloat(c.Value)
	}

	return decimal.Min(discount, sub).InexactFloat64(), nil
}

// Validate checks the coupon's own state, independent of any basket.
func Validate(c domain.Coupon, now time.Time) error {
	if !c.IsActive {
		return fmt.Errorf("%w: inactive", ErrCouponInvalid)
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return fmt.Errorf("%w: not yet valid", ErrCouponInvalid)
	}
	if c.ValidTo != nil && now.After(*c.ValidTo) {
		return fmt.Errorf("%w: expired", ErrCouponInvalid)
	}
	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return fmt.Errorf("%w: usage limit reached", ErrCouponInvalid)
	}

	switch c.Type {
	case domain.CouponPercentage:
		if c.Value < 0 || c.Value > 100 {
			return fmt.Errorf("%w: percentage must be 0-100", ErrCouponInvalid)
		}
	case domain.CouponFixed:
		if c.Value < 0 {
			return fmt.Errorf("%w: fixed discount cannot be negative", ErrCouponInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrCouponInvalid, c.Type)
	}

	return nil
}
