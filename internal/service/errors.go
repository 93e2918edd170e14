package service

import (
	"errors"

	"github.com/fjod/basket-service/internal/coupon"
	"github.com/fjod/basket-service/internal/domain"
	"github.com/fjod/basket-service/internal/pricing"
	"github.com/fjod/basket-service/internal/shipping"
)

var (
	ErrProductUnavailable = errors.New("product is unavailable")
	ErrInvalidQuantity    = errors.New("quantity must be at least 1")
	ErrInvalidPoints      = errors.New("points to use cannot be negative")
	ErrConcurrentUpdate   = errors.New("basket is being updated concurrently, retry later")
)

// Re-exported so callers only need this package to classify failures.
var (
	ErrCatalogUnavailable    = pricing.ErrCatalogUnavailable
	ErrItemNotFound          = domain.ErrItemNotFound
	ErrCouponNotFound        = coupon.ErrCouponNotFound
	ErrCouponInvalid         = coupon.ErrCouponInvalid
	ErrCouponMinOrder        = coupon.ErrMinOrderValue
	ErrUnknownShippingMethod = shipping.ErrUnknownMethod
)
