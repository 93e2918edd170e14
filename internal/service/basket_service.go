package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/basket-service/internal/cache"
	"github.com/fjod/basket-service/internal/coupon"
	"github.com/fjod/basket-service/internal/domain"
	"github.com/fjod/basket-service/internal/pricing"
	"github.com/fjod/basket-service/internal/repository"
	"github.com/fjod/basket-service/internal/shipping"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultMaxAttempts = 5
	loadTimeout        = 5 * time.Second
)

type Option func(*BasketService)

func WithLogger(logger *zap.Logger) Option {
	return func(s *BasketService) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *BasketService) { s.now = now }
}

// WithMaxAttempts bounds how often a mutation is replayed after losing a
// revision race.
func WithMaxAttempts(n int) Option {
	return func(s *BasketService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

type BasketService struct {
	repo        repository.BasketRepository
	cache       cache.BasketCache
	catalog     pricing.CatalogLookup
	coupons     coupon.Repository
	shipping    shipping.Rules
	logger      *zap.Logger
	now         func() time.Time
	maxAttempts int
	sfg         singleflight.Group // Prevents cache stampede
}

func NewBasketService(
	repo repository.BasketRepository,
	cache cache.BasketCache,
	catalog pricing.CatalogLookup,
	coupons coupon.Repository,
	rules shipping.Rules,
	opts ...Option) *BasketService {

	s := &BasketService{
		repo:        repo,
		cache:       cache,
		catalog:     catalog,
		coupons:     coupons,
		shipping:    rules,
		logger:      zap.NewNop(),
		now:         time.Now,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetBasket returns the user's basket, creating an empty one on first access.
// Stored totals are returned as they are; use Refresh to reprice.
func (s *BasketService) GetBasket(ctx context.Context, userID string) (*domain.Basket, error) {
	ch := s.sfg.DoChan(userID, func() (interface{}, error) {
		// Shared by every coalesced caller, so it must outlive the first one.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		basket, err := s.cache.Get(ctx, userID)
		if err == nil {
			return basket, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("cache get failed", zap.String("user_id", userID), zap.Error(err))
		}

		basket, err = s.load(ctx, userID)
		if err != nil {
			return nil, err
		}

		go s.storeCache(userID, basket)
		return basket, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Basket), nil
	}
}

// AddItem puts quantity units of productID into the basket. Adding a product
// that is already present increases the existing line's quantity.
func (s *BasketService) AddItem(
	ctx context.Context,
	userID, productID string,
	quantity int,
	options map[string]string) (*domain.Basket, error) {

	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	if err := s.ensureAvailable(ctx, productID); err != nil {
		return nil, err
	}

	item := domain.BasketItem{
		ID:        uuid.NewString(),
		ProductID: productID,
		Quantity:  quantity,
		Options:   options,
		AddedAt:   s.now(),
	}

	return s.mutate(ctx, userID, "add_item", func(b *domain.Basket) error {
		b.AddItem(item)
		return s.recompute(ctx, b)
	})
}

// UpdateItemQuantity sets an item's quantity. Zero or less removes the item.
func (s *BasketService) UpdateItemQuantity(ctx context.Context, userID, itemID string, quantity int) (*domain.Basket, error) {
	return s.mutate(ctx, userID, "update_item_quantity", func(b *domain.Basket) error {
		if err := b.SetItemQuantity(itemID, quantity); err != nil {
			return err
		}
		return s.recompute(ctx, b)
	})
}

func (s *BasketService) RemoveItem(ctx context.Context, userID, itemID string) (*domain.Basket, error) {
	return s.mutate(ctx, userID, "remove_item", func(b *domain.Basket) error {
		if err := b.RemoveItem(itemID); err != nil {
			return err
		}
		return s.recompute(ctx, b)
	})
}

// Clear empties the basket and zeroes every monetary field without a
// catalog round trip.
func (s *BasketService) Clear(ctx context.Context, userID string) (*domain.Basket, error) {
	return s.mutate(ctx, userID, "clear", func(b *domain.Basket) error {
		b.Clear(s.now())
		return nil
	})
}

// ApplyCoupon attaches the coupon with the given code. It fails without
// changing the basket when the coupon does not apply to the current subtotal.
func (s *BasketService) ApplyCoupon(ctx context.Context, userID, code string) (*domain.Basket, error) {
	c, err := s.coupons.GetCouponByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, userID, "apply_coupon", func(b *domain.Basket) error {
		subtotal, err := pricing.Subtotal(ctx, b.Items, s.catalog)
		if err != nil {
			return err
		}
		if _, err := coupon.Resolve(*c, subtotal, s.now()); err != nil {
			return err
		}
		b.CouponID = c.ID
		return s.recompute(ctx, b)
	})
}

func (s *BasketService) RemoveCoupon(ctx context.Context, userID string) (*domain.Basket, error) {
	return s.mutate(ctx, userID, "remove_coupon", func(b *domain.Basket) error {
		b.CouponID = ""
		b.Discount = 0
		return s.recompute(ctx, b)
	})
}

// SetPoints sets how many loyalty points are redeemed against the basket.
// Points are not checked against a balance.
func (s *BasketService) SetPoints(ctx context.Context, userID string, points int) (*domain.Basket, error) {
	if points < 0 {
		return nil, ErrInvalidPoints
	}

	return s.mutate(ctx, userID, "set_points", func(b *domain.Basket) error {
		b.PointsToUse = points
		return s.recompute(ctx, b)
	})
}

func (s *BasketService) SetShipping(ctx context.Context, userID, method string) (*domain.Basket, error) {
	if _, err := s.shipping.Cost(method, 0); err != nil {
		return nil, err
	}

	return s.mutate(ctx, userID, "set_shipping", func(b *domain.Basket) error {
		b.ShippingMethod = method
		return s.recompute(ctx, b)
	})
}

// Refresh reprices the basket against the current catalog.
func (s *BasketService) Refresh(ctx context.Context, userID string) (*domain.Basket, error) {
	return s.mutate(ctx, userID, "refresh", func(b *domain.Basket) error {
		return s.recompute(ctx, b)
	})
}

// CheckoutCompleted empties the basket once its order has been placed and
// counts one use of the coupon it carried. The usage is recorded before the
// coupon is detached and is keyed on checkoutID, so a retried or redelivered
// event neither loses nor repeats it.
func (s *BasketService) CheckoutCompleted(ctx context.Context, userID, checkoutID string) error {
	_, err := s.mutate(ctx, userID, "checkout_completed", func(b *domain.Basket) error {
		if b.CouponID != "" {
			if err := s.recordCouponUsage(ctx, b.CouponID, checkoutID); err != nil {
				return err
			}
		}
		b.Clear(s.now())
		return nil
	})
	return err
}

func (s *BasketService) recordCouponUsage(ctx context.Context, couponID, checkoutID string) error {
	err := s.coupons.IncrementUsage(ctx, couponID, checkoutID)
	if errors.Is(err, coupon.ErrCouponNotFound) {
		s.logger.Warn("used coupon no longer exists", zap.String("coupon_id", couponID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to record coupon usage: %w", err)
	}
	return nil
}

// mutate loads the basket, applies fn and saves it under the loaded
// revision. When another writer got there first the whole mutation is
// replayed on the fresh basket. If fn fails nothing is written.
func (s *BasketService) mutate(ctx context.Context, userID, op string, fn func(b *domain.Basket) error) (*domain.Basket, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		basket, err := s.load(ctx, userID)
		if err != nil {
			return nil, err
		}

		if err := fn(basket); err != nil {
			s.logger.Debug("basket mutation rejected",
				zap.String("op", op), zap.String("user_id", userID), zap.Error(err))
			return nil, err
		}

		err = s.repo.SaveBasket(ctx, basket)
		if errors.Is(err, repository.ErrRevisionConflict) {
			s.logger.Debug("basket revision conflict, retrying",
				zap.String("op", op), zap.String("user_id", userID), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			s.logger.Error("failed to save basket",
				zap.String("op", op), zap.String("user_id", userID), zap.Error(err))
			return nil, err
		}

		s.storeCache(userID, basket)
		return basket, nil
	}

	s.logger.Warn("giving up on contended basket",
		zap.String("op", op), zap.String("user_id", userID), zap.Int("attempts", s.maxAttempts))
	return nil, ErrConcurrentUpdate
}

func (s *BasketService) load(ctx context.Context, userID string) (*domain.Basket, error) {
	basket, err := s.repo.GetBasket(ctx, userID)
	if errors.Is(err, repository.ErrBasketNotFound) {
		return s.repo.CreateBasket(ctx, userID)
	}
	if err != nil {
		return nil, err
	}
	return basket, nil
}

// recompute reprices b. The coupon and shipping method are resolved again
// against the new subtotal; a coupon that no longer applies is detached.
func (s *BasketService) recompute(ctx context.Context, b *domain.Basket) error {
	totals, err := pricing.RecomputeTotals(ctx, b.Items, s.catalog, b.Discount, b.PointsToUse, b.ShippingCost)
	if err != nil {
		return err
	}

	discount, couponID, err := s.resolveCoupon(ctx, b.CouponID, totals.Subtotal)
	if err != nil {
		return err
	}
	shippingCost, method := s.resolveShipping(b.ShippingMethod, totals.Subtotal)

	b.Discount, b.CouponID = discount, couponID
	b.ShippingCost, b.ShippingMethod = shippingCost, method
	totals.Reprice(discount, b.PointsToUse, shippingCost).ApplyTo(b, s.now())
	return nil
}

func (s *BasketService) resolveCoupon(ctx context.Context, couponID string, subtotal float64) (float64, string, error) {
	if couponID == "" {
		return 0, "", nil
	}

	c, err := s.coupons.GetCoupon(ctx, couponID)
	if errors.Is(err, coupon.ErrCouponNotFound) {
		s.logger.Info("detaching deleted coupon", zap.String("coupon_id", couponID))
		return 0, "", nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("failed to load coupon: %w", err)
	}

	discount, err := coupon.Resolve(*c, subtotal, s.now())
	if err != nil {
		s.logger.Info("detaching coupon", zap.String("coupon_id", couponID), zap.Error(err))
		return 0, "", nil
	}
	return discount, couponID, nil
}

func (s *BasketService) resolveShipping(method string, subtotal float64) (float64, string) {
	if method == "" {
		return 0, ""
	}
	cost, err := s.shipping.Cost(method, subtotal)
	if err != nil {
		s.logger.Warn("dropping unknown shipping method", zap.String("method", method))
		return 0, ""
	}
	return cost, method
}

func (s *BasketService) ensureAvailable(ctx context.Context, productID string) error {
	products, err := s.catalog.LookupProducts(ctx, []string{productID})
	if err != nil {
		if errors.Is(err, ErrCatalogUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}

	p, ok := products[productID]
	if !ok || !p.Eligible() {
		return fmt.Errorf("%w: %s", ErrProductUnavailable, productID)
	}
	return nil
}

// storeCache publishes basket to the cache. The cache keeps whichever
// revision is newest, so concurrent writers and readers may call it in any
// order. If the write fails the entry is dropped so readers fall back to the
// repository.
func (s *BasketService) storeCache(userID string, basket *domain.Basket) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := s.cache.Set(ctx, userID, basket); err != nil {
		s.logger.Warn("cache set failed", zap.String("user_id", userID), zap.Error(err))
		if err := s.cache.Delete(ctx, userID); err != nil {
			s.logger.Warn("cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
}
