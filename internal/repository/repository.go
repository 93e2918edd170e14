package repository

import (
	"context"
	"errors"

	"github.com/fjod/basket-service/internal/domain"
)

var (
	ErrBasketNotFound   = errors.New("basket not found")
	ErrRevisionConflict = errors.New("basket was modified concurrently")
)

// BasketRepository persists one basket per user.
type BasketRepository interface {
	GetBasket(ctx context.Context, userID string) (*domain.Basket, error)
	// CreateBasket inserts an empty basket, or returns the existing one if
	// another request created it first.
	CreateBasket(ctx context.Context, userID string) (*domain.Basket, error)
	// SaveBasket writes b if its revision still matches the stored one and
	// bumps the revision. A stale revision yields ErrRevisionConflict.
	SaveBasket(ctx context.Context, b *domain.Basket) error
}
