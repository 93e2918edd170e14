package cache

import (
	"context"
	"errors"

	"github.com/fjod/basket-service/internal/domain"
)

type BasketCache interface {
	Get(ctx context.Context, userID string) (*domain.Basket, error)
	// Set stores the basket unless the entry already holds the same or a
	// newer revision. Writes that arrive out of order never roll the entry
	// back.
	Set(ctx context.Context, userID string, basket *domain.Basket) error
	Delete(ctx context.Context, userID string) error
}

var ErrCacheMiss = errors.New("cache miss")
