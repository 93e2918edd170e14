package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/basket-service/internal/domain"
	"github.com/fjod/basket-service/internal/pricing"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type BreakerSettings struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

// BreakerLookup guards a catalog lookup with a circuit breaker. While the
// breaker is open calls fail fast with pricing.ErrCatalogUnavailable.
type BreakerLookup struct {
	next pricing.CatalogLookup
	cb   *gobreaker.CircuitBreaker[map[string]domain.Product]
}

func NewBreakerLookup(next pricing.CatalogLookup, st BreakerSettings, logger *zap.Logger) *BreakerLookup {
	if st.MaxFailures == 0 {
		st.MaxFailures = 5
	}
	if st.OpenTimeout == 0 {
		st.OpenTimeout = 10 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[map[string]domain.Product](gobreaker.Settings{
		Name:        "catalog",
		MaxRequests: 1,
		Timeout:     st.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= st.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		// a caller giving up is not a catalog failure
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &BreakerLookup{next: next, cb: cb}
}

func (b *BreakerLookup) LookupProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	products, err := b.cb.Execute(func() (map[string]domain.Product, error) {
		return b.next.LookupProducts(ctx, ids)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", pricing.ErrCatalogUnavailable, err)
		}
		return nil, err
	}
	return products, nil
}

func (b *BreakerLookup) State() gobreaker.State {
	return b.cb.State()
}
