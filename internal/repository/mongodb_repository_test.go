package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fjod/basket-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func setupTestDB(t *testing.T) (BasketRepository, func()) {
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, MongoConfig{
		URI:            uri,
		Database:       "testdb",
		MaxPoolSize:    10,
		ConnectTimeout: 10 * time.Second,
	})
	require.NoError(t, err)

	repo := NewMongoRepository(db)

	mongoRepo := repo.(*mongoRepository)
	err = mongoRepo.CreateIndexes(ctx)
	require.NoError(t, err)

	cleanup := func() {
		_ = db.Client().Disconnect(ctx)
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

func TestGetBasket_NotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	basket, err := repo.GetBasket(context.Background(), "nonexistent")

	assert.ErrorIs(t, err, ErrBasketNotFound)
	assert.Nil(t, basket)
}

func TestCreateBasket_ThenGet(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	created, err := repo.CreateBasket(ctx, "user123")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Zero(t, created.Revision)

	got, err := repo.GetBasket(ctx, "user123")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "user123", got.UserID)
	assert.NotNil(t, got.Items)
	assert.Empty(t, got.Items)
}

func TestCreateBasket_ExistingReturnsSameBasket(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	first, err := repo.CreateBasket(ctx, "user123")
	require.NoError(t, err)
	second, err := repo.CreateBasket(ctx, "user123")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
}

func TestSaveBasket_PersistsAndBumpsRevision(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	b, err := repo.CreateBasket(ctx, "user123")
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Millisecond)
	b.AddItem(domain.BasketItem{
		ID:        "item-1",
		ProductID: "p1",
		Quantity:  2,
		Options:   map[string]string{"size": "L"},
		AddedAt:   now,
	})
	b.Subtotal = 200
	b.Discount = 20
	b.ShippingCost = 15
	b.ShippingMethod = "standard"
	b.PointsToUse = 50
	b.Total = 190
	b.CouponID = "coupon-1"
	b.LastUpdated = now

	require.NoError(t, repo.SaveBasket(ctx, b))
	assert.Equal(t, int64(1), b.Revision)

	got, err := repo.GetBasket(ctx, "user123")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Revision)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "item-1", got.Items[0].ID)
	assert.Equal(t, 2, got.Items[0].Quantity)
	assert.Equal(t, "L", got.Items[0].Options["size"])
	assert.True(t, now.Equal(got.Items[0].AddedAt))
	assert.Equal(t, 200.0, got.Subtotal)
	assert.Equal(t, 20.0, got.Discount)
	assert.Equal(t, 15.0, got.ShippingCost)
	assert.Equal(t, "standard", got.ShippingMethod)
	assert.Equal(t, 50, got.PointsToUse)
	assert.Equal(t, 190.0, got.Total)
	assert.Equal(t, "coupon-1", got.CouponID)
}

func TestSaveBasket_StaleRevisionConflicts(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.CreateBasket(ctx, "user123")
	require.NoError(t, err)

	first, err := repo.GetBasket(ctx, "user123")
	require.NoError(t, err)
	second, err := repo.GetBasket(ctx, "user123")
	require.NoError(t, err)

	first.AddItem(domain.BasketItem{ID: "a", ProductID: "p1", Quantity: 1})
	require.NoError(t, repo.SaveBasket(ctx, first))

	second.AddItem(domain.BasketItem{ID: "b", ProductID: "p2", Quantity: 1})
	err = repo.SaveBasket(ctx, second)
	assert.ErrorIs(t, err, ErrRevisionConflict)
	assert.Zero(t, second.Revision)

	got, err := repo.GetBasket(ctx, "user123")
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "a", got.Items[0].ID)
}

func TestSaveBasket_ClearedBasketDetachesCoupon(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	b, err := repo.CreateBasket(ctx, "user123")
	require.NoError(t, err)
	b.AddItem(domain.BasketItem{ID: "a", ProductID: "p1", Quantity: 1})
	b.CouponID = "coupon-1"
	require.NoError(t, repo.SaveBasket(ctx, b))

	b.Clear(time.Now())
	require.NoError(t, repo.SaveBasket(ctx, b))

	got, err := repo.GetBasket(ctx, "user123")
	require.NoError(t, err)
	assert.Empty(t, got.Items)
	assert.Empty(t, got.CouponID)
	assert.Zero(t, got.Total)
}

func TestCreateBasket_Concurrent(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	errs := make([]error, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := repo.CreateBasket(ctx, "user123")
			errs[i] = err
			if err == nil {
				ids[i] = b.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
}
