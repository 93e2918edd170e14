package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/basket-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewMongoRepository(db *mongo.Database) BasketRepository {
	return &mongoRepository{
		collection: db.Collection("baskets"),
		now:        time.Now,
	}
}

func (m *mongoRepository) GetBasket(ctx context.Context, userID string) (*domain.Basket, error) {
	var basket domain.Basket

	filter := bson.M{"user_id": userID}
	err := m.collection.FindOne(ctx, filter).Decode(&basket)

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrBasketNotFound
		}
		return nil, fmt.Errorf("failed to get basket: %w", err)
	}

	if basket.Items == nil {
		basket.Items = []domain.BasketItem{}
	}
	return &basket, nil
}

func (m *mongoRepository) CreateBasket(ctx context.Context, userID string) (*domain.Basket, error) {
	basket := domain.NewBasket(userID, m.now())

	res, err := m.collection.InsertOne(ctx, basket)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return m.GetBasket(ctx, userID)
		}
		return nil, fmt.Errorf("failed to create basket: %w", err)
	}

	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		basket.ID = oid.Hex()
	}
	return basket, nil
}

func (m *mongoRepository) SaveBasket(ctx context.Context, b *domain.Basket) error {
	items := b.Items
	if items == nil {
		items = []domain.BasketItem{}
	}

	filter := bson.M{
		"user_id":  b.UserID,
		"revision": b.Revision,
	}
	update := bson.M{
		"$set": bson.M{
			"items":           items,
			"subtotal":        b.Subtotal,
			"discount":        b.Discount,
			"shipping_cost":   b.ShippingCost,
			"shipping_method": b.ShippingMethod,
			"total":           b.Total,
			"points_to_use":   b.PointsToUse,
			"coupon_id":       b.CouponID,
			"last_updated":    b.LastUpdated,
		},
		"$inc": bson.M{"revision": 1},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to save basket: %w", err)
	}

	if result.MatchedCount == 0 {
		return ErrRevisionConflict
	}

	b.Revision++
	return nil
}

func (m *mongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
