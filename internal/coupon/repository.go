package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/basket-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	GetCoupon(ctx context.Context, id string) (*domain.Coupon, error)
	GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error)
	// IncrementUsage counts one use of the coupon by checkoutID. Repeating
	// the call for the same checkout does not count it again.
	IncrementUsage(ctx context.Context, id, checkoutID string) error
}

type mongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) Repository {
	return &mongoRepository{
		collection: db.Collection("coupons"),
	}
}

func (m *mongoRepository) GetCoupon(ctx context.Context, id string) (*domain.Coupon, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrCouponNotFound
	}
	return m.findOne(ctx, bson.M{"_id": oid})
}

func (m *mongoRepository) GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	return m.findOne(ctx, bson.M{"code": normalizeCode(code)})
}

func (m *mongoRepository) IncrementUsage(ctx context.Context, id, checkoutID string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrCouponNotFound
	}

	result, err := m.collection.UpdateOne(ctx,
		bson.M{"_id": oid, "redeemed_by": bson.M{"$ne": checkoutID}},
		bson.M{
			"$inc":  bson.M{"used_count": 1},
			"$push": bson.M{"redeemed_by": checkoutID},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to increment coupon usage: %w", err)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	// Either the coupon is gone or this checkout was already counted.
	n, err := m.collection.CountDocuments(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("failed to increment coupon usage: %w", err)
	}
	if n == 0 {
		return ErrCouponNotFound
	}
	return nil
}

func (m *mongoRepository) CreateIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "code", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create coupon indexes: %w", err)
	}
	return nil
}

func (m *mongoRepository) findOne(ctx context.Context, filter bson.M) (*domain.Coupon, error) {
	var c domain.Coupon
	err := m.collection.FindOne(ctx, filter).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCouponNotFound
		}
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}
	return &c, nil
}

// Coupon codes are stored upper-case.
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
