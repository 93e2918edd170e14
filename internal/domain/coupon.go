package domain

import "time"

type CouponType string

const (
	CouponPercentage CouponType = "percentage"
	CouponFixed      CouponType = "fixed"
)

type Coupon struct {
	ID            string     `bson:"_id,omitempty" json:"id"`
	Code          string     `bson:"code" json:"code"`
	Type          CouponType `bson:"type" json:"type"`
	Value         float64    `bson:"value" json:"value"`
	MinOrderValue float64    `bson:"min_order_value" json:"min_order_value"`
	MaxDiscount   float64    `bson:"max_discount" json:"max_discount"` // 0 means no cap
	UsageLimit    int        `bson:"usage_limit" json:"usage_limit"`   // 0 means unlimited
	UsedCount     int        `bson:"used_count" json:"used_count"`
	RedeemedBy    []string   `bson:"redeemed_by,omitempty" json:"-"` // checkout ids already counted
	IsActive      bool       `bson:"is_active" json:"is_active"`
	ValidFrom     *time.Time `bson:"valid_from,omitempty" json:"valid_from,omitempty"`
	ValidTo       *time.Time `bson:"valid_to,omitempty" json:"valid_to,omitempty"`
}
