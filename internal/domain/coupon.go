package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CouponType string

const (
	CouponTypePercentage CouponType = "percentage"
	CouponTypeFixed      CouponType = "fixed"
)

// Coupon amounts are in minor currency units. Value is a percentage for
// percentage coupons and an amount for fixed ones. Zero limits mean unlimited.
type Coupon struct {
	Code              string          `json:"code"`
	Type              CouponType      `json:"type"`
	Value             decimal.Decimal `json:"value"`
	Active            bool            `json:"active"`
	UsageLimit        int             `json:"usage_limit"`
	UsageCount        int             `json:"usage_count"`
	StartDate         *time.Time      `json:"start_date,omitempty"`
	EndDate           *time.Time      `json:"end_date,omitempty"`
	MinOrderAmount    int64           `json:"min_order_amount"`
	MaxDiscountAmount int64           `json:"max_discount_amount"`
}
