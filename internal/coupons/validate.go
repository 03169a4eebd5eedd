package coupons

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/streetwear-storefront/internal/domain"
)

var (
	ErrNotFound     = errors.New("coupon not found")
	ErrInactive     = errors.New("coupon is not active")
	ErrNotStarted   = errors.New("coupon is not valid yet")
	ErrExpired      = errors.New("coupon has expired")
	ErrExhausted    = errors.New("coupon usage limit reached")
	ErrBelowMinimum = errors.New("order does not meet the coupon minimum amount")
	ErrUnknownType  = errors.New("unknown coupon type")
)

var hundred = decimal.NewFromInt(100)

// NormalizeCode is the form codes are stored and looked up in.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks coupon against an order subtotal at time now and returns the
// discount it grants, in minor currency units. Checkout and the validate
// endpoint both go through here, so they always agree on what is redeemable.
func Validate(coupon *domain.Coupon, subtotal int64, now time.Time) (int64, error) {
	if coupon == nil {
		return 0, ErrNotFound
	}
	if !coupon.Active {
		return 0, ErrInactive
	}
	if coupon.StartDate != nil && now.Before(*coupon.StartDate) {
		return 0, ErrNotStarted
	}
	if coupon.EndDate != nil && now.After(*coupon.EndDate) {
		return 0, ErrExpired
	}
	if coupon.UsageLimit > 0 && coupon.UsageCount >= coupon.UsageLimit {
		return 0, ErrExhausted
	}
	if coupon.MinOrderAmount > 0 && subtotal < coupon.MinOrderAmount {
		return 0, ErrBelowMinimum
	}

	return Discount(coupon, subtotal)
}

// Discount computes the amount coupon takes off subtotal without checking
// whether the coupon is redeemable. It never exceeds subtotal.
func Discount(coupon *domain.Coupon, subtotal int64) (int64, error) {
	var discount int64

	switch coupon.Type {
	case domain.CouponTypePercentage:
		discount = decimal.NewFromInt(subtotal).
			Mul(coupon.Value).
			Div(hundred).
			Round(0).
			IntPart()
		if coupon.MaxDiscountAmount > 0 {
			discount = min(discount, coupon.MaxDiscountAmount)
		}
	case domain.CouponTypeFixed:
		discount = coupon.Value.Round(0).IntPart()
	default:
		return 0, ErrUnknownType
	}

	return min(max(discount, 0), subtotal), nil
}
