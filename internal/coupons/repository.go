package coupons

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/streetwear-storefront/internal/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetByCode returns nil, nil when no coupon has that code.
func (r *Repository) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	var (
		coupon      domain.Coupon
		value       decimal.Decimal
		usageLimit  sql.NullInt64
		startDate   sql.NullTime
		endDate     sql.NullTime
		minOrder    sql.NullInt64
		maxDiscount sql.NullInt64
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT code, type, value, active, usage_limit, usage_count,
		       start_date, end_date, min_order_amount, max_discount_amount
		FROM coupons
		WHERE code = $1
	`, NormalizeCode(code)).Scan(
		&coupon.Code, &coupon.Type, &value, &coupon.Active, &usageLimit, &coupon.UsageCount,
		&startDate, &endDate, &minOrder, &maxDiscount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	coupon.Value = value
	coupon.UsageLimit = int(usageLimit.Int64)
	coupon.MinOrderAmount = minOrder.Int64
	coupon.MaxDiscountAmount = maxDiscount.Int64
	if startDate.Valid {
		coupon.StartDate = &startDate.Time
	}
	if endDate.Valid {
		coupon.EndDate = &endDate.Time
	}

	return &coupon, nil
}
