package orders

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/streetwear-storefront/internal/domain"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create stores the order, its items and, when a discount was applied, the
// coupon redemption in one transaction. order.ID must already be set.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, customer_name, customer_email, customer_phone, shipping_address,
			subtotal, shipping, discount, total, coupon_code,
			payment_method, payment_status, status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
	`,
		order.ID, order.Customer.Name, order.Customer.Email, order.Customer.Phone, order.Customer.Address,
		order.Subtotal, order.Shipping, order.Discount, order.Total, nullString(order.CouponCode),
		order.PaymentMethod, order.PaymentStatus, order.Status, order.CreatedAt,
	)
	if err != nil {
		return err
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, name, color, size, variant_key, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, uuid.New().String(), order.ID, item.ProductID, item.Name, item.Color, item.Size,
			item.VariantKey, item.Quantity, item.UnitPrice, item.LineTotal)
		if err != nil {
			return err
		}
	}

	if redeemsCoupon(order) {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO coupon_usage (id, coupon_code, order_id, customer_email, discount, used_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.New().String(), order.CouponCode, order.ID, order.Customer.Email, order.Discount, order.CreatedAt)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE coupons SET usage_count = usage_count + 1
			WHERE code = $1
		`, order.CouponCode)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Discard removes an order stored by Create and gives back its coupon
// redemption.
func (r *OrderRepository) Discard(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if redeemsCoupon(order) {
		result, err := tx.ExecContext(ctx, `DELETE FROM coupon_usage WHERE order_id = $1`, order.ID)
		if err != nil {
			return err
		}

		released, err := result.RowsAffected()
		if err != nil {
			return err
		}

		if released > 0 {
			_, err = tx.ExecContext(ctx, `
				UPDATE coupons SET usage_count = GREATEST(usage_count - $2, 0)
				WHERE code = $1
			`, order.CouponCode, released)
			if err != nil {
				return err
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, order.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, order.ID); err != nil {
		return err
	}

	return tx.Commit()
}

// GetByIDAndEmail returns nil, nil unless an order with that id belongs to
// exactly that email.
func (r *OrderRepository) GetByIDAndEmail(ctx context.Context, id, email string) (*domain.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	order := &domain.Order{}
	var couponCode sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, customer_name, customer_email, customer_phone, shipping_address,
		       subtotal, shipping, discount, total, coupon_code,
		       payment_method, payment_status, status, created_at
		FROM orders
		WHERE id = $1 AND customer_email = $2
	`, id, email).Scan(
		&order.ID, &order.Customer.Name, &order.Customer.Email, &order.Customer.Phone, &order.Customer.Address,
		&order.Subtotal, &order.Shipping, &order.Discount, &order.Total, &couponCode,
		&order.PaymentMethod, &order.PaymentStatus, &order.Status, &order.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	order.CouponCode = couponCode.String

	items, err := r.itemsByOrder(ctx, []string{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]
	if order.Items == nil {
		order.Items = []domain.OrderItem{}
	}

	return order, nil
}

// ListByEmail returns the customer's orders, newest first, loading items for
// all of them in one query.
func (r *OrderRepository) ListByEmail(ctx context.Context, email string) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, customer_name, customer_email, customer_phone, shipping_address,
		       subtotal, shipping, discount, total, coupon_code,
		       payment_method, payment_status, status, created_at
		FROM orders
		WHERE customer_email = $1
		ORDER BY created_at DESC
	`, email)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var orders []domain.Order
	var orderIDs []string

	for rows.Next() {
		var order domain.Order
		var couponCode sql.NullString
		if err := rows.Scan(
			&order.ID, &order.Customer.Name, &order.Customer.Email, &order.Customer.Phone, &order.Customer.Address,
			&order.Subtotal, &order.Shipping, &order.Discount, &order.Total, &couponCode,
			&order.PaymentMethod, &order.PaymentStatus, &order.Status, &order.CreatedAt,
		); err != nil {
			return nil, err
		}
		order.CouponCode = couponCode.String
		orders = append(orders, order)
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	items, err := r.itemsByOrder(ctx, orderIDs)
	if err != nil {
		return nil, err
	}

	for i := range orders {
		orders[i].Items = items[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []domain.OrderItem{}
		}
	}

	return orders, nil
}

func (r *OrderRepository) itemsByOrder(ctx context.Context, orderIDs []string) (map[string][]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, name, color, size, variant_key, quantity, unit_price, line_total
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, name, variant_key
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := make(map[string][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := rows.Scan(&orderID, &item.ProductID, &item.Name, &item.Color, &item.Size,
			&item.VariantKey, &item.Quantity, &item.UnitPrice, &item.LineTotal); err != nil {
			return nil, err
		}
		items[orderID] = append(items[orderID], item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

// UpdateStatus returns a NotFoundError when the order does not exist.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	if _, err := uuid.Parse(id); err != nil {
		return &domain.NotFoundError{Resource: "order", ID: id}
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return &domain.NotFoundError{Resource: "order", ID: id}
	}

	return nil
}

func redeemsCoupon(order *domain.Order) bool {
	return order.CouponCode != "" && order.Discount > 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
