package inventory

import (
	"context"
	"database/sql"
	"time"

	"github.com/joao-fontenele/streetwear-storefront/internal/domain"
)

// PostgresLedger keeps reservations in the shared reservations table.
// SumActive and Put are separate statements, so the availability check in
// Service is only race free when a Guard serializes them.
type PostgresLedger struct {
	db  *sql.DB
	cfg ledgerConfig
}

func NewPostgresLedger(db *sql.DB, opts ...LedgerOption) *PostgresLedger {
	return &PostgresLedger{
		db:  db,
		cfg: newLedgerConfig(opts),
	}
}

func (l *PostgresLedger) Put(ctx context.Context, productID, variantKey string, quantity int, orderID string) (domain.Reservation, error) {
	res := domain.Reservation{
		ProductID:  productID,
		VariantKey: variantKey,
		Quantity:   quantity,
		OrderID:    orderID,
		ExpiresAt:  l.cfg.expiry(),
	}

	_, err := querierFrom(ctx, l.db).ExecContext(ctx, `
		INSERT INTO reservations (product_id, variant_key, quantity, order_id, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (product_id, variant_key, order_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, expires_at = EXCLUDED.expires_at
	`, productID, variantKey, quantity, orderID, res.ExpiresAt)
	if err != nil {
		return domain.Reservation{}, err
	}

	return res, nil
}

func (l *PostgresLedger) SumActive(ctx context.Context, productID, variantKey string, now time.Time) (int, error) {
	var sum int
	err := querierFrom(ctx, l.db).QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM reservations
		WHERE product_id = $1 AND variant_key = $2 AND expires_at > $3
	`, productID, variantKey, now.UTC()).Scan(&sum)
	if err != nil {
		return 0, err
	}

	return sum, nil
}

func (l *PostgresLedger) DeleteByKey(ctx context.Context, productID, variantKey, orderID string) error {
	_, err := querierFrom(ctx, l.db).ExecContext(ctx, `
		DELETE FROM reservations
		WHERE product_id = $1 AND variant_key = $2 AND order_id = $3
	`, productID, variantKey, orderID)
	return err
}

func (l *PostgresLedger) DeleteByOrder(ctx context.Context, orderID string) error {
	_, err := querierFrom(ctx, l.db).ExecContext(ctx, `DELETE FROM reservations WHERE order_id = $1`, orderID)
	return err
}

func (l *PostgresLedger) SweepExpired(ctx context.Context, now time.Time) ([]domain.Reservation, error) {
	rows, err := querierFrom(ctx, l.db).QueryContext(ctx, `
		DELETE FROM reservations
		WHERE expires_at <= $1
		RETURNING product_id, variant_key, quantity, order_id, expires_at
	`, now.UTC())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var swept []domain.Reservation
	for rows.Next() {
		var res domain.Reservation
		if err := rows.Scan(&res.ProductID, &res.VariantKey, &res.Quantity, &res.OrderID, &res.ExpiresAt); err != nil {
			return nil, err
		}
		swept = append(swept, res)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return swept, nil
}
