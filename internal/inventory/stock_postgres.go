package inventory

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/joao-fontenele/streetwear-storefront/internal/domain"
)

const foreignKeyViolation = "23503"

// PostgresStockStore keeps one variant_stock row per product variant, so
// concurrent updates to different variants of one product never overwrite
// each other.
type PostgresStockStore struct {
	db *sql.DB
}

func NewPostgresStockStore(db *sql.DB) *PostgresStockStore {
	return &PostgresStockStore{db: db}
}

func (s *PostgresStockStore) VariantTotal(ctx context.Context, productID, variantKey string) (int, error) {
	var id string
	var total sql.NullInt64

	err := querierFrom(ctx, s.db).QueryRowContext(ctx, `
		SELECT p.id, v.total
		FROM products p
		LEFT JOIN variant_stock v ON v.product_id = p.id AND v.variant_key = $2
		WHERE p.id = $1
	`, productID, variantKey).Scan(&id, &total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, productNotFound(productID)
		}
		return 0, err
	}

	return int(total.Int64), nil
}

func (s *PostgresStockStore) SetVariantTotal(ctx context.Context, productID, variantKey string, total int) error {
	_, err := querierFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO variant_stock (product_id, variant_key, total, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (product_id, variant_key)
		DO UPDATE SET total = EXCLUDED.total, updated_at = NOW()
	`, productID, variantKey, max(0, total))
	if isForeignKeyViolation(err) {
		return productNotFound(productID)
	}
	return err
}

func (s *PostgresStockStore) DeductVariant(ctx context.Context, productID, variantKey string, quantity int) (int, error) {
	var total int

	err := querierFrom(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO variant_stock (product_id, variant_key, total, updated_at)
		VALUES ($1, $2, 0, NOW())
		ON CONFLICT (product_id, variant_key)
		DO UPDATE SET total = GREATEST(variant_stock.total - $3, 0), updated_at = NOW()
		RETURNING total
	`, productID, variantKey, quantity).Scan(&total)
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, productNotFound(productID)
		}
		return 0, err
	}

	return total, nil
}

func (s *PostgresStockStore) LowStock(ctx context.Context, threshold int) ([]domain.LowStockVariant, error) {
	rows, err := querierFrom(ctx, s.db).QueryContext(ctx, `
		SELECT v.product_id, p.name, v.variant_key, v.total
		FROM variant_stock v
		JOIN products p ON p.id = v.product_id
		WHERE v.total <= $1
		ORDER BY v.total, v.product_id, v.variant_key
	`, threshold)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []domain.LowStockVariant
	for rows.Next() {
		var v domain.LowStockVariant
		if err := rows.Scan(&v.ProductID, &v.ProductName, &v.VariantKey, &v.Total); err != nil {
			return nil, err
		}
		out = append(out, v)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation
}
