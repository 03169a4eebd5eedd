package inventory

import (
	"context"

	"github.com/joao-fontenele/streetwear-storefront/internal/domain"
)

// StockStore holds the total stock of every product variant. Implementations
// return *domain.NotFoundError when the product does not exist and report a
// total of zero for variants of an existing product that have no stock row.
type StockStore interface {
	VariantTotal(ctx context.Context, productID, variantKey string) (int, error)
	SetVariantTotal(ctx context.Context, productID, variantKey string, total int) error
	// DeductVariant subtracts quantity from the variant total, never going
	// below zero, and returns the new total.
	DeductVariant(ctx context.Context, productID, variantKey string, quantity int) (int, error)
	LowStock(ctx context.Context, threshold int) ([]domain.LowStockVariant, error)
}

func productNotFound(productID string) error {
	return &domain.NotFoundError{Resource: "product", ID: productID}
}
