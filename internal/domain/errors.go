package domain

import "fmt"

// InsufficientStockError is returned when a requested quantity exceeds what is
// available for a variant. Its message is shown to the customer.
type InsufficientStockError struct {
	ProductID  string
	VariantKey string
	Name       string
	Available  int
	Requested  int
}

func (e *InsufficientStockError) Error() string {
	item := e.ProductID
	if e.Name != "" {
		item = e.Name
	}
	return fmt.Sprintf("insufficient stock for %s (%s): requested %d, available %d",
		item, e.VariantKey, e.Requested, e.Available)
}

type InvalidProductError struct {
	ProductID string
}

func (e *InvalidProductError) Error() string {
	return fmt.Sprintf("invalid product: %s", e.ProductID)
}

type PriceMismatchError struct {
	Submitted int64
	Computed  int64
}

func (e *PriceMismatchError) Error() string {
	return fmt.Sprintf("order total mismatch: submitted %d, computed %d", e.Submitted, e.Computed)
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}
