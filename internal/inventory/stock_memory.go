package inventory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/joao-fontenele/streetwear-storefront/internal/domain"
)

type productStock struct {
	mu       sync.Mutex
	name     string
	variants map[string]int
}

// MemoryStockStore is the in-process StockStore the inventory and checkout
// unit tests run against; the storefront binary always keeps totals in
// Postgres. Updates to one product are serialized by that product's mutex.
type MemoryStockStore struct {
	mu       sync.RWMutex
	products map[string]*productStock
}

func NewMemoryStockStore() *MemoryStockStore {
	return &MemoryStockStore{
		products: make(map[string]*productStock),
	}
}

// AddProduct registers a product and its initial variant totals, replacing any
// previous entry.
func (s *MemoryStockStore) AddProduct(productID, name string, variants map[string]int) {
	stock := &productStock{
		name:     name,
		variants: make(map[string]int, len(variants)),
	}
	for key, total := range variants {
		stock.variants[key] = max(0, total)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[productID] = stock
}

func (s *MemoryStockStore) product(productID string) (*productStock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stock, ok := s.products[productID]
	if !ok {
		return nil, productNotFound(productID)
	}
	return stock, nil
}

func (s *MemoryStockStore) VariantTotal(_ context.Context, productID, variantKey string) (int, error) {
	stock, err := s.product(productID)
	if err != nil {
		return 0, err
	}

	stock.mu.Lock()
	defer stock.mu.Unlock()
	return stock.variants[variantKey], nil
}

func (s *MemoryStockStore) SetVariantTotal(_ context.Context, productID, variantKey string, total int) error {
	stock, err := s.product(productID)
	if err != nil {
		return err
	}

	stock.mu.Lock()
	defer stock.mu.Unlock()
	stock.variants[variantKey] = max(0, total)
	return nil
}

func (s *MemoryStockStore) DeductVariant(_ context.Context, productID, variantKey string, quantity int) (int, error) {
	stock, err := s.product(productID)
	if err != nil {
		return 0, err
	}

	stock.mu.Lock()
	defer stock.mu.Unlock()
	total := max(0, stock.variants[variantKey]-quantity)
	stock.variants[variantKey] = total
	return total, nil
}

func (s *MemoryStockStore) LowStock(_ context.Context, threshold int) ([]domain.LowStockVariant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.LowStockVariant
	for productID, stock := range s.products {
		stock.mu.Lock()
		for key, total := range stock.variants {
			if total <= threshold {
				out = append(out, domain.LowStockVariant{
					ProductID:   productID,
					ProductName: stock.name,
					VariantKey:  key,
					Total:       total,
				})
			}
		}
		stock.mu.Unlock()
	}

	slices.SortFunc(out, func(a, b domain.LowStockVariant) int {
		return cmp.Or(
			cmp.Compare(a.Total, b.Total),
			cmp.Compare(a.ProductID, b.ProductID),
			cmp.Compare(a.VariantKey, b.VariantKey),
		)
	})

	return out, nil
}
