package inventory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/joao-fontenele/streetwear-storefront/internal/domain"
)

type reservationKey struct {
	productID  string
	variantKey string
	orderID    string
}

// MemoryLedger keeps reservations in process memory. Reservations do not
// survive a restart, so it only suits single-instance deployments.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[reservationKey]domain.Reservation
	cfg     ledgerConfig
}

func NewMemoryLedger(opts ...LedgerOption) *MemoryLedger {
	return &MemoryLedger{
		entries: make(map[reservationKey]domain.Reservation),
		cfg:     newLedgerConfig(opts),
	}
}

func (l *MemoryLedger) Put(_ context.Context, productID, variantKey string, quantity int, orderID string) (domain.Reservation, error) {
	res := domain.Reservation{
		ProductID:  productID,
		VariantKey: variantKey,
		Quantity:   quantity,
		OrderID:    orderID,
		ExpiresAt:  l.cfg.expiry(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[reservationKey{productID, variantKey, orderID}] = res

	return res, nil
}

func (l *MemoryLedger) SumActive(_ context.Context, productID, variantKey string, now time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var sum int
	for key, res := range l.entries {
		if key.productID != productID || key.variantKey != variantKey {
			continue
		}
		if res.Expired(now) {
			continue
		}
		sum += res.Quantity
	}

	return sum, nil
}

func (l *MemoryLedger) DeleteByKey(_ context.Context, productID, variantKey, orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, reservationKey{productID, variantKey, orderID})
	return nil
}

func (l *MemoryLedger) DeleteByOrder(_ context.Context, orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key := range l.entries {
		if key.orderID == orderID {
			delete(l.entries, key)
		}
	}

	return nil
}

func (l *MemoryLedger) SweepExpired(_ context.Context, now time.Time) ([]domain.Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var swept []domain.Reservation
	for key, res := range l.entries {
		if res.Expired(now) {
			swept = append(swept, res)
			delete(l.entries, key)
		}
	}

	slices.SortFunc(swept, func(a, b domain.Reservation) int {
		return cmp.Or(
			a.ExpiresAt.Compare(b.ExpiresAt),
			cmp.Compare(a.OrderID, b.OrderID),
			cmp.Compare(a.ProductID, b.ProductID),
			cmp.Compare(a.VariantKey, b.VariantKey),
		)
	})

	return swept, nil
}

// ByOrder returns the reservations currently held for an order, expired or not.
// It is not part of Ledger; the service and checkout tests use it to inspect
// holds.
func (l *MemoryLedger) ByOrder(orderID string) []domain.Reservation {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []domain.Reservation
	for key, res := range l.entries {
		if key.orderID == orderID {
			out = append(out, res)
		}
	}
	return out
}
