package inventory

import (
	"context"
	"time"

	"github.com/joao-fontenele/streetwear-storefront/internal/domain"
)

const DefaultReservationTTL = 30 * time.Minute

// Ledger stores active reservations. Expired entries must never count towards
// SumActive, whether or not SweepExpired has removed them yet.
type Ledger interface {
	// Put creates or replaces the reservation for (productID, variantKey, orderID)
	// with a fresh expiry.
	Put(ctx context.Context, productID, variantKey string, quantity int, orderID string) (domain.Reservation, error)
	SumActive(ctx context.Context, productID, variantKey string, now time.Time) (int, error)
	DeleteByKey(ctx context.Context, productID, variantKey, orderID string) error
	DeleteByOrder(ctx context.Context, orderID string) error
	// SweepExpired removes and returns every reservation with expiresAt <= now.
	SweepExpired(ctx context.Context, now time.Time) ([]domain.Reservation, error)
}

type LedgerOption func(*ledgerConfig)

type ledgerConfig struct {
	ttl time.Duration
	now func() time.Time
}

func LedgerTTL(ttl time.Duration) LedgerOption {
	return func(cfg *ledgerConfig) {
		cfg.ttl = ttl
	}
}

func LedgerClock(now func() time.Time) LedgerOption {
	return func(cfg *ledgerConfig) {
		cfg.now = now
	}
}

func newLedgerConfig(opts []LedgerOption) ledgerConfig {
	cfg := ledgerConfig{
		ttl: DefaultReservationTTL,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c ledgerConfig) expiry() time.Time {
	return c.now().UTC().Add(c.ttl)
}
