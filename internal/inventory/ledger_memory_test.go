package inventory

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryLedger(t *testing.T) {
	ctx := context.Background()

	t.Run("put sets expiry from ttl", func(t *testing.T) {
		clock := newFakeClock()
		ledger := NewMemoryLedger(LedgerClock(clock.Now))

		res, err := ledger.Put(ctx, "hoodie", "black-M", 2, "order-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := clock.Now().Add(30 * time.Minute)
		if !res.ExpiresAt.Equal(want) {
			t.Errorf("expected expiry %v, got %v", want, res.ExpiresAt)
		}
	})

	t.Run("put replaces the reservation for the same key", func(t *testing.T) {
		clock := newFakeClock()
		ledger := NewMemoryLedger(LedgerClock(clock.Now))

		_, _ = ledger.Put(ctx, "hoodie", "black-M", 2, "order-1")
		_, _ = ledger.Put(ctx, "hoodie", "black-M", 5, "order-1")

		sum, _ := ledger.SumActive(ctx, "hoodie", "black-M", clock.Now())
		if sum != 5 {
			t.Errorf("expected 5 reserved, got %d", sum)
		}
		if n := len(ledger.ByOrder("order-1")); n != 1 {
			t.Errorf("expected 1 reservation, got %d", n)
		}
	})

	t.Run("sum active ignores expired and other variants", func(t *testing.T) {
		clock := newFakeClock()
		ledger := NewMemoryLedger(LedgerClock(clock.Now), LedgerTTL(10*time.Minute))

		_, _ = ledger.Put(ctx, "hoodie", "black-M", 2, "order-1")
		clock.Advance(5 * time.Minute)
		_, _ = ledger.Put(ctx, "hoodie", "black-M", 3, "order-2")
		_, _ = ledger.Put(ctx, "hoodie", "black-L", 7, "order-2")

		sum, _ := ledger.SumActive(ctx, "hoodie", "black-M", clock.Now())
		if sum != 5 {
			t.Fatalf("expected 5 reserved, got %d", sum)
		}

		clock.Advance(5 * time.Minute)
		sum, _ = ledger.SumActive(ctx, "hoodie", "black-M", clock.Now())
		if sum != 3 {
			t.Errorf("expected expired reservation to be excluded, got %d", sum)
		}
	})

	t.Run("delete by key is idempotent", func(t *testing.T) {
		ledger := NewMemoryLedger()
		_, _ = ledger.Put(ctx, "hoodie", "black-M", 2, "order-1")

		if err := ledger.DeleteByKey(ctx, "hoodie", "black-M", "order-1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := ledger.DeleteByKey(ctx, "hoodie", "black-M", "order-1"); err != nil {
			t.Fatalf("unexpected error on second delete: %v", err)
		}
		if n := len(ledger.ByOrder("order-1")); n != 0 {
			t.Errorf("expected no reservations, got %d", n)
		}
	})

	t.Run("delete by order removes every variant of that order only", func(t *testing.T) {
		ledger := NewMemoryLedger()
		_, _ = ledger.Put(ctx, "hoodie", "black-M", 2, "order-1")
		_, _ = ledger.Put(ctx, "tee", "white-S", 1, "order-1")
		_, _ = ledger.Put(ctx, "tee", "white-S", 1, "order-2")

		if err := ledger.DeleteByOrder(ctx, "order-1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n := len(ledger.ByOrder("order-1")); n != 0 {
			t.Errorf("expected order-1 to have no reservations, got %d", n)
		}
		if n := len(ledger.ByOrder("order-2")); n != 1 {
			t.Errorf("expected order-2 to keep 1 reservation, got %d", n)
		}
	})

	t.Run("sweep removes and returns expired reservations", func(t *testing.T) {
		clock := newFakeClock()
		ledger := NewMemoryLedger(LedgerClock(clock.Now), LedgerTTL(time.Minute))

		_, _ = ledger.Put(ctx, "hoodie", "black-M", 2, "order-1")
		clock.Advance(30 * time.Second)
		_, _ = ledger.Put(ctx, "tee", "white-S", 1, "order-2")
		clock.Advance(30 * time.Second)

		swept, err := ledger.SweepExpired(ctx, clock.Now())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(swept) != 1 || swept[0].OrderID != "order-1" {
			t.Fatalf("expected only order-1 to be swept, got %+v", swept)
		}
		if n := len(ledger.ByOrder("order-1")); n != 0 {
			t.Errorf("expected swept reservation to be gone, got %d", n)
		}
		if n := len(ledger.ByOrder("order-2")); n != 1 {
			t.Errorf("expected order-2 to remain, got %d", n)
		}
	})
}
