package inventory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joao-fontenele/streetwear-storefront/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	svc    *Service
	stock  *MemoryStockStore
	ledger *MemoryLedger
	clock  *fakeClock
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	clock := newFakeClock()
	stock := NewMemoryStockStore()
	ledger := NewMemoryLedger(LedgerClock(clock.Now))
	opts = append([]Option{WithClock(clock.Now)}, opts...)

	return &testEnv{
		svc:    NewService(stock, ledger, discardLogger(), opts...),
		stock:  stock,
		ledger: ledger,
		clock:  clock,
	}
}

func (e *testEnv) level(t *testing.T, productID, variantKey string) domain.StockLevel {
	t.Helper()
	level, err := e.svc.GetStock(context.Background(), productID, variantKey)
	if err != nil {
		t.Fatalf("GetStock failed: %v", err)
	}
	if level.Available != max(0, level.Total-level.Reserved) {
		t.Fatalf("available %d does not match max(0, %d - %d)", level.Available, level.Total, level.Reserved)
	}
	return level
}

func item(productID, variantKey string, quantity int) domain.LineItem {
	return domain.LineItem{ProductID: productID, VariantKey: variantKey, Quantity: quantity}
}

func TestService_GetStock(t *testing.T) {
	env := newTestEnv(t)
	env.stock.AddProduct("hoodie", "Box Logo Hoodie", map[string]int{"black-M": 10})

	t.Run("unknown product has zero stock", func(t *testing.T) {
		level := env.level(t, "ghost", "black-M")
		if level.Total != 0 || level.Available != 0 || level.Reserved != 0 {
			t.Errorf("expected zero stock, got %+v", level)
		}
	})

	t.Run("unknown variant has zero stock", func(t *testing.T) {
		level := env.level(t, "hoodie", "pink-XS")
		if level.Total != 0 {
			t.Errorf("expected zero total, got %d", level.Total)
		}
	})

	t.Run("reservations reduce availability but not total", func(t *testing.T) {
		if _, err := env.svc.ReserveItems(context.Background(), []domain.LineItem{item("hoodie", "black-M", 4)}, "order-1"); err != nil {
			t.Fatalf("ReserveItems failed: %v", err)
		}

		level := env.level(t, "hoodie", "black-M")
		if level.Total != 10 || level.Reserved != 4 || level.Available != 6 {
			t.Errorf("unexpected level: %+v", level)
		}
	})
}

func TestService_ReserveItems(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects requests above availability", func(t *testing.T) {
		env := newTestEnv(t)
		env.stock.AddProduct("hoodie", "Box Logo Hoodie", map[string]int{"black-M": 2})

		_, err := env.svc.ReserveItems(ctx, []domain.LineItem{{
			ProductID: "hoodie", VariantKey: "black-M", Name: "Box Logo Hoodie", Quantity: 3,
		}}, "order-1")

		var insufficient *domain.InsufficientStockError
		if !errors.As(err, &insufficient) {
			t.Fatalf("expected InsufficientStockError, got %v", err)
		}
		if insufficient.Available != 2 || insufficient.Requested != 3 {
			t.Errorf("unexpected error details: %+v", insufficient)
		}
		if want := "insufficient stock for Box Logo Hoodie (black-M): requested 3, available 2"; err.Error() != want {
			t.Errorf("expected %q, got %q", want, err.Error())
		}
	})

	t.Run("unknown product is not found", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.svc.ReserveItems(ctx, []domain.LineItem{item("ghost", "black-M", 1)}, "order-1")
		var notFound *domain.NotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
	})

	t.Run("rejects non positive quantities", func(t *testing.T) {
		env := newTestEnv(t)
		env.stock.AddProduct("hoodie", "Box Logo Hoodie", map[string]int{"black-M": 2})

		for _, qty := range []int{0, -1} {
			_, err := env.svc.ReserveItems(ctx, []domain.LineItem{item("hoodie", "black-M", qty)}, "order-1")
			if !errors.Is(err, ErrInvalidQuantity) {
				t.Errorf("quantity %d: expected ErrInvalidQuantity, got %v", qty, err)
			}
		}
	})

	t.Run("requires an order id", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.svc.ReserveItems(ctx, []domain.LineItem{item("hoodie", "black-M", 1)}, "")
		if !errors.Is(err, ErrMissingOrderID) {
			t.Fatalf("expected ErrMissingOrderID, got %v", err)
		}
	})

	t.Run("duplicate lines for one variant are checked together", func(t *testing.T) {
		env := newTestEnv(t)
		env.stock.AddProduct("hoodie", "Box Logo Hoodie", map[string]int{"black-M": 3})

		_, err := env.svc.ReserveItems(ctx, []domain.LineItem{
			item("hoodie", "black-M", 2),
			item("hoodie", "black-M", 2),
		}, "order-1")
		var insufficient *domain.InsufficientStockError
		if !errors.As(err, &insufficient) || insufficient.Requested != 4 {
			t.Fatalf("expected InsufficientStockError for 4 units, got %v", err)
		}

		res, err := env.svc.ReserveItems(ctx, []domain.LineItem{
			item("hoodie", "black-M", 1),
			item("hoodie", "black-M", 2),
		}, "order-1")
		if err != nil {
			t.Fatalf("ReserveItems failed: %v", err)
		}
		if len(res) != 1 || res[0].Quantity != 3 {
			t.Fatalf("expected one reservation of 3, got %+v", res)
		}
	})

	t.Run("rejects quantities whose merged sum would overflow", func(t *testing.T) {
		env := newTestEnv(t)
		env.stock.AddProduct("hoodie", "Box Logo Hoodie", map[string]int{"black-M": 5})

		for name, items := range map[string][]domain.LineItem{
			"single huge line": {item("hoodie", "black-M", math.MaxInt)},
			"two huge lines":   {item("hoodie", "black-M", math.MaxInt), item("hoodie", "black-M", math.MaxInt)},
			"sum above cap":    {item("hoodie", "black-M", MaxLineQuantity), item("hoodie", "black-M", 1)},
		} {
			_, err := env.svc.ReserveItems(ctx, items, "order-1")
			if !errors.Is(err, ErrInvalidQuantity) {
				t.Errorf("%s: expected ErrInvalidQuantity, got %v", name, err)
			}
		}

		level := env.level(t, "hoodie", "black-M")
		if level.Reserved != 0 || level.Available != 5 {
			t.Fatalf("expected untouched stock, got %+v", level)
		}

		if err := env.svc.ConfirmReservation(ctx, "order-1", []domain.LineItem{
			item("hoodie", "black-M", math.MaxInt),
			item("hoodie", "black-M", math.MaxInt),
		}); !errors.Is(err, ErrInvalidQuantity) {
			t.Fatalf("expected ErrInvalidQuantity from confirm, got %v", err)
		}
		if level := env.level(t, "hoodie", "black-M"); level.Total != 5 {
			t.Fatalf("expected total 5 after rejected confirm, got %d", level.Total)
		}
	})

	t.Run("failure on a later item releases earlier holds", func(t *testing.T) {
		env := newTestEnv(t)
		env.stock.AddProduct("hoodie", "Box Logo Hoodie", map[string]int{"black-M": 5})
		env.stock.AddProduct("tee", "Boxy Tee", map[string]int{"white-S": 0})
		env.stock.AddProduct("cap", "Six Panel Cap", map[string]int{"one-OS": 5})

		_, err := env.svc.ReserveItems(ctx, []domain.LineItem{
			item("hoodie", "black-M", 1),
			item("tee", "white-S", 1),
			item("cap", "one-OS", 1),
		}, "order-1")

		var insufficient *domain.InsufficientStockError
		if !errors.As(err, &insufficient) || insufficient.ProductID != "tee" {
			t.Fatalf("expected InsufficientStockError for tee, got %v", err)
		}
		if n := len(env.ledger.ByOrder("order-1")); n != 0 {
			t.Errorf("expected no reservations left for order-1, got %d", n)
		}
		if level := env.level(t, "hoodie", "black-M"); level.Available != 5 {
			t.Errorf("expected hoodie availability restored to 5, got %d", level.Available)
		}
	})

	t.Run("ledger write failure releases earlier holds", func(t *testing.T) {
		clock := newFakeClock()
		stock := NewMemoryStockStore()
		stock.AddProduct("hoodie", "Box Logo Hoodie", map[string]int{"black-M": 5})
		stock.AddProduct("tee", "Boxy Tee", map[string]int{"white-S": 5})
		ledger := &failingLedger{
			MemoryLedger: NewMemoryLedger(LedgerClock(clock.Now)),
			failProduct:  "tee",
		}
		svc := NewService(stock, ledger, discardLogger(), WithClock(clock.Now))

		_, err := svc.ReserveItems(ctx, []domain.LineItem{
			item("hoodie", "black-M", 1),
			item("tee", "white-S", 1),
		}, "order-1")
		if !errors.Is(err, errLedgerDown) {
			t.Fatalf("expected ledger error, got %v", err)
		}
		if n := len(ledger.ByOrder("order-1")); n != 0 {
			t.Errorf("expected no reservations left for order-1, got %d", n)
		}
	})

	t.Run("expired reservations stop counting before they are swept", func(t *testing.T) {
		env := newTestEnv(t)
		env.stock.AddProduct("hoodie", "Box Logo Hoodie", map[string]int{"black-M": 1})

		if _, err := env.svc.ReserveItems(ctx, []domain.LineItem{item("hoodie", "black-M", 1)}, "order-1"); err != nil {
			t.Fatalf("ReserveItems failed: %v", err)
		}
		if _, err := env.svc.ReserveItems(ctx, []domain.LineItem{item("hoodie", "black-M", 1)}, "order-2"); err == nil {
			t.Fatal("expected second reservation to fail while the first is active")
		}

		env.clock.Advance(DefaultReservationTTL)

		if _, err := env.svc.ReserveItems(ctx, []domain.LineItem{item("hoodie", "black-M", 1)}, "order-2"); err != nil {
			t.Fatalf("expected reservation after expiry to succeed, got %v", err)
		}
	})
}

func TestService_ConfirmReservation(t *testing.T) {
	ctx := context.Background()

	t.Run("deducts stock and removes the hold", func(t *testing.T) {
		env := newTestEnv(t)
		env.stock.AddProduct("hoodie", "Box Logo Hoodie", map[string]int{"black-M": 10})
		items := []domain.LineItem{item("hoodie", "black-M", 3)}

		if _, err := env.svc.ReserveItems(ctx, items, "order-1"); err != nil {
			t.Fatalf("ReserveItems failed: %v", err)
		}
		if err := env.svc.ConfirmReservation(ctx, "order-1", items); err != nil {
			t.Fatalf("ConfirmReservation failed: %v", err)
		}

		level := env.level(t, "hoodie", "black-M")
		if level.Total != 7 || level.Reserved != 0 || level.Available != 7 {
			t.Errorf("unexpected level: %+v", level)
		}
		if n := len(env.ledger.ByOrder("order-1")); n != 0 {
			t.Errorf("expected no reservations, got %d", n)
		}
	})

	t.Run("deducts even after the hold expired", func(t *testing.T) {
		env := newTestEnv(t)
		env.stock.AddProduct("hoodie", "Box Logo Hoodie", map[string]int{"black-M": 10})
		items := []domain.LineItem{item("hoodie", "black-M", 3)}

		_, _ = env.svc.ReserveItems(ctx, items, "order-1")
		env.clock.Advance(time.Hour)
		_, _ = env.svc.CleanupExpiredReservations(ctx)

		if err := env.svc.ConfirmReservation(ctx, "order-1", items); err != nil {
			t.Fatalf("ConfirmReservation failed: %v", err)
		}
		if level := env.level(t, "hoodie", "black-M"); level.Total != 7 {
			t.Errorf("expected total 7, got %d", level.Total)
		}
	})

	t.Run("second confirm deducts again floored at zero", func(t *testing.T) {
		env := newTestEnv(t)
		env.stock.AddProduct("hoodie", "Box Logo Hoodie", map[string]int{"black-M": 5})
		items := []domain.LineItem{item("hoodie", "black-M", 3)}

		_, _ = env.svc.ReserveItems(ctx, items, "order-1")
		_ = env.svc.ConfirmReservation(ctx, "order-1", items)
		if err := env.svc.ConfirmReservation(ctx, "order-1", items); err != nil {
			t.Fatalf("second ConfirmReservation failed: %v", err)
		}

		if level := env.level(t, "hoodie", "black-M"); level.Total != 0 {
			t.Errorf("expected total floored at 0, got %d", level.Total)
		}
	})

	t.Run("unknown product fails", func(t *testing.T) {
		env := newTestEnv(t)
		err := env.svc.ConfirmReservation(ctx, "order-1", []domain.LineItem{item("ghost", "black-M", 1)})
		var notFound *domain.NotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
	})
}

func TestService_CancelReservation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.stock.AddProduct("hoodie", "Box Logo Hoodie", map[string]int{"black-M": 5})

	if _, err := env.svc.ReserveItems(ctx, []domain.LineItem{item("hoodie", "black-M", 2)}, "order-1"); err != nil {
		t.Fatalf("ReserveItems failed: %v", err)
	}
	if err := env.svc.CancelReservation(ctx, "order-1"); err != nil {
		t.Fatalf("CancelReservation failed: %v", err)
	}
	// cancelling an order without holds is a no-op
	if err := env.svc.CancelReservation(ctx, "order-1"); err != nil {
		t.Fatalf("second CancelReservation failed: %v", err)
	}

	level := env.level(t, "hoodie", "black-M")
	if level.Total != 5 || level.Available != 5 {
		t.Errorf("expected stock untouched at 5, got %+v", level)
	}
}

func TestService_UpdateStock(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.stock.AddProduct("hoodie", "Box Logo Hoodie", map[string]int{"black-M": 5})

	t.Run("sets the absolute total", func(t *testing.T) {
		level, err := env.svc.UpdateStock(ctx, "hoodie", "black-M", 12)
		if err != nil {
			t.Fatalf("UpdateStock failed: %v", err)
		}
		if level.Total != 12 || level.Available != 12 {
			t.Errorf("unexpected level: %+v", level)
		}
	})

	t.Run("clamps negative totals", func(t *testing.T) {
		level, err := env.svc.UpdateStock(ctx, "hoodie", "black-M", -3)
		if err != nil {
			t.Fatalf("UpdateStock failed: %v", err)
		}
		if level.Total != 0 {
			t.Errorf("expected 0, got %d", level.Total)
		}
	})

	t.Run("reserved above total floors availability at zero", func(t *testing.T) {
		_, _ = env.svc.UpdateStock(ctx, "hoodie", "black-M", 4)
		_, _ = env.svc.ReserveItems(ctx, []domain.LineItem{item("hoodie", "black-M", 4)}, "order-1")

		level, err := env.svc.UpdateStock(ctx, "hoodie", "black-M", 1)
		if err != nil {
			t.Fatalf("UpdateStock failed: %v", err)
		}
		if level.Available != 0 || level.Reserved != 4 {
			t.Errorf("unexpected level: %+v", level)
		}
	})

	t.Run("unknown product is not found", func(t *testing.T) {
		_, err := env.svc.UpdateStock(ctx, "ghost", "black-M", 1)
		var notFound *domain.NotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
	})
}

func TestService_GetLowStock(t *testing.T) {
	env := newTestEnv(t)
	env.stock.AddProduct("hoodie", "Box Logo Hoodie", map[string]int{"black-M": 10, "black-L": 2})
	env.stock.AddProduct("tee", "Boxy Tee", map[string]int{"white-S": 0})

	// reservations do not affect the report
	_, _ = env.svc.ReserveItems(context.Background(), []domain.LineItem{item("hoodie", "black-M", 9)}, "order-1")

	variants, err := env.svc.GetLowStock(context.Background(), 2)
	if err != nil {
		t.Fatalf("GetLowStock failed: %v", err)
	}
	if len(variants) != 2 {
		t.Fatalf("expected 2 variants, got %+v", variants)
	}
	if variants[0].ProductID != "tee" || variants[1].VariantKey != "black-L" {
		t.Errorf("unexpected order: %+v", variants)
	}
}

func TestService_CleanupExpiredReservations(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.stock.AddProduct("hoodie", "Box Logo Hoodie", map[string]int{"black-M": 5})

	_, _ = env.svc.ReserveItems(ctx, []domain.LineItem{item("hoodie", "black-M", 2)}, "order-1")
	env.clock.Advance(10 * time.Minute)
	_, _ = env.svc.ReserveItems(ctx, []domain.LineItem{item("hoodie", "black-M", 1)}, "order-2")
	env.clock.Advance(20 * time.Minute)

	swept, err := env.svc.CleanupExpiredReservations(ctx)
	if err != nil {
		t.Fatalf("CleanupExpiredReservations failed: %v", err)
	}
	if len(swept) != 1 || swept[0].OrderID != "order-1" {
		t.Fatalf("expected only order-1 swept, got %+v", swept)
	}
	if level := env.level(t, "hoodie", "black-M"); level.Reserved != 1 || level.Total != 5 {
		t.Errorf("unexpected level: %+v", level)
	}
}

// Two checkouts for the last unit. Both availability reads happen before either
// reservation is written.
func TestService_ConcurrentReservations(t *testing.T) {
	t.Run("unguarded lets both reservations through", func(t *testing.T) {
		clock := newFakeClock()
		stock := NewMemoryStockStore()
		stock.AddProduct("hoodie", "Box Logo Hoodie", map[string]int{"black-M": 1})
		ledger := newBarrierLedger(NewMemoryLedger(LedgerClock(clock.Now)), 2)
		svc := NewService(stock, ledger, discardLogger(), WithClock(clock.Now))

		errs := reserveConcurrently(svc, "order-1", "order-2")
		for i, err := range errs {
			if err != nil {
				t.Fatalf("checkout %d failed: %v", i, err)
			}
		}

		level, _ := svc.GetStock(context.Background(), "hoodie", "black-M")
		if level.Reserved != 2 || level.Total != 1 || level.Available != 0 {
			t.Errorf("expected oversold variant, got %+v", level)
		}
	})

	t.Run("local guard admits exactly one", func(t *testing.T) {
		clock := newFakeClock()
		stock := NewMemoryStockStore()
		stock.AddProduct("hoodie", "Box Logo Hoodie", map[string]int{"black-M": 1})
		ledger := &slowLedger{MemoryLedger: NewMemoryLedger(LedgerClock(clock.Now)), delay: 20 * time.Millisecond}
		svc := NewService(stock, ledger, discardLogger(), WithClock(clock.Now), WithGuard(NewLocalGuard()))

		errs := reserveConcurrently(svc, "order-1", "order-2")

		var succeeded, rejected int
		for _, err := range errs {
			var insufficient *domain.InsufficientStockError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &insufficient):
				rejected++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if succeeded != 1 || rejected != 1 {
			t.Fatalf("expected 1 success and 1 rejection, got %d and %d", succeeded, rejected)
		}

		level, _ := svc.GetStock(context.Background(), "hoodie", "black-M")
		if level.Reserved != 1 || level.Available != 0 {
			t.Errorf("unexpected level: %+v", level)
		}
	})
}

func reserveConcurrently(svc *Service, orderIDs ...string) []error {
	errs := make([]error, len(orderIDs))

	var wg sync.WaitGroup
	for i, orderID := range orderIDs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.ReserveItems(context.Background(), []domain.LineItem{item("hoodie", "black-M", 1)}, orderID)
		}()
	}
	wg.Wait()

	return errs
}

// barrierLedger holds the first parties SumActive callers until all of them
// have read.
type barrierLedger struct {
	*MemoryLedger
	parties int64
	calls   atomic.Int64
	reads   sync.WaitGroup
}

func newBarrierLedger(ledger *MemoryLedger, parties int) *barrierLedger {
	l := &barrierLedger{MemoryLedger: ledger, parties: int64(parties)}
	l.reads.Add(parties)
	return l
}

func (l *barrierLedger) SumActive(ctx context.Context, productID, variantKey string, now time.Time) (int, error) {
	sum, err := l.MemoryLedger.SumActive(ctx, productID, variantKey, now)
	if l.calls.Add(1) <= l.parties {
		l.reads.Done()
		l.reads.Wait()
	}
	return sum, err
}

type slowLedger struct {
	*MemoryLedger
	delay time.Duration
}

func (l *slowLedger) Put(ctx context.Context, productID, variantKey string, quantity int, orderID string) (domain.Reservation, error) {
	time.Sleep(l.delay)
	return l.MemoryLedger.Put(ctx, productID, variantKey, quantity, orderID)
}

var errLedgerDown = errors.New("ledger unavailable")

type failingLedger struct {
	*MemoryLedger
	failProduct string
}

func (l *failingLedger) Put(ctx context.Context, productID, variantKey string, quantity int, orderID string) (domain.Reservation, error) {
	if productID == l.failProduct {
		return domain.Reservation{}, errLedgerDown
	}
	return l.MemoryLedger.Put(ctx, productID, variantKey, quantity, orderID)
}
