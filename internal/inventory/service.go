package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/streetwear-storefront/internal/domain"
)

// MaxLineQuantity caps the units of one variant in a single request, after
// duplicate lines are merged.
const MaxLineQuantity = 1000

var (
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrMissingOrderID  = errors.New("order id is required")
)

var tracer = otel.Tracer("inventory")

// Service is the only component that answers availability questions and
// mutates reservations or stock totals.
type Service struct {
	stock   StockStore
	ledger  Ledger
	guard   Guard
	now     func() time.Time
	logger  *slog.Logger
	metrics serviceMetrics
}

type Option func(*Service)

// WithGuard sets the critical section wrapped around each variant's
// availability check and reservation write. The default is Unguarded.
func WithGuard(guard Guard) Option {
	return func(s *Service) {
		s.guard = guard
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(stock StockStore, ledger Ledger, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		stock:  stock,
		ledger: ledger,
		guard:  Unguarded{},
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = newServiceMetrics(logger)
	return s
}

// GetStock reports the stock of a variant. An unknown product has zero stock.
func (s *Service) GetStock(ctx context.Context, productID, variantKey string) (domain.StockLevel, error) {
	level, err := s.stockLevel(ctx, productID, variantKey)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			return domain.StockLevel{ProductID: productID, VariantKey: variantKey}, nil
		}
		return domain.StockLevel{}, err
	}
	return level, nil
}

func (s *Service) stockLevel(ctx context.Context, productID, variantKey string) (domain.StockLevel, error) {
	total, err := s.stock.VariantTotal(ctx, productID, variantKey)
	if err != nil {
		return domain.StockLevel{}, err
	}

	reserved, err := s.ledger.SumActive(ctx, productID, variantKey, s.now())
	if err != nil {
		return domain.StockLevel{}, fmt.Errorf("sum active reservations: %w", err)
	}

	return domain.StockLevel{
		ProductID:  productID,
		VariantKey: variantKey,
		Available:  max(0, total-reserved),
		Reserved:   reserved,
		Total:      total,
	}, nil
}

// ReserveItems holds every item for orderID or none of them. Items are
// processed in order; when one fails, the reservations already created by this
// call are released before the error is returned.
func (s *Service) ReserveItems(ctx context.Context, items []domain.LineItem, orderID string) ([]domain.Reservation, error) {
	ctx, span := tracer.Start(ctx, "inventory.ReserveItems", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.Int("order.items", len(items)),
	))
	defer span.End()

	if orderID == "" {
		return nil, ErrMissingOrderID
	}

	items, err := coalesce(items)
	if err != nil {
		return nil, err
	}

	created := make([]domain.Reservation, 0, len(items))
	for _, item := range items {
		res, err := s.reserveItem(ctx, item, orderID)
		if err != nil {
			s.release(ctx, orderID, created)

			var insufficient *domain.InsufficientStockError
			if errors.As(err, &insufficient) {
				s.metrics.rejected.Add(ctx, 1)
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		created = append(created, res)
	}

	s.metrics.created.Add(ctx, int64(len(created)))
	s.logger.InfoContext(ctx, "items reserved", "order_id", orderID, "count", len(created))

	return created, nil
}

func (s *Service) reserveItem(ctx context.Context, item domain.LineItem, orderID string) (domain.Reservation, error) {
	var res domain.Reservation

	err := s.guard.Do(ctx, item.ProductID, item.VariantKey, func(ctx context.Context) error {
		level, err := s.stockLevel(ctx, item.ProductID, item.VariantKey)
		if err != nil {
			return err
		}

		if item.Quantity > level.Available {
			return &domain.InsufficientStockError{
				ProductID:  item.ProductID,
				VariantKey: item.VariantKey,
				Name:       item.Name,
				Available:  level.Available,
				Requested:  item.Quantity,
			}
		}

		res, err = s.ledger.Put(ctx, item.ProductID, item.VariantKey, item.Quantity, orderID)
		if err != nil {
			return fmt.Errorf("put reservation: %w", err)
		}
		return nil
	})

	return res, err
}

func (s *Service) release(ctx context.Context, orderID string, created []domain.Reservation) {
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for _, res := range created {
		if err := s.ledger.DeleteByKey(ctx, res.ProductID, res.VariantKey, orderID); err != nil {
			errs = append(errs, fmt.Errorf("release %s/%s: %w", res.ProductID, res.VariantKey, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.ErrorContext(ctx, "failed to roll back reservations", "error", err, "order_id", orderID)
		return
	}

	if len(created) > 0 {
		s.logger.InfoContext(ctx, "reservations rolled back", "order_id", orderID, "count", len(created))
	}
}

// ConfirmReservation turns the order's holds into permanent deductions. The
// deduction happens even if the reservation already expired. Callers must call
// it once per order: a second call deducts again, floored at zero.
func (s *Service) ConfirmReservation(ctx context.Context, orderID string, items []domain.LineItem) error {
	ctx, span := tracer.Start(ctx, "inventory.ConfirmReservation", trace.WithAttributes(
		attribute.String("order.id", orderID),
	))
	defer span.End()

	items, err := coalesce(items)
	if err != nil {
		return err
	}

	for _, item := range items {
		total, err := s.stock.DeductVariant(ctx, item.ProductID, item.VariantKey, item.Quantity)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		if err := s.ledger.DeleteByKey(ctx, item.ProductID, item.VariantKey, orderID); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("delete confirmed reservation: %w", err)
		}

		s.metrics.confirmedUnits.Add(ctx, int64(item.Quantity))
		s.logger.InfoContext(ctx, "stock deducted",
			"order_id", orderID,
			"product_id", item.ProductID,
			"variant_key", item.VariantKey,
			"quantity", item.Quantity,
			"total", total,
		)
	}

	return nil
}

// CancelReservation releases every hold of the order without touching stock.
func (s *Service) CancelReservation(ctx context.Context, orderID string) error {
	if err := s.ledger.DeleteByOrder(ctx, orderID); err != nil {
		return fmt.Errorf("cancel reservations for order %s: %w", orderID, err)
	}

	s.logger.InfoContext(ctx, "reservations cancelled", "order_id", orderID)
	return nil
}

// UpdateStock sets the absolute total of a variant, clamped at zero.
func (s *Service) UpdateStock(ctx context.Context, productID, variantKey string, quantity int) (domain.StockLevel, error) {
	if err := s.stock.SetVariantTotal(ctx, productID, variantKey, max(0, quantity)); err != nil {
		return domain.StockLevel{}, err
	}

	s.logger.InfoContext(ctx, "stock updated", "product_id", productID, "variant_key", variantKey, "total", max(0, quantity))
	return s.stockLevel(ctx, productID, variantKey)
}

// GetLowStock lists variants whose raw total, ignoring reservations, is at or
// below threshold.
func (s *Service) GetLowStock(ctx context.Context, threshold int) ([]domain.LowStockVariant, error) {
	return s.stock.LowStock(ctx, threshold)
}

func (s *Service) CleanupExpiredReservations(ctx context.Context) ([]domain.Reservation, error) {
	swept, err := s.ledger.SweepExpired(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("sweep expired reservations: %w", err)
	}

	if len(swept) > 0 {
		s.metrics.expired.Add(ctx, int64(len(swept)))
		for _, res := range swept {
			s.logger.InfoContext(ctx, "reservation expired",
				"order_id", res.OrderID,
				"product_id", res.ProductID,
				"variant_key", res.VariantKey,
				"quantity", res.Quantity,
			)
		}
	}

	return swept, nil
}

// coalesce validates quantities and merges lines for the same variant, which
// would otherwise overwrite each other in the ledger. Merged quantities stay
// within MaxLineQuantity, so the sum cannot overflow.
func coalesce(items []domain.LineItem) ([]domain.LineItem, error) {
	out := make([]domain.LineItem, 0, len(items))
	index := make(map[[2]string]int, len(items))

	for _, item := range items {
		if item.Quantity <= 0 || item.Quantity > MaxLineQuantity {
			return nil, fmt.Errorf("%w: %s (%s) has quantity %d, want 1 to %d",
				ErrInvalidQuantity, item.ProductID, item.VariantKey, item.Quantity, MaxLineQuantity)
		}

		key := [2]string{item.ProductID, item.VariantKey}
		if i, ok := index[key]; ok {
			if out[i].Quantity+item.Quantity > MaxLineQuantity {
				return nil, fmt.Errorf("%w: %s (%s) totals more than %d units",
					ErrInvalidQuantity, item.ProductID, item.VariantKey, MaxLineQuantity)
			}
			out[i].Quantity += item.Quantity
			continue
		}
		index[key] = len(out)
		out = append(out, item)
	}

	return out, nil
}

type serviceMetrics struct {
	created        metric.Int64Counter
	rejected       metric.Int64Counter
	expired        metric.Int64Counter
	confirmedUnits metric.Int64Counter
}

func newServiceMetrics(logger *slog.Logger) serviceMetrics {
	meter := otel.Meter("inventory")

	counter := func(name, description string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(description))
		if err != nil {
			logger.Warn("failed to create counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	return serviceMetrics{
		created:        counter("inventory.reservations.created", "Reservations created"),
		rejected:       counter("inventory.reservations.rejected", "Reservation batches rejected for insufficient stock"),
		expired:        counter("inventory.reservations.expired", "Reservations removed by the expiry sweep"),
		confirmedUnits: counter("inventory.stock.confirmed_units", "Units permanently deducted from stock"),
	}
}
