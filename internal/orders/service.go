package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/streetwear-storefront/internal/coupons"
	"github.com/joao-fontenele/streetwear-storefront/internal/domain"
	"github.com/joao-fontenele/streetwear-storefront/internal/inventory"
)

var ErrInvalidCheckout = errors.New("invalid checkout request")

var tracer = otel.Tracer("orders")

// CheckoutState is how far a checkout attempt got.
type CheckoutState string

const (
	StateStarted          CheckoutState = "STARTED"
	StatePriced           CheckoutState = "PRICED"
	StateReserved         CheckoutState = "RESERVED"
	StatePersisted        CheckoutState = "PERSISTED"
	StateConfirmed        CheckoutState = "CONFIRMED"
	StatePaymentInitiated CheckoutState = "PAYMENT_INITIATED"
	StateAborted          CheckoutState = "ABORTED"
	StateRolledBack       CheckoutState = "ROLLED_BACK"
)

// CheckoutError is a failed checkout. State is ABORTED when nothing was
// changed and ROLLED_BACK when reservations or the order were undone.
type CheckoutError struct {
	State CheckoutState
	Err   error
}

func (e *CheckoutError) Error() string {
	return fmt.Sprintf("checkout %s: %v", strings.ToLower(string(e.State)), e.Err)
}

func (e *CheckoutError) Unwrap() error {
	return e.Err
}

type Inventory interface {
	ReserveItems(ctx context.Context, items []domain.LineItem, orderID string) ([]domain.Reservation, error)
	ConfirmReservation(ctx context.Context, orderID string, items []domain.LineItem) error
	CancelReservation(ctx context.Context, orderID string) error
}

type ProductLookup interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
}

type CouponStore interface {
	GetByCode(ctx context.Context, code string) (*domain.Coupon, error)
}

type OrderStore interface {
	Create(ctx context.Context, order *domain.Order) error
	Discard(ctx context.Context, order *domain.Order) error
}

type PaymentInitializer interface {
	InitializeTransaction(ctx context.Context, orderID, email string, amount int64, origin string) (*domain.PaymentSession, error)
}

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Pricing holds the server-side checkout amounts, in minor currency units.
// A zero FreeShippingThreshold disables free shipping.
type Pricing struct {
	ShippingFee           int64
	FreeShippingThreshold int64
	Tolerance             int64
}

func (p Pricing) shipping(subtotal int64) int64 {
	if p.FreeShippingThreshold > 0 && subtotal >= p.FreeShippingThreshold {
		return 0
	}
	return p.ShippingFee
}

type CheckoutItem struct {
	ProductID string `json:"product_id"`
	Color     string `json:"color"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

// CheckoutRequest is what the storefront submits. Total is the amount the
// customer was shown; it is only compared against the server's figure.
type CheckoutRequest struct {
	Customer      domain.Customer      `json:"customer"`
	Items         []CheckoutItem       `json:"items"`
	CouponCode    string               `json:"coupon_code,omitempty"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	Total         int64                `json:"total"`
	Origin        string               `json:"-"`
}

type CheckoutResult struct {
	State        CheckoutState
	Order        *domain.Order
	Payment      *domain.PaymentSession
	PaymentError string
}

type Orchestrator struct {
	inventory   Inventory
	products    ProductLookup
	couponStore CouponStore
	orders      OrderStore
	payments    PaymentInitializer
	publisher   Publisher
	pricing     Pricing
	now         func() time.Time
	newID       func() string
	logger      *slog.Logger
}

type OrchestratorOption func(*Orchestrator)

func WithPayments(payments PaymentInitializer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.payments = payments
	}
}

func WithPublisher(publisher Publisher) OrchestratorOption {
	return func(o *Orchestrator) {
		o.publisher = publisher
	}
}

func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func WithIDGenerator(newID func() string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.newID = newID
	}
}

func NewOrchestrator(
	inventory Inventory,
	products ProductLookup,
	couponStore CouponStore,
	orders OrderStore,
	pricing Pricing,
	logger *slog.Logger,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		inventory:   inventory,
		products:    products,
		couponStore: couponStore,
		orders:      orders,
		pricing:     pricing,
		now:         time.Now,
		newID:       uuid.NewString,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Checkout prices the cart from catalog data, reserves stock, stores the order
// and converts the reservation into a deduction. Any failure after the
// reservation releases it, and a failure after the order was stored discards
// the order as well. A payment initialization failure does not undo the order;
// it is reported in CheckoutResult.PaymentError.
func (o *Orchestrator) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	ctx, span := tracer.Start(ctx, "orders.Checkout", trace.WithAttributes(
		attribute.Int("checkout.items", len(req.Items)),
		attribute.String("checkout.payment_method", string(req.PaymentMethod)),
	))
	defer span.End()

	result, err := o.checkout(ctx, req, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("checkout.state", string(result.State)))
	return result, nil
}

func (o *Orchestrator) checkout(ctx context.Context, req CheckoutRequest, span trace.Span) (*CheckoutResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, &CheckoutError{State: StateAborted, Err: err}
	}

	order, err := o.price(ctx, req)
	if err != nil {
		return nil, &CheckoutError{State: StateAborted, Err: err}
	}
	span.SetAttributes(attribute.String("order.id", order.ID))

	lineItems := order.LineItems()

	if _, err := o.inventory.ReserveItems(ctx, lineItems, order.ID); err != nil {
		return nil, &CheckoutError{State: StateAborted, Err: err}
	}

	if err := o.orders.Create(ctx, order); err != nil {
		o.logger.ErrorContext(ctx, "failed to persist order", "error", err, "order_id", order.ID)
		return nil, o.rollback(ctx, order, false, fmt.Errorf("persist order: %w", err))
	}

	if err := o.inventory.ConfirmReservation(ctx, order.ID, lineItems); err != nil {
		o.logger.ErrorContext(ctx, "failed to confirm reservation", "error", err, "order_id", order.ID)
		return nil, o.rollback(ctx, order, true, fmt.Errorf("confirm reservation: %w", err))
	}

	result := &CheckoutResult{State: StateConfirmed, Order: order}

	if order.PaymentMethod.RequiresHostedTransaction() && o.payments != nil {
		session, err := o.payments.InitializeTransaction(ctx, order.ID, order.Customer.Email, order.Total, req.Origin)
		if err != nil {
			o.logger.ErrorContext(ctx, "failed to initialize payment", "error", err, "order_id", order.ID)
			result.PaymentError = "payment could not be initialized, please retry payment for this order"
		} else {
			result.Payment = session
			result.State = StatePaymentInitiated
		}
	}

	o.publish(ctx, order)

	o.logger.InfoContext(ctx, "order placed",
		"order_id", order.ID,
		"total", order.Total,
		"payment_method", order.PaymentMethod,
		"state", result.State,
	)

	return result, nil
}

func validateRequest(req CheckoutRequest) error {
	switch {
	case len(req.Items) == 0:
		return fmt.Errorf("%w: cart is empty", ErrInvalidCheckout)
	case strings.TrimSpace(req.Customer.Name) == "":
		return fmt.Errorf("%w: customer name is required", ErrInvalidCheckout)
	case !strings.Contains(req.Customer.Email, "@"):
		return fmt.Errorf("%w: a valid customer email is required", ErrInvalidCheckout)
	case !req.PaymentMethod.Valid():
		return fmt.Errorf("%w: unsupported payment method %q", ErrInvalidCheckout, req.PaymentMethod)
	}

	for _, item := range req.Items {
		if item.ProductID == "" || item.Color == "" || item.Size == "" {
			return fmt.Errorf("%w: every item needs a product, color and size", ErrInvalidCheckout)
		}
		if item.Quantity <= 0 || item.Quantity > inventory.MaxLineQuantity {
			return fmt.Errorf("%w: quantity for %s must be between 1 and %d", ErrInvalidCheckout, item.ProductID, inventory.MaxLineQuantity)
		}
	}

	return nil
}

// price builds the order from catalog prices and the server-side coupon rule,
// then checks the result against the total the customer submitted.
func (o *Orchestrator) price(ctx context.Context, req CheckoutRequest) (*domain.Order, error) {
	now := o.now().UTC()
	order := &domain.Order{
		ID:            o.newID(),
		Customer:      req.Customer,
		Items:         make([]domain.OrderItem, 0, len(req.Items)),
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: domain.PaymentStatusPending,
		Status:        domain.OrderStatusPending,
		CreatedAt:     now,
	}

	products := make(map[string]*domain.Product, len(req.Items))
	for _, item := range req.Items {
		product, ok := products[item.ProductID]
		if !ok {
			var err error
			product, err = o.products.GetByID(ctx, item.ProductID)
			if err != nil {
				return nil, fmt.Errorf("load product %s: %w", item.ProductID, err)
			}
			if product == nil || !product.Active {
				return nil, &domain.InvalidProductError{ProductID: item.ProductID}
			}
			products[item.ProductID] = product
		}

		lineTotal := product.Price * int64(item.Quantity)
		order.Items = append(order.Items, domain.OrderItem{
			ProductID:  product.ID,
			Name:       product.Name,
			Color:      item.Color,
			Size:       item.Size,
			VariantKey: domain.VariantKey(item.Color, item.Size),
			Quantity:   item.Quantity,
			UnitPrice:  product.Price,
			LineTotal:  lineTotal,
		})
		order.Subtotal += lineTotal
	}

	if code := coupons.NormalizeCode(req.CouponCode); code != "" {
		discount, err := o.discount(ctx, code, order.Subtotal, now)
		if err != nil {
			return nil, err
		}
		if discount > 0 {
			order.CouponCode = code
			order.Discount = discount
		}
	}

	order.Shipping = o.pricing.shipping(order.Subtotal)
	order.Total = order.Subtotal + order.Shipping - order.Discount

	if diff := order.Total - req.Total; diff > o.pricing.Tolerance || -diff > o.pricing.Tolerance {
		return nil, &domain.PriceMismatchError{Submitted: req.Total, Computed: order.Total}
	}

	return order, nil
}

// discount is zero for a coupon that cannot be redeemed; the checkout goes on
// at full price.
func (o *Orchestrator) discount(ctx context.Context, code string, subtotal int64, now time.Time) (int64, error) {
	coupon, err := o.couponStore.GetByCode(ctx, code)
	if err != nil {
		return 0, fmt.Errorf("load coupon %s: %w", code, err)
	}

	discount, err := coupons.Validate(coupon, subtotal, now)
	if err != nil {
		o.logger.InfoContext(ctx, "coupon not applied", "code", code, "reason", err.Error())
		return 0, nil
	}

	return discount, nil
}

// rollback undoes a checkout that failed after its reservation was created.
func (o *Orchestrator) rollback(ctx context.Context, order *domain.Order, persisted bool, cause error) error {
	ctx = context.WithoutCancel(ctx)

	var errs []error
	if persisted {
		if err := o.orders.Discard(ctx, order); err != nil {
			errs = append(errs, fmt.Errorf("discard order: %w", err))
		}
	}
	if err := o.inventory.CancelReservation(ctx, order.ID); err != nil {
		errs = append(errs, fmt.Errorf("cancel reservation: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		o.logger.ErrorContext(ctx, "checkout rollback incomplete", "error", err, "order_id", order.ID)
	} else {
		o.logger.InfoContext(ctx, "checkout rolled back", "order_id", order.ID)
	}

	return &CheckoutError{State: StateRolledBack, Err: cause}
}

func (o *Orchestrator) publish(ctx context.Context, order *domain.Order) {
	if o.publisher == nil {
		return
	}

	event := domain.OrderPlacedEvent{
		OrderID:       order.ID,
		CustomerName:  order.Customer.Name,
		CustomerEmail: order.Customer.Email,
		Items:         order.Items,
		Total:         order.Total,
		PaymentMethod: string(order.PaymentMethod),
		Timestamp:     order.CreatedAt,
	}
	if err := o.publisher.Publish(ctx, order.ID, event); err != nil {
		o.logger.ErrorContext(ctx, "failed to publish order placed event", "error", err, "order_id", order.ID)
	}
}
