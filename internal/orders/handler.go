package orders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/streetwear-storefront/internal/domain"
	"github.com/joao-fontenele/streetwear-storefront/internal/inventory"
)

type checkouter interface {
	Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
}

type orderReader interface {
	GetByIDAndEmail(ctx context.Context, id, email string) (*domain.Order, error)
	ListByEmail(ctx context.Context, email string) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error
}

type Handler struct {
	checkout checkouter
	orders   orderReader
	logger   *slog.Logger
}

func NewHandler(checkout checkouter, orders orderReader, logger *slog.Logger) *Handler {
	return &Handler{
		checkout: checkout,
		orders:   orders,
		logger:   logger,
	}
}

type checkoutResponse struct {
	Order        *domain.Order          `json:"order"`
	Payment      *domain.PaymentSession `json:"payment,omitempty"`
	PaymentError string                 `json:"payment_error,omitempty"`
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	req.Origin = r.Header.Get("Origin")

	result, err := h.checkout.Checkout(r.Context(), req)
	if err != nil {
		h.writeCheckoutError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, checkoutResponse{
		Order:        result.Order,
		Payment:      result.Payment,
		PaymentError: result.PaymentError,
	})
}

func (h *Handler) writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		insufficient *domain.InsufficientStockError
		invalid      *domain.InvalidProductError
		mismatch     *domain.PriceMismatchError
		notFound     *domain.NotFoundError
	)

	switch {
	case errors.As(err, &insufficient):
		h.writeError(w, http.StatusConflict, "insufficient_stock", insufficient.Error())
	case errors.As(err, &invalid):
		h.writeError(w, http.StatusUnprocessableEntity, "invalid_product", invalid.Error())
	case errors.As(err, &mismatch):
		h.logger.WarnContext(r.Context(), "checkout total mismatch", "submitted", mismatch.Submitted, "computed", mismatch.Computed)
		h.writeError(w, http.StatusConflict, "price_mismatch", "order total has changed, please review your cart")
	case errors.As(err, &notFound):
		h.writeError(w, http.StatusNotFound, "not_found", notFound.Error())
	case errors.Is(err, ErrInvalidCheckout), errors.Is(err, inventory.ErrInvalidQuantity):
		message := err.Error()
		var checkoutErr *CheckoutError
		if errors.As(err, &checkoutErr) {
			message = checkoutErr.Err.Error()
		}
		h.writeError(w, http.StatusBadRequest, "invalid_request", message)
	default:
		h.logger.ErrorContext(r.Context(), "checkout failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	email := r.URL.Query().Get("email")
	if id == "" || email == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "order id and email are required")
		return
	}

	order, err := h.orders.GetByIDAndEmail(r.Context(), id, email)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to get order", "error", err, "order_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	if order == nil {
		notFound := &domain.NotFoundError{Resource: "order", ID: id}
		h.writeError(w, http.StatusNotFound, "not_found", notFound.Error())
		return
	}

	h.logger.InfoContext(r.Context(), "order retrieved", "order_id", order.ID)
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "email is required")
		return
	}

	orders, err := h.orders.ListByEmail(r.Context(), email)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list orders", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	h.logger.InfoContext(r.Context(), "orders listed", "count", len(orders))
	h.writeJSON(w, http.StatusOK, orders)
}

type updateStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "missing order id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Status.Valid() {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	if err := h.orders.UpdateStatus(r.Context(), id, req.Status); err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			h.writeError(w, http.StatusNotFound, "not_found", notFound.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to update order status", "error", err, "order_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	h.logger.InfoContext(r.Context(), "order status updated", "order_id", id, "status", req.Status)
	h.writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(req.Status)})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, map[string]string{"error": message, "code": code})
}
