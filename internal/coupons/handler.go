package coupons

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/joao-fontenele/streetwear-storefront/internal/domain"
)

type couponFinder interface {
	GetByCode(ctx context.Context, code string) (*domain.Coupon, error)
}

type Handler struct {
	coupons couponFinder
	now     func() time.Time
	logger  *slog.Logger
}

func NewHandler(coupons couponFinder, logger *slog.Logger) *Handler {
	return &Handler{
		coupons: coupons,
		now:     time.Now,
		logger:  logger,
	}
}

type validateRequest struct {
	Code     string `json:"code"`
	Subtotal int64  `json:"subtotal"`
}

type validateResponse struct {
	Valid    bool   `json:"valid"`
	Code     string `json:"code"`
	Discount int64  `json:"discount"`
}

func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || NormalizeCode(req.Code) == "" || req.Subtotal < 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	coupon, err := h.coupons.GetByCode(r.Context(), req.Code)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to load coupon", "error", err, "code", req.Code)
		h.writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	discount, err := Validate(coupon, req.Subtotal, h.now())
	if err != nil {
		if errors.Is(err, ErrUnknownType) {
			h.logger.ErrorContext(r.Context(), "coupon misconfigured", "error", err, "code", req.Code)
		}
		h.writeError(w, http.StatusUnprocessableEntity, "invalid_coupon", err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, validateResponse{
		Valid:    true,
		Code:     coupon.Code,
		Discount: discount,
	})
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
