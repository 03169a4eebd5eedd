package inventory

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/joao-fontenele/streetwear-storefront/internal/domain"
)

const defaultLowStockThreshold = 5

type Handler struct {
	svc    *Service
	logger *slog.Logger
}

func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		logger: logger,
	}
}

func (h *Handler) HandleGetStock(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")
	variantKey := r.PathValue("variantKey")
	if productID == "" || variantKey == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "missing product id or variant key")
		return
	}

	stock, err := h.svc.GetStock(r.Context(), productID, variantKey)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to get stock", "error", err, "product_id", productID, "variant_key", variantKey)
		h.writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, stock)
}

type updateStockRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *Handler) HandleUpdateStock(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")
	variantKey := r.PathValue("variantKey")
	if productID == "" || variantKey == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "missing product id or variant key")
		return
	}

	var req updateStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity == nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	stock, err := h.svc.UpdateStock(r.Context(), productID, variantKey, *req.Quantity)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			h.writeError(w, http.StatusNotFound, "not_found", notFound.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to update stock", "error", err, "product_id", productID, "variant_key", variantKey)
		h.writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, stock)
}

func (h *Handler) HandleLowStock(w http.ResponseWriter, r *http.Request) {
	threshold := defaultLowStockThreshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "threshold must be a non-negative integer")
			return
		}
		threshold = v
	}

	variants, err := h.svc.GetLowStock(r.Context(), threshold)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list low stock", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	if variants == nil {
		variants = []domain.LowStockVariant{}
	}
	h.logger.InfoContext(r.Context(), "low stock listed", "threshold", threshold, "count", len(variants))
	h.writeJSON(w, http.StatusOK, variants)
}

func (h *Handler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	swept, err := h.svc.CleanupExpiredReservations(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to sweep reservations", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	if swept == nil {
		swept = []domain.Reservation{}
	}
	h.writeJSON(w, http.StatusOK, swept)
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
