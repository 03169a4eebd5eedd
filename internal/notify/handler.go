package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joao-fontenele/streetwear-storefront/internal/domain"
	"github.com/joao-fontenele/streetwear-storefront/internal/messaging"
)

// OrderPlacedHandler sends the order confirmation mail for order.placed
// events through the mail API.
type OrderPlacedHandler struct {
	mailAPIURL string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewOrderPlacedHandler(mailAPIURL string, client *http.Client, logger *slog.Logger) *OrderPlacedHandler {
	return &OrderPlacedHandler{
		mailAPIURL: strings.TrimRight(mailAPIURL, "/"),
		httpClient: client,
		logger:     logger,
	}
}

type mailMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (h *OrderPlacedHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderPlacedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("%w: unmarshal order placed event: %v", messaging.ErrPermanent, err)
	}
	if event.OrderID == "" || event.CustomerEmail == "" {
		return fmt.Errorf("%w: order placed event without order id or email", messaging.ErrPermanent)
	}

	h.logger.InfoContext(ctx, "processing order placed event", "order_id", event.OrderID)

	if err := h.send(ctx, confirmationMail(event)); err != nil {
		h.logger.ErrorContext(ctx, "failed to send confirmation mail", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send confirmation mail: %w", err)
	}

	h.logger.InfoContext(ctx, "confirmation mail sent", "order_id", event.OrderID)
	return nil
}

func confirmationMail(event domain.OrderPlacedEvent) mailMessage {
	var body strings.Builder
	fmt.Fprintf(&body, "Hi %s,\n\nThanks for your order %s.\n\n", event.CustomerName, event.OrderID)
	for _, item := range event.Items {
		fmt.Fprintf(&body, "%d x %s (%s / %s) %s\n", item.Quantity, item.Name, item.Color, item.Size, formatAmount(item.LineTotal))
	}
	fmt.Fprintf(&body, "\nTotal: %s\nPayment: %s\n", formatAmount(event.Total), paymentLabel(event.PaymentMethod))

	return mailMessage{
		To:      event.CustomerEmail,
		Subject: "Order confirmation: " + event.OrderID,
		Body:    body.String(),
	}
}

func formatAmount(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}

func paymentLabel(method string) string {
	switch domain.PaymentMethod(method) {
	case domain.PaymentMethodCard:
		return "card"
	case domain.PaymentMethodBankTransfer:
		return "bank transfer"
	case domain.PaymentMethodCashOnDelivery:
		return "cash on delivery"
	}
	return method
}

func (h *OrderPlacedHandler) send(ctx context.Context, msg mailMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.mailAPIURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("mail api returned status %d", resp.StatusCode)
	}

	return nil
}
