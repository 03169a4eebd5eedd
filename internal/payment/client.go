package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/joao-fontenele/streetwear-storefront/internal/domain"
)

// Client talks to the hosted payment provider.
type Client struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

func NewClient(baseURL, secretKey string, client *http.Client) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		client:    client,
	}
}

type initializeRequest struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`
	Reference   string            `json:"reference"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata"`
}

type initializeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

// InitializeTransaction opens a hosted transaction for orderID. The order id
// is the transaction reference; origin is where the provider sends the
// customer back to.
func (c *Client) InitializeTransaction(ctx context.Context, orderID, email string, amount int64, origin string) (*domain.PaymentSession, error) {
	body := initializeRequest{
		Email:     email,
		Amount:    amount,
		Reference: orderID,
		Metadata:  map[string]string{"order_id": orderID},
	}
	if origin != "" {
		body.CallbackURL = strings.TrimRight(origin, "/") + "/orders/" + orderID
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal initialize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transaction/initialize", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create initialize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("initialize transaction: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out initializeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("payment provider returned status %d: decode response: %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK || !out.Status {
		return nil, fmt.Errorf("payment provider returned status %d: %s", resp.StatusCode, out.Message)
	}

	reference := out.Data.Reference
	if reference == "" {
		reference = orderID
	}

	return &domain.PaymentSession{
		Reference:        reference,
		AccessCode:       out.Data.AccessCode,
		AuthorizationURL: out.Data.AuthorizationURL,
	}, nil
}
