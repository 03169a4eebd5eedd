package domain

import "time"

// VariantKey composes the stock key of a color/size combination.
func VariantKey(color, size string) string {
	return color + "-" + size
}

type StockLevel struct {
	ProductID  string `json:"product_id"`
	VariantKey string `json:"variant_key"`
	Available  int    `json:"available"`
	Reserved   int    `json:"reserved"`
	Total      int    `json:"total"`
}

// Reservation is a time-bounded hold of Quantity units of one variant for one order.
// (ProductID, VariantKey, OrderID) identifies it.
type Reservation struct {
	ProductID  string    `json:"product_id"`
	VariantKey string    `json:"variant_key"`
	Quantity   int       `json:"quantity"`
	OrderID    string    `json:"order_id"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func (r Reservation) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

type LineItem struct {
	ProductID  string `json:"product_id"`
	VariantKey string `json:"variant_key"`
	Name       string `json:"name,omitempty"`
	Quantity   int    `json:"quantity"`
}

type LowStockVariant struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	VariantKey  string `json:"variant_key"`
	Total       int    `json:"total"`
}
