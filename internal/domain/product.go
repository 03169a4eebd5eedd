package domain

type Product struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Slug   string `json:"slug"`
	Price  int64  `json:"price"`
	Active bool   `json:"active"`
}
