package domain

import "github.com/shopspring/decimal"

type CartItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Product is the authoritative catalog entry; StoreID names the owning seller.
type Product struct {
	ID      string
	StoreID string
	Price   decimal.Decimal
}
