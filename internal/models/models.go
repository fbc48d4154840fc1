package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry. Version is the revision marker bumped by every
// store write; the order workflow treats it as opaque.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Version     int             `json:"version"`
}

// Order is an append-only purchase record. Total is a snapshot of
// Quantity × Product.Price taken when the order was placed.
type Order struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Total     decimal.Decimal `json:"total"`
	Date      time.Time       `json:"date"`
}
