package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a product in the catalog. Price and stock here are
// the source of truth for cart validation and checkout pricing.
type Product struct {
	ID            int64           `json:"id" db:"id"`
	Name          string          `json:"name" db:"name"`
	Price         decimal.Decimal `json:"price" db:"price"`
	Description   string          `json:"description" db:"description"`
	Category      string          `json:"category" db:"category"`
	StockQuantity int             `json:"stock_quantity" db:"stock_quantity"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// CartLine is a single (user, product) row in the cart. At most one line
// exists per pair; repeated adds accumulate Quantity.
type CartLine struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	ProductID int64     `json:"product_id" db:"product_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CartLineView is a cart line joined with the product's name and current
// price, with the line total computed as price * quantity.
type CartLineView struct {
	ID       int64           `json:"id"`
	Quantity int             `json:"quantity"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Total    decimal.Decimal `json:"total"`
}

// OrderStatus is the lifecycle state of an order. There is no transition
// endpoint; orders are created pending and stay that way.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order represents a checked-out cart. TotalPrice is computed at checkout
// time and is never settable by callers.
type Order struct {
	ID         int64           `json:"id" db:"id"`
	UserID     int64           `json:"user_id" db:"user_id"`
	TotalPrice decimal.Decimal `json:"total_price" db:"total_price"`
	Status     OrderStatus     `json:"status" db:"status"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// ProductRequest is the body for creating or replacing a product.
// Price is a pointer so a missing field can be told apart from zero.
type ProductRequest struct {
	Name          string           `json:"name"`
	Price         *decimal.Decimal `json:"price"`
	Description   string           `json:"description"`
	Category      string           `json:"category"`
	StockQuantity int              `json:"stock_quantity"`
}

// AddToCartRequest is the body for adding an item to the cart.
type AddToCartRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// TokenRequest is the body for issuing a development bearer token.
type TokenRequest struct {
	UserID int64 `json:"user_id"`
}
