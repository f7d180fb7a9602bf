package repository

import (
	"context"
	"errors"

	"github.com/shopcore/shop-api/internal/models"
	"github.com/shopspring/decimal"
)

// Sentinel errors. The message text is the client-facing error body, so
// it is spelled the way the API reports it.
var (
	ErrProductNotFound = errors.New("Product not found")
	ErrCartEmpty       = errors.New("Cart is empty")
)

// ProductRepository is the store gateway for catalog rows.
type ProductRepository interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id int64) error

	// ProductStockForUpdate reads a product's stock inside the current
	// transaction, holding a row lock until the transaction ends.
	// Concurrent adds for the same product serialize on this lock.
	ProductStockForUpdate(ctx context.Context, id int64) (int, error)
}

// CartRepository is the store gateway for cart lines.
type CartRepository interface {
	ListCartLines(ctx context.Context, userID int64) ([]models.CartLineView, error)

	// CartLineQuantity returns the accumulated quantity of the user's
	// line for a product, zero if no line exists.
	CartLineQuantity(ctx context.Context, userID, productID int64) (int, error)

	// UpsertCartLine inserts a line or increments the existing one by
	// quantity, and returns the resulting line.
	UpsertCartLine(ctx context.Context, userID, productID int64, quantity int) (*models.CartLine, error)

	// CartTotal aggregates sum(price * quantity) over the user's lines.
	// Returns ErrCartEmpty when the user has no lines.
	CartTotal(ctx context.Context, userID int64) (decimal.Decimal, error)

	ClearCart(ctx context.Context, userID int64) error
	CountCartLines(ctx context.Context, userID int64) (int, error)
}

// OrderRepository is the store gateway for orders.
type OrderRepository interface {
	CreateOrder(ctx context.Context, o *models.Order) error
	ListOrders(ctx context.Context, userID int64) ([]models.Order, error)
}

// TxManager runs fn inside a scoped transaction: fn's context carries the
// transaction, and the whole unit commits only if fn returns nil. Any
// error rolls everything back. The connection is released on every path.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
