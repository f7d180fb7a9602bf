package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopcore/shop-api/internal/metrics"
	"github.com/shopcore/shop-api/internal/models"
	"github.com/shopcore/shop-api/internal/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrInsufficientStock = errors.New("Insufficient stock")
	ErrInvalidQuantity   = errors.New("Quantity must be greater than 0")
)

// CartService handles per-user cart reads and mutations.
type CartService struct {
	products  repository.ProductRepository
	cart      repository.CartRepository
	tx        repository.TxManager
	metrics   *metrics.AppMetrics
	txTimeout time.Duration
}

// NewCartService creates a new cart service. txTimeout bounds how long an
// add-to-cart transaction may hold a pooled connection.
func NewCartService(
	products repository.ProductRepository,
	cart repository.CartRepository,
	tx repository.TxManager,
	m *metrics.AppMetrics,
	txTimeout time.Duration,
) *CartService {
	if txTimeout <= 0 {
		txTimeout = 5 * time.Second
	}
	return &CartService{
		products:  products,
		cart:      cart,
		tx:        tx,
		metrics:   m,
		txTimeout: txTimeout,
	}
}

// List returns the user's cart lines joined with product name and price,
// with per-line totals. An empty cart yields an empty slice.
func (s *CartService) List(ctx context.Context, userID int64) ([]models.CartLineView, error) {
	lines, err := s.cart.ListCartLines(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.recordCartSize(ctx, userID, len(lines))
	return lines, nil
}

// Add validates stock and upserts a cart line in one transaction.
//
// The stock read takes a row lock on the product, so concurrent adds for
// the same product serialize and the check covers the accumulated line
// quantity: a user's cart line can never exceed the stock available at
// the time of the add.
func (s *CartService) Add(ctx context.Context, userID, productID int64, quantity int) (*models.CartLine, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	var line *models.CartLine
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		stock, err := s.products.ProductStockForUpdate(ctx, productID)
		if err != nil {
			return err
		}

		existing, err := s.cart.CartLineQuantity(ctx, userID, productID)
		if err != nil {
			return err
		}
		if stock < existing+quantity {
			return ErrInsufficientStock
		}

		line, err = s.cart.UpsertCartLine(ctx, userID, productID, quantity)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.updateCartGauge(ctx, userID)
	return line, nil
}

func (s *CartService) updateCartGauge(ctx context.Context, userID int64) {
	count, err := s.cart.CountCartLines(ctx, userID)
	if err != nil {
		return
	}
	s.recordCartSize(ctx, userID, count)
}

func (s *CartService) recordCartSize(ctx context.Context, userID int64, count int) {
	attrs := s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.Int64("user_id", userID),
	})
	s.metrics.CartItemsCount.Record(ctx, int64(count), metric.WithAttributes(attrs...))
}
