package services

import (
	"context"
	"log"
	"time"

	"github.com/shopcore/shop-api/internal/metrics"
	"github.com/shopcore/shop-api/internal/models"
	"github.com/shopcore/shop-api/internal/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OrderService handles checkout and order listing.
type OrderService struct {
	cart      repository.CartRepository
	orders    repository.OrderRepository
	tx        repository.TxManager
	metrics   *metrics.AppMetrics
	txTimeout time.Duration
}

// NewOrderService creates a new order service.
func NewOrderService(
	cart repository.CartRepository,
	orders repository.OrderRepository,
	tx repository.TxManager,
	m *metrics.AppMetrics,
	txTimeout time.Duration,
) *OrderService {
	if txTimeout <= 0 {
		txTimeout = 5 * time.Second
	}
	return &OrderService{
		cart:      cart,
		orders:    orders,
		tx:        tx,
		metrics:   m,
		txTimeout: txTimeout,
	}
}

// Checkout converts the user's cart into an order atomically: the total
// aggregation, the order insert, and the cart clear commit together or
// not at all. An order is never visible without its cart having been
// cleared, and vice versa.
//
// Stock is not decremented here; availability is only enforced when
// lines enter the cart.
func (s *OrderService) Checkout(ctx context.Context, userID int64) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	start := time.Now()

	var order *models.Order
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		total, err := s.cart.CartTotal(ctx, userID)
		if err != nil {
			return err
		}

		o := &models.Order{
			UserID:     userID,
			TotalPrice: total,
			Status:     models.OrderStatusPending,
		}
		if err := s.orders.CreateOrder(ctx, o); err != nil {
			return err
		}

		if err := s.cart.ClearCart(ctx, userID); err != nil {
			return err
		}

		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	duration := time.Since(start).Milliseconds()
	attrs := s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.String("order_status", string(order.Status)),
	})
	s.metrics.OrdersCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
	s.metrics.RevenueTotal.Add(ctx, order.TotalPrice.InexactFloat64(), metric.WithAttributes(attrs...))
	s.metrics.CheckoutDuration.Record(ctx, float64(duration), metric.WithAttributes(attrs...))

	log.Printf("[ORDER] Order created: order_id=%d user_id=%d total=%s", order.ID, userID, order.TotalPrice)

	return order, nil
}

// ListOrders returns the user's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	return s.orders.ListOrders(ctx, userID)
}
