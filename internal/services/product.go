package services

import (
	"context"
	"errors"

	"github.com/shopcore/shop-api/internal/metrics"
	"github.com/shopcore/shop-api/internal/models"
	"github.com/shopcore/shop-api/internal/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Validation errors surfaced to clients as 400 responses.
var (
	ErrMissingFields = errors.New("name, price and category are required")
	ErrInvalidPrice  = errors.New("price must not be negative")
	ErrInvalidStock  = errors.New("stock_quantity must not be negative")
)

// ProductService handles catalog CRUD. It is the source of truth for
// price and stock; cart and checkout read through the same repository.
type ProductService struct {
	products repository.ProductRepository
	metrics  *metrics.AppMetrics
}

// NewProductService creates a new product service.
func NewProductService(products repository.ProductRepository, m *metrics.AppMetrics) *ProductService {
	return &ProductService{products: products, metrics: m}
}

// List returns all products in insertion order.
func (s *ProductService) List(ctx context.Context) ([]models.Product, error) {
	return s.products.ListProducts(ctx)
}

// Get returns a product by ID.
func (s *ProductService) Get(ctx context.Context, id int64) (*models.Product, error) {
	p, err := s.products.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	viewAttrs := s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.Int64("product_id", id),
		attribute.String("product_category", p.Category),
	})
	s.metrics.ProductsViewed.Add(ctx, 1, metric.WithAttributes(viewAttrs...))

	return p, nil
}

// Create validates and inserts a new product, returning it with the
// generated ID.
func (s *ProductService) Create(ctx context.Context, req *models.ProductRequest) (*models.Product, error) {
	if err := validateProduct(req); err != nil {
		return nil, err
	}

	p := &models.Product{
		Name:          req.Name,
		Price:         *req.Price,
		Description:   req.Description,
		Category:      req.Category,
		StockQuantity: req.StockQuantity,
	}
	if err := s.products.CreateProduct(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Update replaces all mutable fields of an existing product.
func (s *ProductService) Update(ctx context.Context, id int64, req *models.ProductRequest) (*models.Product, error) {
	if err := validateProduct(req); err != nil {
		return nil, err
	}

	p := &models.Product{
		ID:            id,
		Name:          req.Name,
		Price:         *req.Price,
		Description:   req.Description,
		Category:      req.Category,
		StockQuantity: req.StockQuantity,
	}
	if err := s.products.UpdateProduct(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes a product. Deleting an absent ID fails with
// repository.ErrProductNotFound, so a repeated delete is a no-op 404.
func (s *ProductService) Delete(ctx context.Context, id int64) error {
	return s.products.DeleteProduct(ctx, id)
}

func validateProduct(req *models.ProductRequest) error {
	if req.Name == "" || req.Price == nil || req.Category == "" {
		return ErrMissingFields
	}
	if req.Price.IsNegative() {
		return ErrInvalidPrice
	}
	if req.StockQuantity < 0 {
		return ErrInvalidStock
	}
	return nil
}
