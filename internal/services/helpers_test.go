package services

import (
	"context"
	"testing"

	"github.com/shopcore/shop-api/internal/metrics"
	"github.com/shopcore/shop-api/internal/models"
	"github.com/shopcore/shop-api/internal/repository"
	"github.com/shopspring/decimal"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func newTestMetrics(t *testing.T) *metrics.AppMetrics {
	t.Helper()
	m, err := metrics.New(sdkmetric.NewMeterProvider().Meter("test"), "test")
	if err != nil {
		t.Fatalf("metrics.New failed: %v", err)
	}
	return m
}

func seedProduct(t *testing.T, store *repository.MemoryStore, name, price string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:          name,
		Price:         decimal.RequireFromString(price),
		Category:      "test",
		StockQuantity: stock,
	}
	if err := store.CreateProduct(context.Background(), p); err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}
	return p
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
