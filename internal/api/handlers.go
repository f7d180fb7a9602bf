package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopcore/shop-api/internal/auth"
	"github.com/shopcore/shop-api/internal/metrics"
	"github.com/shopcore/shop-api/internal/middleware"
	"github.com/shopcore/shop-api/internal/models"
	"github.com/shopcore/shop-api/internal/repository"
	"github.com/shopcore/shop-api/internal/services"
	"github.com/shopcore/shop-api/pkg/config"
)

// App holds application dependencies.
type App struct {
	config         *config.Config
	metrics        *metrics.AppMetrics
	productService *services.ProductService
	cartService    *services.CartService
	orderService   *services.OrderService
}

// NewApp creates a new application instance.
func NewApp(
	cfg *config.Config,
	m *metrics.AppMetrics,
	ps *services.ProductService,
	cs *services.CartService,
	os *services.OrderService,
) *App {
	return &App{
		config:         cfg,
		metrics:        m,
		productService: ps,
		cartService:    cs,
		orderService:   os,
	}
}

// SetupRoutes configures the HTTP routes and returns the server handler.
// Bearer auth is enforced on every mutating product route and on all
// cart, checkout and order routes. CORS wraps the router itself rather
// than running as mux middleware: every route is method-constrained, so
// an OPTIONS preflight matches no route and mux middleware would never
// see it.
func (a *App) SetupRoutes(r *mux.Router) http.Handler {
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.RecoveryMiddleware)
	r.Use(middleware.MetricsMiddleware(a.metrics))

	requireAuth := middleware.Auth(a.config.JWTSecret)

	api := r.PathPrefix("/api/v1").Subrouter()

	// Auth
	api.HandleFunc("/auth/token", a.TokenHandler).Methods("POST")

	// Products
	api.HandleFunc("/products", a.ListProductsHandler).Methods("GET")
	api.HandleFunc("/products/{id}", a.GetProductHandler).Methods("GET")
	api.Handle("/products", requireAuth(http.HandlerFunc(a.CreateProductHandler))).Methods("POST")
	api.Handle("/products/{id}", requireAuth(http.HandlerFunc(a.UpdateProductHandler))).Methods("PUT")
	api.Handle("/products/{id}", requireAuth(http.HandlerFunc(a.DeleteProductHandler))).Methods("DELETE")

	// Cart
	api.Handle("/cart", requireAuth(http.HandlerFunc(a.GetCartHandler))).Methods("GET")
	api.Handle("/cart", requireAuth(http.HandlerFunc(a.AddToCartHandler))).Methods("POST")

	// Checkout and orders
	api.Handle("/checkout", requireAuth(http.HandlerFunc(a.CheckoutHandler))).Methods("POST")
	api.Handle("/orders", requireAuth(http.HandlerFunc(a.ListOrdersHandler))).Methods("GET")

	// Health
	r.HandleFunc("/health", a.HealthHandler).Methods("GET")

	return middleware.CORSMiddleware(r)
}

// HealthHandler handles health check requests.
func (a *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// TokenHandler issues a development bearer token for a user ID.
func (a *App) TokenHandler(w http.ResponseWriter, r *http.Request) {
	var req models.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID <= 0 {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	token, err := auth.GenerateToken(req.UserID, a.config.JWTSecret, a.config.TokenTTL)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Server error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

// ListProductsHandler handles GET /api/v1/products.
func (a *App) ListProductsHandler(w http.ResponseWriter, r *http.Request) {
	products, err := a.productService.List(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if products == nil {
		products = []models.Product{}
	}
	respondJSON(w, http.StatusOK, products)
}

// GetProductHandler handles GET /api/v1/products/{id}.
func (a *App) GetProductHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	product, err := a.productService.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

// CreateProductHandler handles POST /api/v1/products.
func (a *App) CreateProductHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	product, err := a.productService.Create(r.Context(), &req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, product)
}

// UpdateProductHandler handles PUT /api/v1/products/{id}.
func (a *App) UpdateProductHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req models.ProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	product, err := a.productService.Update(r.Context(), id, &req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

// DeleteProductHandler handles DELETE /api/v1/products/{id}.
func (a *App) DeleteProductHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := a.productService.Delete(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Product deleted"})
}

// GetCartHandler handles GET /api/v1/cart.
func (a *App) GetCartHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Missing bearer token")
		return
	}

	lines, err := a.cartService.List(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if lines == nil {
		lines = []models.CartLineView{}
	}
	respondJSON(w, http.StatusOK, lines)
}

// AddToCartHandler handles POST /api/v1/cart.
func (a *App) AddToCartHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Missing bearer token")
		return
	}

	var req models.AddToCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	line, err := a.cartService.Add(r.Context(), userID, req.ProductID, req.Quantity)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, line)
}

// CheckoutHandler handles POST /api/v1/checkout.
func (a *App) CheckoutHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Missing bearer token")
		return
	}

	order, err := a.orderService.Checkout(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, order)
}

// ListOrdersHandler handles GET /api/v1/orders.
func (a *App) ListOrdersHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Missing bearer token")
		return
	}

	orders, err := a.orderService.ListOrders(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid product ID")
		return 0, false
	}
	return id, true
}

// respondServiceError maps domain errors onto the HTTP error contract:
// not-found errors are 404, validation errors are 400 with the message
// passed through, everything else is a generic 500.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrProductNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrCartEmpty),
		errors.Is(err, services.ErrInsufficientStock),
		errors.Is(err, services.ErrInvalidQuantity),
		errors.Is(err, services.ErrMissingFields),
		errors.Is(err, services.ErrInvalidPrice),
		errors.Is(err, services.ErrInvalidStock):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "Server error")
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
