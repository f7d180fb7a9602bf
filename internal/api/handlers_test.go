package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopcore/shop-api/internal/auth"
	"github.com/shopcore/shop-api/internal/metrics"
	"github.com/shopcore/shop-api/internal/repository"
	"github.com/shopcore/shop-api/internal/services"
	"github.com/shopcore/shop-api/pkg/config"
	"github.com/shopspring/decimal"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) (*httptest.Server, *repository.MemoryStore) {
	t.Helper()

	m, err := metrics.New(sdkmetric.NewMeterProvider().Meter("test"), "test")
	if err != nil {
		t.Fatalf("metrics.New failed: %v", err)
	}

	store := repository.NewMemoryStore()
	cfg := &config.Config{
		JWTSecret: testSecret,
		TokenTTL:  time.Hour,
	}

	app := NewApp(
		cfg,
		m,
		services.NewProductService(store, m),
		services.NewCartService(store, store, store, m, 0),
		services.NewOrderService(store, store, store, m, 0),
	)

	srv := httptest.NewServer(app.SetupRoutes(mux.NewRouter()))
	t.Cleanup(srv.Close)
	return srv, store
}

func bearerFor(t *testing.T, userID int64) string {
	t.Helper()
	token, err := auth.GenerateToken(userID, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	return "Bearer " + token
}

func doJSON(t *testing.T, method, url, bearer string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func errorMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body map[string]string
	decodeBody(t, resp, &body)
	return body["error"]
}

func createProduct(t *testing.T, srv *httptest.Server, bearer, name, price string, stock int) map[string]any {
	t.Helper()
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/products", bearer, map[string]any{
		"name":           name,
		"price":          json.Number(price),
		"category":       "test",
		"stock_quantity": stock,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create product: expected 201, got %d", resp.StatusCode)
	}
	var p map[string]any
	decodeBody(t, resp, &p)
	return p
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/products", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Origin", "http://shop.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type, Authorization")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected Access-Control-Allow-Origin *, got %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Methods"); !strings.Contains(got, http.MethodPost) {
		t.Errorf("expected POST in Access-Control-Allow-Methods, got %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Headers"); !strings.Contains(got, "Authorization") {
		t.Errorf("expected Authorization in Access-Control-Allow-Headers, got %q", got)
	}
}

func TestCORSHeadersOnActualRequest(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/products", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Origin", "http://shop.example")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected Access-Control-Allow-Origin *, got %q", got)
	}
}

func TestTokenEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/auth/token", "", map[string]any{"user_id": 7})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)

	userID, err := auth.ValidateToken(body["token"], testSecret)
	if err != nil {
		t.Fatalf("issued token does not validate: %v", err)
	}
	if userID != 7 {
		t.Errorf("expected user 7, got %d", userID)
	}
}

func TestTokenEndpointRejectsBadBody(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/auth/token", "", map[string]any{"user_id": 0})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := []struct {
		method, path string
	}{
		{http.MethodPost, "/api/v1/products"},
		{http.MethodPut, "/api/v1/products/1"},
		{http.MethodDelete, "/api/v1/products/1"},
		{http.MethodGet, "/api/v1/cart"},
		{http.MethodPost, "/api/v1/cart"},
		{http.MethodPost, "/api/v1/checkout"},
		{http.MethodGet, "/api/v1/orders"},
	}
	for _, tc := range cases {
		resp := doJSON(t, tc.method, srv.URL+tc.path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s %s without token: expected 401, got %d", tc.method, tc.path, resp.StatusCode)
		}
	}

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/cart", "Bearer garbage", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("garbage token: expected 401, got %d", resp.StatusCode)
	}
}

func TestProductsArePubliclyReadable(t *testing.T) {
	srv, _ := newTestServer(t)
	createProduct(t, srv, bearerFor(t, 1), "Widget", "9.99", 5)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/products", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var products []map[string]any
	decodeBody(t, resp, &products)
	if len(products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(products))
	}
	if products[0]["name"] != "Widget" {
		t.Errorf("unexpected product: %+v", products[0])
	}
}

func TestGetProductNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/products/99", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if msg := errorMessage(t, resp); msg != "Product not found" {
		t.Errorf("expected %q, got %q", "Product not found", msg)
	}
}

func TestCreateProductValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	bearer := bearerFor(t, 1)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/products", bearer, map[string]any{
		"name": "Widget",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing fields: expected 400, got %d", resp.StatusCode)
	}
}

func TestUpdateAndDeleteProduct(t *testing.T) {
	srv, _ := newTestServer(t)
	bearer := bearerFor(t, 1)
	p := createProduct(t, srv, bearer, "Widget", "9.99", 5)
	id := int64(p["id"].(float64))

	url := srv.URL + "/api/v1/products/" + jsonID(id)
	resp := doJSON(t, http.MethodPut, url, bearer, map[string]any{
		"name":           "Widget v2",
		"price":          json.Number("12.50"),
		"category":       "test",
		"stock_quantity": 3,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", resp.StatusCode)
	}
	var updated map[string]any
	decodeBody(t, resp, &updated)
	if updated["name"] != "Widget v2" {
		t.Errorf("unexpected updated product: %+v", updated)
	}

	resp = doJSON(t, http.MethodDelete, url, bearer, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", resp.StatusCode)
	}
	var deleted map[string]string
	decodeBody(t, resp, &deleted)
	if deleted["message"] != "Product deleted" {
		t.Errorf("expected delete confirmation, got %+v", deleted)
	}

	resp = doJSON(t, http.MethodDelete, url, bearer, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", resp.StatusCode)
	}
}

func TestCartFlow(t *testing.T) {
	srv, _ := newTestServer(t)
	bearer := bearerFor(t, 1)
	p := createProduct(t, srv, bearer, "Widget", "10.00", 5)
	id := int64(p["id"].(float64))

	// Empty cart reads as an empty array.
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/cart", bearer, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var lines []map[string]any
	decodeBody(t, resp, &lines)
	if len(lines) != 0 {
		t.Fatalf("expected empty cart, got %+v", lines)
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/cart", bearer, map[string]any{
		"product_id": id, "quantity": 2,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add to cart: expected 201, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/cart", bearer, nil)
	decodeBody(t, resp, &lines)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0]["name"] != "Widget" || lines[0]["quantity"].(float64) != 2 {
		t.Errorf("unexpected cart line: %+v", lines[0])
	}
}

func TestAddToCartErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	bearer := bearerFor(t, 1)
	p := createProduct(t, srv, bearer, "Widget", "10.00", 5)
	id := int64(p["id"].(float64))

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/cart", bearer, map[string]any{
		"product_id": id, "quantity": 10,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if msg := errorMessage(t, resp); msg != "Insufficient stock" {
		t.Errorf("expected %q, got %q", "Insufficient stock", msg)
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/cart", bearer, map[string]any{
		"product_id": int64(99), "quantity": 1,
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown product: expected 404, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/cart", bearer, map[string]any{
		"product_id": id, "quantity": 0,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("zero quantity: expected 400, got %d", resp.StatusCode)
	}
}

func TestCheckoutFlow(t *testing.T) {
	srv, _ := newTestServer(t)
	bearer := bearerFor(t, 1)
	p1 := createProduct(t, srv, bearer, "Widget", "10.00", 10)
	p2 := createProduct(t, srv, bearer, "Gadget", "5.00", 10)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/checkout", bearer, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty checkout: expected 400, got %d", resp.StatusCode)
	}
	if msg := errorMessage(t, resp); msg != "Cart is empty" {
		t.Errorf("expected %q, got %q", "Cart is empty", msg)
	}

	for _, add := range []map[string]any{
		{"product_id": int64(p1["id"].(float64)), "quantity": 2},
		{"product_id": int64(p2["id"].(float64)), "quantity": 3},
	} {
		resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/cart", bearer, add)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("add to cart: expected 201, got %d", resp.StatusCode)
		}
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/checkout", bearer, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("checkout: expected 201, got %d", resp.StatusCode)
	}
	var order map[string]any
	decodeBody(t, resp, &order)
	total, err := decimal.NewFromString(jsonNumber(order["total_price"]))
	if err != nil {
		t.Fatalf("bad total_price %v: %v", order["total_price"], err)
	}
	if !total.Equal(decimal.RequireFromString("35.00")) {
		t.Errorf("expected total 35.00, got %s", total)
	}
	if order["status"] != "pending" {
		t.Errorf("expected pending status, got %v", order["status"])
	}

	// Cart is cleared and the order shows up in the listing.
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/cart", bearer, nil)
	var lines []map[string]any
	decodeBody(t, resp, &lines)
	if len(lines) != 0 {
		t.Errorf("expected cart cleared after checkout, got %+v", lines)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/orders", bearer, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list orders: expected 200, got %d", resp.StatusCode)
	}
	var orders []map[string]any
	decodeBody(t, resp, &orders)
	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
}

func TestOrdersAreScopedToUser(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := bearerFor(t, 1)
	bob := bearerFor(t, 2)
	p := createProduct(t, srv, alice, "Widget", "10.00", 10)
	id := int64(p["id"].(float64))

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/cart", alice, map[string]any{
		"product_id": id, "quantity": 1,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add to cart: expected 201, got %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/checkout", alice, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("checkout: expected 201, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/orders", bob, nil)
	var orders []map[string]any
	decodeBody(t, resp, &orders)
	if len(orders) != 0 {
		t.Errorf("expected no orders for other user, got %+v", orders)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/cart", bob, nil)
	var lines []map[string]any
	decodeBody(t, resp, &lines)
	if len(lines) != 0 {
		t.Errorf("expected empty cart for other user, got %+v", lines)
	}
}

func TestInvalidProductID(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/products/abc", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func jsonID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func jsonNumber(v any) string {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n).String()
	case string:
		return n
	default:
		return ""
	}
}
