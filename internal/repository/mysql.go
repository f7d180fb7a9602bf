package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopcore/shop-api/internal/db"
	"github.com/shopcore/shop-api/internal/metrics"
	"github.com/shopcore/shop-api/internal/models"
	"github.com/shopspring/decimal"
)

// MySQLStore implements the repository interfaces and TxManager on top of
// a shared *sql.DB pool. Methods run against the pool directly, or against
// the transaction carried by the context when called inside WithTx.
type MySQLStore struct {
	db      *db.DB
	metrics *metrics.AppMetrics
}

var (
	_ ProductRepository = (*MySQLStore)(nil)
	_ CartRepository    = (*MySQLStore)(nil)
	_ OrderRepository   = (*MySQLStore)(nil)
	_ TxManager         = (*MySQLStore)(nil)
)

// NewMySQLStore creates a store backed by the given connection pool.
func NewMySQLStore(database *db.DB, m *metrics.AppMetrics) *MySQLStore {
	return &MySQLStore{db: database, metrics: m}
}

type txKey struct{}

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *MySQLStore) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// WithTx begins a transaction, runs fn with it bound to the context, and
// commits on nil. The deferred rollback is a no-op after a successful
// commit, so every exit path releases the connection exactly once.
func (s *MySQLStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// --- products ---

const productColumns = "id, name, price, description, category, stock_quantity, created_at, updated_at"

func scanProduct(row interface{ Scan(dest ...any) error }) (*models.Product, error) {
	var p models.Product
	var description sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &description, &p.Category, &p.StockQuantity, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Description = description.String
	return &p, nil
}

func (s *MySQLStore) ListProducts(ctx context.Context) ([]models.Product, error) {
	start := time.Now()
	query := "SELECT " + productColumns + " FROM products ORDER BY id"
	rows, err := s.q(ctx).QueryContext(ctx, query)
	s.metrics.RecordDBQuery(ctx, "SELECT", "products", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (s *MySQLStore) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	start := time.Now()
	query := "SELECT " + productColumns + " FROM products WHERE id = ?"
	p, err := scanProduct(s.q(ctx).QueryRowContext(ctx, query, id))
	s.metrics.RecordDBQuery(ctx, "SELECT", "products", query, start, err == nil)
	if err == sql.ErrNoRows {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

func (s *MySQLStore) CreateProduct(ctx context.Context, p *models.Product) error {
	start := time.Now()
	query := "INSERT INTO products (name, price, description, category, stock_quantity) VALUES (?, ?, ?, ?, ?)"
	result, err := s.q(ctx).ExecContext(ctx, query, p.Name, p.Price, nullString(p.Description), p.Category, p.StockQuantity)
	s.metrics.RecordDBQuery(ctx, "INSERT", "products", query, start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get product ID: %w", err)
	}

	created, err := s.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	*p = *created
	return nil
}

func (s *MySQLStore) UpdateProduct(ctx context.Context, p *models.Product) error {
	if _, err := s.GetProduct(ctx, p.ID); err != nil {
		return err
	}

	start := time.Now()
	query := "UPDATE products SET name = ?, price = ?, description = ?, category = ?, stock_quantity = ?, updated_at = NOW(6) WHERE id = ?"
	_, err := s.q(ctx).ExecContext(ctx, query, p.Name, p.Price, nullString(p.Description), p.Category, p.StockQuantity, p.ID)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "products", query, start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}

	updated, err := s.GetProduct(ctx, p.ID)
	if err != nil {
		return err
	}
	*p = *updated
	return nil
}

func (s *MySQLStore) DeleteProduct(ctx context.Context, id int64) error {
	start := time.Now()
	query := "DELETE FROM products WHERE id = ?"
	result, err := s.q(ctx).ExecContext(ctx, query, id)
	s.metrics.RecordDBQuery(ctx, "DELETE", "products", query, start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (s *MySQLStore) ProductStockForUpdate(ctx context.Context, id int64) (int, error) {
	start := time.Now()
	query := "SELECT stock_quantity FROM products WHERE id = ? FOR UPDATE"
	var stock int
	err := s.q(ctx).QueryRowContext(ctx, query, id).Scan(&stock)
	s.metrics.RecordDBQuery(ctx, "SELECT", "products", query, start, err == nil)
	if err == sql.ErrNoRows {
		return 0, ErrProductNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read stock: %w", err)
	}
	return stock, nil
}

// --- cart lines ---

func (s *MySQLStore) ListCartLines(ctx context.Context, userID int64) ([]models.CartLineView, error) {
	start := time.Now()
	query := `
		SELECT cl.id, cl.quantity, p.name, p.price, (p.price * cl.quantity) AS total
		FROM cart_lines cl
		JOIN products p ON cl.product_id = p.id
		WHERE cl.user_id = ?
		ORDER BY cl.id
	`
	rows, err := s.q(ctx).QueryContext(ctx, query, userID)
	s.metrics.RecordDBQuery(ctx, "SELECT", "cart_lines", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart lines: %w", err)
	}
	defer rows.Close()

	lines := []models.CartLineView{}
	for rows.Next() {
		var v models.CartLineView
		if err := rows.Scan(&v.ID, &v.Quantity, &v.Name, &v.Price, &v.Total); err != nil {
			return nil, fmt.Errorf("failed to scan cart line: %w", err)
		}
		lines = append(lines, v)
	}
	return lines, rows.Err()
}

func (s *MySQLStore) CartLineQuantity(ctx context.Context, userID, productID int64) (int, error) {
	start := time.Now()
	query := "SELECT quantity FROM cart_lines WHERE user_id = ? AND product_id = ?"
	var quantity int
	err := s.q(ctx).QueryRowContext(ctx, query, userID, productID).Scan(&quantity)
	s.metrics.RecordDBQuery(ctx, "SELECT", "cart_lines", query, start, err == nil || err == sql.ErrNoRows)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cart line quantity: %w", err)
	}
	return quantity, nil
}

func (s *MySQLStore) UpsertCartLine(ctx context.Context, userID, productID int64, quantity int) (*models.CartLine, error) {
	start := time.Now()
	query := `
		INSERT INTO cart_lines (user_id, product_id, quantity)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE quantity = quantity + VALUES(quantity), updated_at = NOW(6)
	`
	_, err := s.q(ctx).ExecContext(ctx, query, userID, productID, quantity)
	s.metrics.RecordDBQuery(ctx, "INSERT", "cart_lines", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert cart line: %w", err)
	}

	start = time.Now()
	selectQuery := "SELECT id, user_id, product_id, quantity, created_at, updated_at FROM cart_lines WHERE user_id = ? AND product_id = ?"
	var line models.CartLine
	err = s.q(ctx).QueryRowContext(ctx, selectQuery, userID, productID).Scan(
		&line.ID, &line.UserID, &line.ProductID, &line.Quantity, &line.CreatedAt, &line.UpdatedAt,
	)
	s.metrics.RecordDBQuery(ctx, "SELECT", "cart_lines", selectQuery, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read cart line: %w", err)
	}
	return &line, nil
}

func (s *MySQLStore) CartTotal(ctx context.Context, userID int64) (decimal.Decimal, error) {
	start := time.Now()
	query := `
		SELECT SUM(p.price * cl.quantity) AS total
		FROM cart_lines cl
		JOIN products p ON cl.product_id = p.id
		WHERE cl.user_id = ?
	`
	var total decimal.NullDecimal
	err := s.q(ctx).QueryRowContext(ctx, query, userID).Scan(&total)
	s.metrics.RecordDBQuery(ctx, "SELECT", "cart_lines", query, start, err == nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to aggregate cart total: %w", err)
	}
	// SUM over zero rows is NULL: the cart has no lines.
	if !total.Valid {
		return decimal.Zero, ErrCartEmpty
	}
	return total.Decimal, nil
}

func (s *MySQLStore) ClearCart(ctx context.Context, userID int64) error {
	start := time.Now()
	query := "DELETE FROM cart_lines WHERE user_id = ?"
	_, err := s.q(ctx).ExecContext(ctx, query, userID)
	s.metrics.RecordDBQuery(ctx, "DELETE", "cart_lines", query, start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

func (s *MySQLStore) CountCartLines(ctx context.Context, userID int64) (int, error) {
	start := time.Now()
	query := "SELECT COUNT(*) FROM cart_lines WHERE user_id = ?"
	var count int
	err := s.q(ctx).QueryRowContext(ctx, query, userID).Scan(&count)
	s.metrics.RecordDBQuery(ctx, "SELECT", "cart_lines", query, start, err == nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count cart lines: %w", err)
	}
	return count, nil
}

// --- orders ---

func (s *MySQLStore) CreateOrder(ctx context.Context, o *models.Order) error {
	if o.Status == "" {
		o.Status = models.OrderStatusPending
	}

	start := time.Now()
	query := "INSERT INTO orders (user_id, total_price, status) VALUES (?, ?, ?)"
	result, err := s.q(ctx).ExecContext(ctx, query, o.UserID, o.TotalPrice, string(o.Status))
	s.metrics.RecordDBQuery(ctx, "INSERT", "orders", query, start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get order ID: %w", err)
	}

	start = time.Now()
	selectQuery := "SELECT id, user_id, total_price, status, created_at FROM orders WHERE id = ?"
	err = s.q(ctx).QueryRowContext(ctx, selectQuery, id).Scan(
		&o.ID, &o.UserID, &o.TotalPrice, &o.Status, &o.CreatedAt,
	)
	s.metrics.RecordDBQuery(ctx, "SELECT", "orders", selectQuery, start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to read order: %w", err)
	}
	return nil
}

func (s *MySQLStore) ListOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	start := time.Now()
	query := "SELECT id, user_id, total_price, status, created_at FROM orders WHERE user_id = ? ORDER BY created_at DESC, id DESC"
	rows, err := s.q(ctx).QueryContext(ctx, query, userID)
	s.metrics.RecordDBQuery(ctx, "SELECT", "orders", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.TotalPrice, &o.Status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
