package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopcore/shop-api/internal/models"
	"github.com/shopspring/decimal"
)

// MemoryStore is an in-memory implementation of the repository interfaces
// used by tests. Transactions take the write lock for their whole extent
// and snapshot the maps, so a failed transaction rolls back completely,
// matching the observable contract the MySQL store gets from InnoDB.
type MemoryStore struct {
	mu sync.RWMutex

	nextProductID int64
	nextLineID    int64
	nextOrderID   int64

	products map[int64]models.Product
	lines    map[int64]models.CartLine
	orders   map[int64]models.Order
}

var (
	_ ProductRepository = (*MemoryStore)(nil)
	_ CartRepository    = (*MemoryStore)(nil)
	_ OrderRepository   = (*MemoryStore)(nil)
	_ TxManager         = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextProductID: 1,
		nextLineID:    1,
		nextOrderID:   1,
		products:      make(map[int64]models.Product),
		lines:         make(map[int64]models.CartLine),
		orders:        make(map[int64]models.Order),
	}
}

type memTxKey struct{}

func inTx(ctx context.Context) bool {
	v, ok := ctx.Value(memTxKey{}).(bool)
	return ok && v
}

// Lock helpers skip the store mutex inside a transaction, which already
// holds the write lock.
func (m *MemoryStore) rlock(ctx context.Context) {
	if !inTx(ctx) {
		m.mu.RLock()
	}
}

func (m *MemoryStore) runlock(ctx context.Context) {
	if !inTx(ctx) {
		m.mu.RUnlock()
	}
}

func (m *MemoryStore) wlock(ctx context.Context) {
	if !inTx(ctx) {
		m.mu.Lock()
	}
}

func (m *MemoryStore) wunlock(ctx context.Context) {
	if !inTx(ctx) {
		m.mu.Unlock()
	}
}

// WithTx serializes on the write lock and restores a snapshot of all
// state when fn fails, so partial mutations are never observable.
func (m *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memSnapshot struct {
	nextProductID int64
	nextLineID    int64
	nextOrderID   int64
	products      map[int64]models.Product
	lines         map[int64]models.CartLine
	orders        map[int64]models.Order
}

func (m *MemoryStore) snapshot() memSnapshot {
	s := memSnapshot{
		nextProductID: m.nextProductID,
		nextLineID:    m.nextLineID,
		nextOrderID:   m.nextOrderID,
		products:      make(map[int64]models.Product, len(m.products)),
		lines:         make(map[int64]models.CartLine, len(m.lines)),
		orders:        make(map[int64]models.Order, len(m.orders)),
	}
	for id, p := range m.products {
		s.products[id] = p
	}
	for id, l := range m.lines {
		s.lines[id] = l
	}
	for id, o := range m.orders {
		s.orders[id] = o
	}
	return s
}

func (m *MemoryStore) restore(s memSnapshot) {
	m.nextProductID = s.nextProductID
	m.nextLineID = s.nextLineID
	m.nextOrderID = s.nextOrderID
	m.products = s.products
	m.lines = s.lines
	m.orders = s.orders
}

// --- products ---

func (m *MemoryStore) ListProducts(ctx context.Context) ([]models.Product, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)

	ids := make([]int64, 0, len(m.products))
	for id := range m.products {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.products[id])
	}
	return out, nil
}

func (m *MemoryStore) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)

	p, ok := m.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	cp := p
	return &cp, nil
}

func (m *MemoryStore) CreateProduct(ctx context.Context, p *models.Product) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)

	p.ID = m.nextProductID
	m.nextProductID++
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	m.products[p.ID] = *p
	return nil
}

func (m *MemoryStore) UpdateProduct(ctx context.Context, p *models.Product) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)

	existing, ok := m.products[p.ID]
	if !ok {
		return ErrProductNotFound
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	m.products[p.ID] = *p
	return nil
}

func (m *MemoryStore) DeleteProduct(ctx context.Context, id int64) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)

	if _, ok := m.products[id]; !ok {
		return ErrProductNotFound
	}
	delete(m.products, id)
	for lineID, l := range m.lines {
		if l.ProductID == id {
			delete(m.lines, lineID)
		}
	}
	return nil
}

func (m *MemoryStore) ProductStockForUpdate(ctx context.Context, id int64) (int, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)

	p, ok := m.products[id]
	if !ok {
		return 0, ErrProductNotFound
	}
	return p.StockQuantity, nil
}

// --- cart lines ---

func (m *MemoryStore) findLine(userID, productID int64) (models.CartLine, bool) {
	for _, l := range m.lines {
		if l.UserID == userID && l.ProductID == productID {
			return l, true
		}
	}
	return models.CartLine{}, false
}

func (m *MemoryStore) ListCartLines(ctx context.Context, userID int64) ([]models.CartLineView, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)

	out := []models.CartLineView{}
	for _, l := range m.lines {
		if l.UserID != userID {
			continue
		}
		p, ok := m.products[l.ProductID]
		if !ok {
			continue
		}
		out = append(out, models.CartLineView{
			ID:       l.ID,
			Quantity: l.Quantity,
			Name:     p.Name,
			Price:    p.Price,
			Total:    p.Price.Mul(decimal.NewFromInt(int64(l.Quantity))),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) CartLineQuantity(ctx context.Context, userID, productID int64) (int, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)

	l, ok := m.findLine(userID, productID)
	if !ok {
		return 0, nil
	}
	return l.Quantity, nil
}

func (m *MemoryStore) UpsertCartLine(ctx context.Context, userID, productID int64, quantity int) (*models.CartLine, error) {
	m.wlock(ctx)
	defer m.wunlock(ctx)

	now := time.Now().UTC()
	if l, ok := m.findLine(userID, productID); ok {
		l.Quantity += quantity
		l.UpdatedAt = now
		m.lines[l.ID] = l
		return &l, nil
	}

	l := models.CartLine{
		ID:        m.nextLineID,
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.nextLineID++
	m.lines[l.ID] = l
	return &l, nil
}

func (m *MemoryStore) CartTotal(ctx context.Context, userID int64) (decimal.Decimal, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)

	total := decimal.Zero
	found := false
	for _, l := range m.lines {
		if l.UserID != userID {
			continue
		}
		p, ok := m.products[l.ProductID]
		if !ok {
			continue
		}
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
		found = true
	}
	if !found {
		return decimal.Zero, ErrCartEmpty
	}
	return total, nil
}

func (m *MemoryStore) ClearCart(ctx context.Context, userID int64) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)

	for id, l := range m.lines {
		if l.UserID == userID {
			delete(m.lines, id)
		}
	}
	return nil
}

func (m *MemoryStore) CountCartLines(ctx context.Context, userID int64) (int, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)

	count := 0
	for _, l := range m.lines {
		if l.UserID == userID {
			count++
		}
	}
	return count, nil
}

// --- orders ---

func (m *MemoryStore) CreateOrder(ctx context.Context, o *models.Order) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)

	o.ID = m.nextOrderID
	m.nextOrderID++
	if o.Status == "" {
		o.Status = models.OrderStatusPending
	}
	o.CreatedAt = time.Now().UTC()
	m.orders[o.ID] = *o
	return nil
}

func (m *MemoryStore) ListOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)

	out := []models.Order{}
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
