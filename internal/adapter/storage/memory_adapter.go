package storage

import (
	"context"
	"slices"
	"sync"

	"github.com/rl1809/order-intake/internal/core/domain"
	"github.com/rl1809/order-intake/internal/port"
)

// MemoryAdapter is an in-process port.DatabaseRepository. Transactions are
// optimistic: reads see committed state plus the transaction's own writes,
// writes are buffered, and commit re-validates every touched product version
// and the sale id under the store lock.
type MemoryAdapter struct {
	mu          sync.RWMutex
	products    map[int64]domain.Product
	sales       map[string]domain.Sale
	saleOrder   []string
	adjustments []domain.StockAdjustment
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		products: make(map[int64]domain.Product),
		sales:    make(map[string]domain.Sale),
	}
}

// PutProduct stores p as-is, version included. Used for seeding.
func (m *MemoryAdapter) PutProduct(p domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

func (m *MemoryAdapter) Close() error {
	return nil
}

func (m *MemoryAdapter) WithinTx(ctx context.Context, fn func(r port.TxRepos) error) error {
	tx := &memoryTx{
		store:       m,
		staged:      make(map[int64]domain.Product),
		baseVersion: make(map[int64]int64),
		created:     make(map[int64]bool),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.commit()
}

func (m *MemoryAdapter) GetProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &p, nil
}

func (m *MemoryAdapter) SaleExists(ctx context.Context, saleID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.sales[saleID]
	return ok, nil
}

func (m *MemoryAdapter) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sales[saleID]
	if !ok {
		return nil, domain.ErrSaleNotFound
	}
	s = cloneSale(s)
	return &s, nil
}

func (m *MemoryAdapter) ListSales(ctx context.Context) ([]domain.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(m.saleOrder))
	for _, id := range m.saleOrder {
		sales = append(sales, cloneSale(m.sales[id]))
	}
	return sales, nil
}

func (m *MemoryAdapter) ListAdjustments(ctx context.Context, productID int64) ([]domain.StockAdjustment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.StockAdjustment, 0)
	for _, adj := range m.adjustments {
		if adj.ProductID == productID {
			out = append(out, adj)
		}
	}
	return out, nil
}

func cloneSale(s domain.Sale) domain.Sale {
	items := make([]domain.SaleLineItem, len(s.Items))
	for i, item := range s.Items {
		item.FutureDeliveries = slices.Clone(item.FutureDeliveries)
		if item.FutureDeliveries == nil {
			item.FutureDeliveries = []domain.Delivery{}
		}
		items[i] = item
	}
	s.Items = items
	return s
}

type memoryTx struct {
	store       *MemoryAdapter
	staged      map[int64]domain.Product
	baseVersion map[int64]int64 // committed version the staged write was based on
	created     map[int64]bool
	sale        *domain.Sale
	adjustments []domain.StockAdjustment
}

func (tx *memoryTx) Ledger() port.StockLedger    { return tx }
func (tx *memoryTx) Sales() port.SaleRepository { return tx }

func (tx *memoryTx) current(productID int64) (domain.Product, bool) {
	if p, ok := tx.staged[productID]; ok {
		return p, true
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	p, ok := tx.store.products[productID]
	return p, ok
}

func (tx *memoryTx) GetProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	p, ok := tx.current(productID)
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &p, nil
}

func (tx *memoryTx) ConditionalDecrement(ctx context.Context, productID int64, amount int, expectedVersion int64) error {
	return tx.conditionalApply(productID, -amount, expectedVersion)
}

func (tx *memoryTx) ConditionalAdjust(ctx context.Context, productID int64, delta int, expectedVersion int64) error {
	return tx.conditionalApply(productID, delta, expectedVersion)
}

func (tx *memoryTx) conditionalApply(productID int64, delta int, expectedVersion int64) error {
	p, ok := tx.current(productID)
	if !ok {
		return domain.ErrProductNotFound
	}
	if p.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	if p.QuantityOnHand+delta < 0 {
		return domain.ErrInsufficientStock
	}

	if _, staged := tx.staged[productID]; !staged {
		tx.baseVersion[productID] = p.Version
	}
	p.QuantityOnHand += delta
	p.Version++
	tx.staged[productID] = p
	return nil
}

func (tx *memoryTx) CreateProduct(ctx context.Context, product domain.Product) error {
	if _, ok := tx.current(product.ID); ok {
		return domain.ErrProductExists
	}
	tx.staged[product.ID] = product
	tx.created[product.ID] = true
	return nil
}

func (tx *memoryTx) RecordAdjustment(ctx context.Context, adj domain.StockAdjustment) error {
	tx.adjustments = append(tx.adjustments, adj)
	return nil
}

func (tx *memoryTx) InsertSale(ctx context.Context, sale domain.Sale) error {
	if tx.sale != nil {
		return domain.ErrSaleExists
	}
	if exists, _ := tx.store.SaleExists(ctx, sale.SaleID); exists {
		return domain.ErrSaleExists
	}
	s := sale
	s.Items = nil
	tx.sale = &s
	return nil
}

func (tx *memoryTx) InsertLineItems(ctx context.Context, saleID string, items []domain.SaleLineItem) error {
	if tx.sale == nil || tx.sale.SaleID != saleID {
		return domain.ErrSaleNotFound
	}
	tx.sale.Items = append(tx.sale.Items, items...)
	return nil
}

func (tx *memoryTx) commit() error {
	m := tx.store
	m.mu.Lock()
	defer m.mu.Unlock()

	for id := range tx.staged {
		committed, exists := m.products[id]
		if tx.created[id] {
			if exists {
				return domain.ErrProductExists
			}
			continue
		}
		if !exists {
			return domain.ErrProductNotFound
		}
		if committed.Version != tx.baseVersion[id] {
			return domain.ErrVersionConflict
		}
	}
	if tx.sale != nil {
		if _, exists := m.sales[tx.sale.SaleID]; exists {
			return domain.ErrSaleExists
		}
	}

	for id, p := range tx.staged {
		m.products[id] = p
	}
	if tx.sale != nil {
		m.sales[tx.sale.SaleID] = cloneSale(*tx.sale)
		m.saleOrder = append(m.saleOrder, tx.sale.SaleID)
	}
	m.adjustments = append(m.adjustments, tx.adjustments...)
	return nil
}
