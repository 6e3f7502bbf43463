package port

import (
	"context"

	"github.com/rl1809/order-intake/internal/core/domain"
)

// StockLedger is the transaction-scoped view of product stock.
type StockLedger interface {
	// GetProduct returns domain.ErrProductNotFound for unknown ids
	GetProduct(ctx context.Context, productID int64) (*domain.Product, error)

	// ConditionalDecrement subtracts amount only if the stored version still
	// equals expectedVersion and enough stock is left. Returns
	// domain.ErrVersionConflict, domain.ErrInsufficientStock or
	// domain.ErrProductNotFound otherwise.
	ConditionalDecrement(ctx context.Context, productID int64, amount int, expectedVersion int64) error

	// ConditionalAdjust adds delta (which may be negative) under the same
	// version check
	ConditionalAdjust(ctx context.Context, productID int64, delta int, expectedVersion int64) error

	// CreateProduct inserts a new product, returns domain.ErrProductExists on
	// a key collision
	CreateProduct(ctx context.Context, product domain.Product) error

	// RecordAdjustment appends a stock adjustment audit row
	RecordAdjustment(ctx context.Context, adj domain.StockAdjustment) error
}

// SaleRepository is the transaction-scoped view of sales.
type SaleRepository interface {
	// InsertSale writes the sale header. The sale id uniqueness constraint
	// makes this the idempotency guard: a duplicate returns domain.ErrSaleExists.
	InsertSale(ctx context.Context, sale domain.Sale) error

	// InsertLineItems writes the line items and their delivery schedules
	InsertLineItems(ctx context.Context, saleID string, items []domain.SaleLineItem) error
}

type TxRepos interface {
	Ledger() StockLedger
	Sales() SaleRepository
}

// DatabaseRepository is the storage engine behind the services.
type DatabaseRepository interface {
	// WithinTx runs fn in one atomic transaction. fn returning an error rolls
	// everything back.
	WithinTx(ctx context.Context, fn func(r TxRepos) error) error

	GetProduct(ctx context.Context, productID int64) (*domain.Product, error)

	// SaleExists is the cheap deduplication pre-check
	SaleExists(ctx context.Context, saleID string) (bool, error)

	// GetSale returns domain.ErrSaleNotFound for unknown ids
	GetSale(ctx context.Context, saleID string) (*domain.Sale, error)

	// ListSales returns committed sales in commit order
	ListSales(ctx context.Context) ([]domain.Sale, error)

	ListAdjustments(ctx context.Context, productID int64) ([]domain.StockAdjustment, error)

	Close() error
}
