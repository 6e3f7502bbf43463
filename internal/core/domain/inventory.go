package domain

import "time"

// Product is the unit of stock tracked by the ledger.
type Product struct {
	ID             int64
	SKU            string
	Name           string
	QuantityOnHand int
	Version        int64 // optimistic locking
}

// MaxStockQuantity is the largest quantity on hand the ledger stores. It fits
// the INT columns of every SQL engine.
const MaxStockQuantity = 1<<31 - 1

// NewProduct builds the product created implicitly by the first stock
// adjustment of an unknown id.
func NewProduct(id int64, quantity int) Product {
	if quantity < 0 {
		quantity = 0
	}
	return Product{
		ID:             id,
		SKU:            DefaultSKU(id),
		Name:           DefaultName(id),
		QuantityOnHand: quantity,
	}
}

func DefaultSKU(id int64) string {
	return "SKU" + itoa(id)
}

func DefaultName(id int64) string {
	return "Product " + itoa(id)
}

// StockAdjustment is the audit record of an administrative restock or
// correction.
type StockAdjustment struct {
	ProductID     int64
	Delta         int
	Reason        string
	QuantityAfter int
	CreatedAt     time.Time
}

const DefaultAdjustmentReason = "no reason given"
