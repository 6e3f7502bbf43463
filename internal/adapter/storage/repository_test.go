package storage

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/order-intake/internal/core/domain"
	"github.com/rl1809/order-intake/internal/port"
)

// Product ids start from the clock so runs against a shared database do not
// collide with rows left by earlier runs.
var nextProductID = time.Now().UnixNano() / 1000

func newProductID() int64 {
	return atomic.AddInt64(&nextProductID, 1)
}

func seedProduct(t *testing.T, repo port.DatabaseRepository, qty int) domain.Product {
	t.Helper()
	p := domain.NewProduct(newProductID(), qty)
	err := repo.WithinTx(context.Background(), func(r port.TxRepos) error {
		return r.Ledger().CreateProduct(context.Background(), p)
	})
	require.NoError(t, err)
	return p
}

// testRepository runs the behavior every storage engine must share.
func testRepository(t *testing.T, repo port.DatabaseRepository) {
	ctx := context.Background()

	t.Run("create and get product", func(t *testing.T) {
		p := seedProduct(t, repo, 5)

		got, err := repo.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p, *got)

		err = repo.WithinTx(ctx, func(r port.TxRepos) error {
			return r.Ledger().CreateProduct(ctx, domain.NewProduct(p.ID, 1))
		})
		assert.ErrorIs(t, err, domain.ErrProductExists)

		_, err = repo.GetProduct(ctx, newProductID())
		assert.ErrorIs(t, err, domain.ErrProductNotFound)
	})

	t.Run("conditional decrement", func(t *testing.T) {
		p := seedProduct(t, repo, 5)

		err := repo.WithinTx(ctx, func(r port.TxRepos) error {
			return r.Ledger().ConditionalDecrement(ctx, p.ID, 3, p.Version)
		})
		require.NoError(t, err)

		got, err := repo.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.QuantityOnHand)
		assert.Equal(t, p.Version+1, got.Version)

		err = repo.WithinTx(ctx, func(r port.TxRepos) error {
			return r.Ledger().ConditionalDecrement(ctx, p.ID, 1, p.Version)
		})
		assert.ErrorIs(t, err, domain.ErrVersionConflict)
		assert.ErrorIs(t, err, domain.ErrStockConflict)

		err = repo.WithinTx(ctx, func(r port.TxRepos) error {
			return r.Ledger().ConditionalDecrement(ctx, p.ID, 3, got.Version)
		})
		assert.ErrorIs(t, err, domain.ErrInsufficientStock)

		err = repo.WithinTx(ctx, func(r port.TxRepos) error {
			return r.Ledger().ConditionalDecrement(ctx, newProductID(), 1, 0)
		})
		assert.ErrorIs(t, err, domain.ErrProductNotFound)

		after, err := repo.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, *got, *after)
	})

	t.Run("adjust and audit", func(t *testing.T) {
		p := seedProduct(t, repo, 2)
		at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

		err := repo.WithinTx(ctx, func(r port.TxRepos) error {
			if err := r.Ledger().ConditionalAdjust(ctx, p.ID, 4, p.Version); err != nil {
				return err
			}
			return r.Ledger().RecordAdjustment(ctx, domain.StockAdjustment{
				ProductID: p.ID, Delta: 4, Reason: "restock", QuantityAfter: 6, CreatedAt: at,
			})
		})
		require.NoError(t, err)

		err = repo.WithinTx(ctx, func(r port.TxRepos) error {
			return r.Ledger().ConditionalAdjust(ctx, p.ID, -7, p.Version+1)
		})
		assert.ErrorIs(t, err, domain.ErrInsufficientStock)

		got, err := repo.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 6, got.QuantityOnHand)

		adjustments, err := repo.ListAdjustments(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, adjustments, 1)
		assert.Equal(t, "restock", adjustments[0].Reason)
		assert.Equal(t, 6, adjustments[0].QuantityAfter)
		assert.True(t, at.Equal(adjustments[0].CreatedAt))
	})

	t.Run("sale round trip", func(t *testing.T) {
		p := seedProduct(t, repo, 5)
		sale := domain.Sale{
			SaleID:    uuid.NewString(),
			Timestamp: time.Date(2024, 1, 10, 15, 30, 0, 0, time.UTC),
			Total:     decimal.RequireFromString("80.50"),
		}
		items := []domain.SaleLineItem{{
			LineNo:            1,
			ProductID:         p.ID,
			Quantity:          7,
			Price:             decimal.RequireFromString("11.50"),
			ImmediateQuantity: 5,
			FutureDeliveries: []domain.Delivery{
				{Date: time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC), Quantity: 1},
				{Date: time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC), Quantity: 1},
			},
		}}

		err := repo.WithinTx(ctx, func(r port.TxRepos) error {
			if err := r.Sales().InsertSale(ctx, sale); err != nil {
				return err
			}
			if err := r.Ledger().ConditionalDecrement(ctx, p.ID, 5, p.Version); err != nil {
				return err
			}
			return r.Sales().InsertLineItems(ctx, sale.SaleID, items)
		})
		require.NoError(t, err)

		exists, err := repo.SaleExists(ctx, sale.SaleID)
		require.NoError(t, err)
		assert.True(t, exists)

		got, err := repo.GetSale(ctx, sale.SaleID)
		require.NoError(t, err)
		assert.Equal(t, sale.SaleID, got.SaleID)
		assert.True(t, sale.Timestamp.Equal(got.Timestamp))
		assert.True(t, sale.Total.Equal(got.Total), "total %s", got.Total)
		require.Len(t, got.Items, 1)
		item := got.Items[0]
		assert.Equal(t, 7, item.Quantity)
		assert.Equal(t, 5, item.ImmediateQuantity)
		assert.Equal(t, 2, item.BackorderQuantity())
		assert.True(t, items[0].Price.Equal(item.Price))
		require.Len(t, item.FutureDeliveries, 2)
		assert.Equal(t, "2024-01-11", item.FutureDeliveries[0].DateString())
		assert.Equal(t, "2024-01-12", item.FutureDeliveries[1].DateString())

		all, err := repo.ListSales(ctx)
		require.NoError(t, err)
		found := false
		for _, s := range all {
			if s.SaleID == sale.SaleID {
				found = true
				assert.Len(t, s.Items, 1)
			}
		}
		assert.True(t, found)

		err = repo.WithinTx(ctx, func(r port.TxRepos) error {
			return r.Sales().InsertSale(ctx, sale)
		})
		assert.ErrorIs(t, err, domain.ErrSaleExists)
	})

	t.Run("failed transaction leaves nothing behind", func(t *testing.T) {
		p := seedProduct(t, repo, 5)
		saleID := uuid.NewString()
		boom := errors.New("boom")

		err := repo.WithinTx(ctx, func(r port.TxRepos) error {
			if err := r.Sales().InsertSale(ctx, domain.Sale{SaleID: saleID, Timestamp: time.Now(), Total: decimal.Zero}); err != nil {
				return err
			}
			if err := r.Ledger().ConditionalDecrement(ctx, p.ID, 5, p.Version); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		exists, err := repo.SaleExists(ctx, saleID)
		require.NoError(t, err)
		assert.False(t, exists)

		got, err := repo.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p, *got)
	})

	t.Run("unknown sale", func(t *testing.T) {
		_, err := repo.GetSale(ctx, uuid.NewString())
		assert.ErrorIs(t, err, domain.ErrSaleNotFound)
	})
}
