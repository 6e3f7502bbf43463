package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/order-intake/internal/core/domain"
	"github.com/rl1809/order-intake/internal/port"
)

// testCache runs the lock and result behavior shared by the cache adapters.
func testCache(t *testing.T, cache port.CacheRepository, saleID string) {
	ctx := context.Background()

	token, ok, err := cache.AcquireSaleLock(ctx, saleID, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = cache.AcquireSaleLock(ctx, saleID, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while the lock is held")

	require.NoError(t, cache.ReleaseSaleLock(ctx, saleID, "not-the-owner"))
	_, ok, err = cache.AcquireSaleLock(ctx, saleID, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a foreign token must not release the lock")

	require.NoError(t, cache.ReleaseSaleLock(ctx, saleID, token))
	token, ok, err = cache.AcquireSaleLock(ctx, saleID, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, cache.ReleaseSaleLock(ctx, saleID, token))

	_, found, err := cache.GetSaleResult(ctx, saleID)
	require.NoError(t, err)
	assert.False(t, found)

	sale := domain.Sale{
		SaleID:    saleID,
		Timestamp: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC),
		Total:     decimal.RequireFromString("20.50"),
		Items: []domain.SaleLineItem{{
			LineNo: 1, ProductID: 3, Quantity: 2, Price: decimal.RequireFromString("10.25"), ImmediateQuantity: 1,
			FutureDeliveries: []domain.Delivery{{Date: time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC), Quantity: 1}},
		}},
	}
	require.NoError(t, cache.SetSaleResult(ctx, sale, time.Minute))

	got, found, err := cache.GetSaleResult(ctx, saleID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, sale.SaleID, got.SaleID)
	assert.True(t, sale.Total.Equal(got.Total))
	require.Len(t, got.Items, 1)
	assert.Equal(t, 1, got.Items[0].BackorderQuantity())
	require.Len(t, got.Items[0].FutureDeliveries, 1)
	assert.Equal(t, "2024-01-11", got.Items[0].FutureDeliveries[0].DateString())
}

func TestMemoryCache(t *testing.T) {
	testCache(t, NewMemoryCache(), "S-cache")
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewMemoryCache()
	cache.now = func() time.Time { return now }

	_, ok, err := cache.AcquireSaleLock(ctx, "S-1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, cache.SetSaleResult(ctx, domain.Sale{SaleID: "S-1"}, time.Second))

	now = now.Add(2 * time.Second)

	_, ok, err = cache.AcquireSaleLock(ctx, "S-1", time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired lock must be reclaimable")

	_, found, err := cache.GetSaleResult(ctx, "S-1")
	require.NoError(t, err)
	assert.False(t, found)
}
