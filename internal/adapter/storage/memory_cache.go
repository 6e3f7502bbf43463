package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/order-intake/internal/core/domain"
)

type lockEntry struct {
	token     string
	expiresAt time.Time
}

type resultEntry struct {
	sale      domain.Sale
	expiresAt time.Time
}

// MemoryCache is the single-process stand-in for RedisAdapter. Expired
// entries are dropped lazily on access.
type MemoryCache struct {
	mu      sync.Mutex
	locks   map[string]lockEntry
	results map[string]resultEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		locks:   make(map[string]lockEntry),
		results: make(map[string]resultEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) AcquireSaleLock(ctx context.Context, saleID string, ttl time.Duration) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if l, ok := c.locks[saleID]; ok && now.Before(l.expiresAt) {
		return "", false, nil
	}
	token := uuid.NewString()
	c.locks[saleID] = lockEntry{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (c *MemoryCache) ReleaseSaleLock(ctx context.Context, saleID, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if l, ok := c.locks[saleID]; ok && l.token == token {
		delete(c.locks, saleID)
	}
	return nil
}

func (c *MemoryCache) GetSaleResult(ctx context.Context, saleID string) (*domain.Sale, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.results[saleID]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(r.expiresAt) {
		delete(c.results, saleID)
		return nil, false, nil
	}
	sale := cloneSale(r.sale)
	return &sale, true, nil
}

func (c *MemoryCache) SetSaleResult(ctx context.Context, sale domain.Sale, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results[sale.SaleID] = resultEntry{sale: cloneSale(sale), expiresAt: c.now().Add(ttl)}
	return nil
}
