package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rl1809/order-intake/internal/adapter/storage"
	"github.com/rl1809/order-intake/internal/core/domain"
	"github.com/rl1809/order-intake/internal/port"
)

var fixedNow = time.Date(2024, 1, 10, 15, 30, 0, 0, time.UTC)

type testEnv struct {
	db     port.DatabaseRepository
	cache  port.CacheRepository
	events *EventQueue
	sales  *SaleService
	stock  *StockService
}

func newTestEnv(t *testing.T, retries int) *testEnv {
	t.Helper()
	return newTestEnvWith(t, storage.NewMemoryAdapter(), storage.NewMemoryCache(), retries)
}

func newTestEnvWith(t *testing.T, db port.DatabaseRepository, cache port.CacheRepository, retries int) *testEnv {
	t.Helper()
	events := NewEventQueue(1000, nil)
	t.Cleanup(events.Close)

	cfg := DefaultSaleConfig()
	cfg.MaxConflictRetries = retries

	sales := NewSaleService(db, cache, events, cfg, nil)
	sales.now = func() time.Time { return fixedNow }
	stock := NewStockService(db, events, retries, nil)
	stock.now = func() time.Time { return fixedNow }

	return &testEnv{db: db, cache: cache, events: events, sales: sales, stock: stock}
}

func (e *testEnv) seed(t *testing.T, id int64, qty int) {
	t.Helper()
	_, err := e.stock.AdjustStock(context.Background(), id, qty, "seed")
	require.NoError(t, err)
}

// drain returns the events queued so far.
func (e *testEnv) drain() []domain.Event {
	var out []domain.Event
	for {
		select {
		case ev := <-e.events.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

// mockCache is a hand-written CacheRepository with switchable failures.
type mockCache struct {
	mu       sync.Mutex
	locked   map[string]bool
	results  map[string]domain.Sale
	lockBusy bool
	releases int
}

func newMockCache() *mockCache {
	return &mockCache{locked: make(map[string]bool), results: make(map[string]domain.Sale)}
}

func (m *mockCache) AcquireSaleLock(ctx context.Context, saleID string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lockBusy || m.locked[saleID] {
		return "", false, nil
	}
	m.locked[saleID] = true
	return "token-" + saleID, true, nil
}

func (m *mockCache) ReleaseSaleLock(ctx context.Context, saleID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token == "token-"+saleID {
		delete(m.locked, saleID)
		m.releases++
	}
	return nil
}

func (m *mockCache) GetSaleResult(ctx context.Context, saleID string) (*domain.Sale, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.results[saleID]
	if !ok {
		return nil, false, nil
	}
	return &s, true, nil
}

func (m *mockCache) SetSaleResult(ctx context.Context, sale domain.Sale, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[sale.SaleID] = sale
	return nil
}

// conflictingDB fails the first n transactions with a version conflict.
type conflictingDB struct {
	*storage.MemoryAdapter
	remaining atomic.Int32
	attempts  atomic.Int32
}

func (c *conflictingDB) WithinTx(ctx context.Context, fn func(r port.TxRepos) error) error {
	c.attempts.Add(1)
	if c.remaining.Add(-1) >= 0 {
		return domain.ErrVersionConflict
	}
	return c.MemoryAdapter.WithinTx(ctx, fn)
}
