package port

import (
	"context"
	"time"

	"github.com/rl1809/order-intake/internal/core/domain"
)

type CacheRepository interface {
	// AcquireSaleLock takes the idempotency lock for saleID, returns false if
	// another request holds it. The returned token releases it.
	AcquireSaleLock(ctx context.Context, saleID string, ttl time.Duration) (token string, ok bool, err error)

	// ReleaseSaleLock drops the lock only if it is still held by token
	ReleaseSaleLock(ctx context.Context, saleID, token string) error

	// GetSaleResult returns a committed sale cached by SetSaleResult
	GetSaleResult(ctx context.Context, saleID string) (*domain.Sale, bool, error)

	SetSaleResult(ctx context.Context, sale domain.Sale, ttl time.Duration) error
}
