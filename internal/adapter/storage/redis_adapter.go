package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/order-intake/internal/adapter/dto"
	"github.com/rl1809/order-intake/internal/core/domain"
)

const (
	saleLockKeyPrefix   = "sale:lock:"
	saleResultKeyPrefix = "sale:result:"
)

// releaseLockScript deletes the lock only when the caller still owns it, so a
// request whose lock expired cannot drop a lock taken by someone else.
var releaseLockScript = redis.NewScript(`
local key = KEYS[1]
local token = ARGV[1]

if redis.call('GET', key) == token then
	return redis.call('DEL', key)
end

return 0
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) AcquireSaleLock(ctx context.Context, saleID string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, saleLockKeyPrefix+saleID, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (r *RedisAdapter) ReleaseSaleLock(ctx context.Context, saleID, token string) error {
	return releaseLockScript.Run(ctx, r.client, []string{saleLockKeyPrefix + saleID}, token).Err()
}

func (r *RedisAdapter) GetSaleResult(ctx context.Context, saleID string) (*domain.Sale, bool, error) {
	val, err := r.client.Get(ctx, saleResultKeyPrefix+saleID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var cached dto.SaleDTO
	if err := json.Unmarshal(val, &cached); err != nil {
		return nil, false, err
	}
	sale, err := cached.ToSale()
	if err != nil {
		return nil, false, err
	}
	return &sale, true, nil
}

func (r *RedisAdapter) SetSaleResult(ctx context.Context, sale domain.Sale, ttl time.Duration) error {
	payload, err := json.Marshal(dto.FromSale(sale))
	if err != nil {
		return err
	}
	return r.client.Set(ctx, saleResultKeyPrefix+sale.SaleID, payload, ttl).Err()
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisAdapter) Close() error {
	return r.client.Close()
}
