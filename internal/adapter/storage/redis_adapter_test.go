package storage

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestRedisAdapter(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	saleID := "test-" + uuid.NewString()
	defer client.Del(context.Background(), saleLockKeyPrefix+saleID, saleResultKeyPrefix+saleID)

	testCache(t, NewRedisAdapter(client), saleID)
}

func TestRedisAdapter_ConcurrentLock(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	saleID := "test-" + uuid.NewString()
	defer client.Del(ctx, saleLockKeyPrefix+saleID)

	var acquired atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := adapter.AcquireSaleLock(ctx, saleID, time.Minute)
			if err == nil && ok {
				acquired.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), acquired.Load())
}
