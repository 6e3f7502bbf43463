package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HTTP_PORT", "GRPC_PORT", "STORE_DRIVER", "SQLITE_PATH", "MYSQL_DSN", "DATABASE_URL",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "KAFKA_BROKERS", "KAFKA_TOPIC",
		"OTEL_ENDPOINT", "SALE_CONFLICT_RETRIES", "WORKER_COUNT", "QUEUE_SIZE",
		"IDEMPOTENCY_TTL_SECONDS", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddress())
	assert.Equal(t, ":50051", cfg.GRPCAddress())
	assert.Equal(t, StoreSQLite, cfg.StoreDriver)
	assert.Equal(t, 3, cfg.ConflictRetries)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, 1000, cfg.QueueSize)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/orders")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("SALE_CONFLICT_RETRIES", "0")
	t.Setenv("IDEMPOTENCY_TTL_SECONDS", "60")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorePostgres, cfg.StoreDriver)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 0, cfg.ConflictRetries)
	assert.Equal(t, time.Minute, cfg.IdempotencyTTL)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"non-numeric retries", "SALE_CONFLICT_RETRIES", "many"},
		{"negative retries", "SALE_CONFLICT_RETRIES", "-1"},
		{"zero workers", "WORKER_COUNT", "0"},
		{"unknown store", "STORE_DRIVER", "oracle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestValidateRequiresConnectionSettings(t *testing.T) {
	assert.Error(t, Config{StoreDriver: StoreMySQL}.Validate())
	assert.Error(t, Config{StoreDriver: StorePostgres}.Validate())
	assert.NoError(t, Config{StoreDriver: StoreMemory}.Validate())
	assert.NoError(t, Config{StoreDriver: StoreMySQL, MySQLDSN: "user:pw@tcp(localhost:3306)/orders"}.Validate())
}
