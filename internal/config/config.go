package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StoreMySQL    = "mysql"
	StorePostgres = "postgres"
)

type Config struct {
	HTTPPort string
	GRPCPort string

	StoreDriver string
	SQLitePath  string
	MySQLDSN    string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers []string
	KafkaTopic   string

	OtelEndpoint string
	LogLevel     string

	ConflictRetries int
	WorkerCount     int
	QueueSize       int
	IdempotencyTTL  time.Duration
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present; real environment variables
// win over it.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPPort:      getEnv("HTTP_PORT", "8080"),
		GRPCPort:      getEnv("GRPC_PORT", "50051"),
		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", StoreSQLite)),
		SQLitePath:    getEnv("SQLITE_PATH", "order_intake.db"),
		MySQLDSN:      os.Getenv("MYSQL_DSN"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		KafkaBrokers:  splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "order-intake.events"),
		OtelEndpoint:  os.Getenv("OTEL_ENDPOINT"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.RedisDB, err = getInt("REDIS_DB", 0, 0); err != nil {
		return Config{}, err
	}
	if cfg.ConflictRetries, err = getInt("SALE_CONFLICT_RETRIES", 3, 0); err != nil {
		return Config{}, err
	}
	if cfg.WorkerCount, err = getInt("WORKER_COUNT", 4, 1); err != nil {
		return Config{}, err
	}
	if cfg.QueueSize, err = getInt("QUEUE_SIZE", 1000, 1); err != nil {
		return Config{}, err
	}
	ttl, err := getInt("IDEMPOTENCY_TTL_SECONDS", 86400, 1)
	if err != nil {
		return Config{}, err
	}
	cfg.IdempotencyTTL = time.Duration(ttl) * time.Second

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the selected store has what it needs to connect.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	case StoreMySQL:
		if c.MySQLDSN == "" {
			return fmt.Errorf("MYSQL_DSN is required for the mysql store")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	return nil
}

func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%s", c.HTTPPort)
}

func (c Config) GRPCAddress() string {
	return fmt.Sprintf(":%s", c.GRPCPort)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getInt(key string, fallback, minValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if v < minValue {
		return 0, fmt.Errorf("%s must be at least %d, got %d", key, minValue, v)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
