package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/order-intake/internal/adapter/handler"
	"github.com/rl1809/order-intake/internal/adapter/messaging"
	"github.com/rl1809/order-intake/internal/adapter/storage"
	"github.com/rl1809/order-intake/internal/config"
	"github.com/rl1809/order-intake/internal/core/service"
	"github.com/rl1809/order-intake/internal/observability"
	"github.com/rl1809/order-intake/internal/port"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.HTTPPort, "http-port", cfg.HTTPPort, "HTTP server port")
	flag.StringVar(&cfg.GRPCPort, "grpc-port", cfg.GRPCPort, "gRPC server port")
	flag.StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "storage engine: memory, sqlite, mysql or postgres")
	flag.StringVar(&cfg.SQLitePath, "db", cfg.SQLitePath, "SQLite database path, \":memory:\" for a throwaway database")
	origins := flag.String("cors-origins", "*", "comma separated allowed CORS origins")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, strings.Split(*origins, ","), logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg config.Config, origins []string, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OtelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("storage ready", zap.String("driver", cfg.StoreDriver))

	cache, closeCache, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	var publisher port.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = messaging.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		logger.Info("publishing events to kafka",
			zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	} else {
		publisher = messaging.NewLogPublisher(logger.Named("events"))
	}
	defer publisher.Close()

	events := service.NewEventQueue(cfg.QueueSize, logger)
	workers := service.StartWorkers(cfg.WorkerCount, events, publisher, logger)
	logger.Info("started event workers", zap.Int("count", cfg.WorkerCount))

	saleCfg := service.DefaultSaleConfig()
	saleCfg.MaxConflictRetries = cfg.ConflictRetries
	saleCfg.ResultTTL = cfg.IdempotencyTTL

	sales := service.NewSaleService(db, cache, events, saleCfg, logger)
	stock := service.NewStockService(db, events, cfg.ConflictRetries, logger)

	grpcServer := handler.NewGRPCServer(logger)
	handler.RegisterSaleServiceServer(grpcServer, handler.NewGRPCHandler(sales, stock, logger))

	lis, err := net.Listen("tcp", cfg.GRPCAddress())
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddress()))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddress(),
		Handler:      handler.NewRouter(handler.NewHTTPHandler(sales, stock, logger), origins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddress()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server forced to shutdown", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	events.Close()
	workers.Wait()
	logger.Info("event workers stopped")

	return nil
}

func openStore(ctx context.Context, cfg config.Config) (port.DatabaseRepository, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return storage.NewMemoryAdapter(), nil
	case config.StoreSQLite:
		return storage.OpenSQLite(ctx, cfg.SQLitePath)
	case config.StoreMySQL:
		return storage.OpenMySQL(ctx, cfg.MySQLDSN)
	case config.StorePostgres:
		return storage.OpenPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// openCache uses Redis when an address is configured so the idempotency lock
// holds across instances; otherwise the lock is process local.
func openCache(ctx context.Context, cfg config.Config) (port.CacheRepository, func() error, error) {
	if cfg.RedisAddr == "" {
		return storage.NewMemoryCache(), func() error { return nil }, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: 100,
	})
	adapter := storage.NewRedisAdapter(rdb)
	if err := adapter.Ping(ctx); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return adapter, adapter.Close, nil
}
