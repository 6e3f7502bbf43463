package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/order-intake/internal/adapter/messaging"
	"github.com/rl1809/order-intake/internal/adapter/storage"
	"github.com/rl1809/order-intake/internal/core/domain"
	"github.com/rl1809/order-intake/internal/core/service"
	"github.com/rl1809/order-intake/internal/port"
)

const productID int64 = 1

func main() {
	store := flag.String("store", "memory", "storage engine: memory or sqlite")
	totalRequests := flag.Int("requests", 50, "number of distinct sales")
	initialStock := flag.Int("stock", 20, "initial quantity on hand")
	retries := flag.Int("retries", 10, "conflict retries per sale")
	flag.Parse()

	ctx := context.Background()

	db, err := openStore(ctx, *store)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer db.Close()

	events := service.NewEventQueue(*totalRequests*2+1, nil)
	workers := service.StartWorkers(2, events, messaging.NewLogPublisher(nil), nil)

	cfg := service.DefaultSaleConfig()
	cfg.MaxConflictRetries = *retries
	sales := service.NewSaleService(db, storage.NewMemoryCache(), events, cfg, nil)
	stock := service.NewStockService(db, events, *retries, nil)

	if _, err := stock.AdjustStock(ctx, productID, *initialStock, "stress test seed"); err != nil {
		log.Fatalf("failed to seed stock: %v", err)
	}

	var created, duplicates, inFlight, aborted atomic.Int32
	var immediateTotal atomic.Int64

	// every sale is submitted twice concurrently
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		saleID := uuid.NewString()
		for range 2 {
			wg.Add(1)
			go func() {
				defer wg.Done()

				result, err := sales.ApplySale(ctx, service.SaleRequest{
					SaleID: saleID,
					Items:  []domain.LineRequest{{ProductID: productID, Quantity: 1, Price: decimal.NewFromInt(10)}},
				})
				switch {
				case errors.Is(err, domain.ErrSaleInFlight):
					inFlight.Add(1)
				case err != nil:
					aborted.Add(1)
				case result.Status == domain.SaleStatusAlreadyApplied:
					duplicates.Add(1)
				default:
					created.Add(1)
					immediateTotal.Add(int64(result.Sale.Items[0].ImmediateQuantity))
				}
			}()
		}
	}

	wg.Wait()
	elapsed := time.Since(start)

	events.Close()
	workers.Wait()

	product, err := db.GetProduct(ctx, productID)
	if err != nil {
		log.Fatalf("failed to read final stock: %v", err)
	}
	committed, err := db.ListSales(ctx)
	if err != nil {
		log.Fatalf("failed to list sales: %v", err)
	}

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Store:            %s\n", *store)
	fmt.Printf("Initial Stock:    %d\n", *initialStock)
	fmt.Printf("Distinct Sales:   %d\n", *totalRequests)
	fmt.Printf("Created:          %d\n", created.Load())
	fmt.Printf("Already Applied:  %d\n", duplicates.Load())
	fmt.Printf("In Flight:        %d\n", inFlight.Load())
	fmt.Printf("Aborted:          %d\n", aborted.Load())
	fmt.Printf("Committed Sales:  %d\n", len(committed))
	fmt.Printf("Final Stock:      %d\n", product.QuantityOnHand)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	failed := false
	if int(created.Load()) != len(committed) {
		fmt.Printf("FAIL: %d sales reported created but %d committed\n", created.Load(), len(committed))
		failed = true
	}
	if product.QuantityOnHand < 0 {
		fmt.Printf("FAIL: negative stock %d\n", product.QuantityOnHand)
		failed = true
	}
	if shipped := int64(*initialStock - product.QuantityOnHand); shipped != immediateTotal.Load() {
		fmt.Printf("FAIL: stock dropped by %d but %d units shipped immediately\n", shipped, immediateTotal.Load())
		failed = true
	}
	if failed {
		os.Exit(1)
	}
	fmt.Println("PASS: no oversell, no sale applied twice")
}

func openStore(ctx context.Context, store string) (port.DatabaseRepository, error) {
	switch store {
	case "memory":
		return storage.NewMemoryAdapter(), nil
	case "sqlite":
		dir, err := os.MkdirTemp("", "order-intake-stress")
		if err != nil {
			return nil, err
		}
		return storage.OpenSQLite(ctx, filepath.Join(dir, "stress.db"))
	default:
		return nil, fmt.Errorf("unsupported store %q", store)
	}
}
