package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/order-intake/internal/core/domain"
	"github.com/rl1809/order-intake/internal/port"
)

// StockService serves stock queries and administrative adjustments.
// Adjustments go through the same version check as sales so they cannot
// silently overwrite a concurrent decrement.
type StockService struct {
	db         port.DatabaseRepository
	events     *EventQueue
	maxRetries int
	logger     *zap.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

func NewStockService(db port.DatabaseRepository, events *EventQueue, maxRetries int, logger *zap.Logger) *StockService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockService{
		db:         db,
		events:     events,
		maxRetries: maxRetries,
		logger:     logger,
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
	}
}

func (s *StockService) GetStock(ctx context.Context, productID int64) (*domain.Product, error) {
	if productID <= 0 {
		return nil, &domain.ValidationError{Field: "product_id", Message: "must be positive"}
	}
	return s.db.GetProduct(ctx, productID)
}

// AdjustStock adds delta to the product, creating it with max(0, delta) when
// it does not exist yet.
func (s *StockService) AdjustStock(ctx context.Context, productID int64, delta int, reason string) (*domain.StockAdjustment, error) {
	ctx, span := s.tracer.Start(ctx, "stock.adjust")
	defer span.End()
	span.SetAttributes(attribute.Int64("product.id", productID), attribute.Int("stock.delta", delta))

	if productID <= 0 {
		err := &domain.ValidationError{Field: "product_id", Message: "must be positive"}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if delta > domain.MaxStockQuantity || delta < -domain.MaxStockQuantity {
		err := &domain.ValidationError{
			Field:   "adjustment",
			Message: fmt.Sprintf("must be within ±%d", domain.MaxStockQuantity),
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = domain.DefaultAdjustmentReason
	}

	var (
		adj domain.StockAdjustment
		err error
	)
	for attempt := 0; ; attempt++ {
		adj, err = s.adjustOnce(ctx, productID, delta, reason)
		if err == nil {
			break
		}
		if domain.IsRetryable(err) && attempt < s.maxRetries {
			s.logger.Info("retrying stock adjustment after conflict",
				zap.Int64("product_id", productID), zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.events.Enqueue(ctx, domain.NewStockAdjustedEvent(adj))
	s.logger.Info("stock adjusted",
		zap.Int64("product_id", productID),
		zap.Int("delta", delta),
		zap.Int("quantity_on_hand", adj.QuantityAfter),
		zap.String("reason", reason))

	span.SetStatus(codes.Ok, "")
	return &adj, nil
}

func (s *StockService) adjustOnce(ctx context.Context, productID int64, delta int, reason string) (domain.StockAdjustment, error) {
	adj := domain.StockAdjustment{
		ProductID: productID,
		Delta:     delta,
		Reason:    reason,
		CreatedAt: s.now().UTC(),
	}

	err := s.db.WithinTx(ctx, func(r port.TxRepos) error {
		product, err := r.Ledger().GetProduct(ctx, productID)
		switch {
		case errors.Is(err, domain.ErrProductNotFound):
			created := domain.NewProduct(productID, delta)
			if err := r.Ledger().CreateProduct(ctx, created); err != nil {
				return err
			}
			adj.QuantityAfter = created.QuantityOnHand
		case err != nil:
			return err
		default:
			after := product.QuantityOnHand + delta
			if after < 0 {
				return domain.ErrInsufficientStock
			}
			if after > domain.MaxStockQuantity {
				return &domain.ValidationError{
					Field:   "adjustment",
					Message: fmt.Sprintf("quantity on hand would exceed %d", domain.MaxStockQuantity),
				}
			}
			if err := r.Ledger().ConditionalAdjust(ctx, productID, delta, product.Version); err != nil {
				return err
			}
			adj.QuantityAfter = after
		}
		return r.Ledger().RecordAdjustment(ctx, adj)
	})
	if err != nil {
		return domain.StockAdjustment{}, err
	}
	return adj, nil
}

func (s *StockService) ListAdjustments(ctx context.Context, productID int64) ([]domain.StockAdjustment, error) {
	return s.db.ListAdjustments(ctx, productID)
}
