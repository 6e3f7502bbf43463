package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/order-intake/internal/core/domain"
	"github.com/rl1809/order-intake/internal/port"
)

const tracerName = "github.com/rl1809/order-intake/internal/core/service"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	domain.DateLayout,
}

type SaleConfig struct {
	// MaxConflictRetries bounds how many times a sale is redriven after a
	// version conflict. Zero aborts on the first conflict.
	MaxConflictRetries int
	LockTTL            time.Duration
	ResultTTL          time.Duration
}

func DefaultSaleConfig() SaleConfig {
	return SaleConfig{
		MaxConflictRetries: 3,
		LockTTL:            30 * time.Second,
		ResultTTL:          24 * time.Hour,
	}
}

type SaleRequest struct {
	SaleID    string
	Timestamp string
	Items     []domain.LineRequest
}

// SaleService applies sales against the stock ledger. Each sale is applied at
// most once and either fully or not at all.
type SaleService struct {
	db        port.DatabaseRepository
	cache     port.CacheRepository
	events    *EventQueue
	scheduler BackorderScheduler
	cfg       SaleConfig
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

func NewSaleService(db port.DatabaseRepository, cache port.CacheRepository, events *EventQueue, cfg SaleConfig, logger *zap.Logger) *SaleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SaleService{
		db:        db,
		cache:     cache,
		events:    events,
		scheduler: DailyUnitScheduler{},
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
	}
}

// ApplySale runs the full intake flow for one request.
func (s *SaleService) ApplySale(ctx context.Context, req SaleRequest) (*domain.SaleResult, error) {
	ctx, span := s.tracer.Start(ctx, "sale.apply")
	defer span.End()
	span.SetAttributes(
		attribute.String("sale.id", req.SaleID),
		attribute.Int("sale.lines", len(req.Items)),
	)

	result, err := s.applySale(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("sale.status", string(result.Status)))
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (s *SaleService) applySale(ctx context.Context, req SaleRequest) (*domain.SaleResult, error) {
	saleID := strings.TrimSpace(req.SaleID)
	if saleID == "" {
		return nil, &domain.ValidationError{Field: "sale_id", Message: "required"}
	}

	if sale, err := s.findApplied(ctx, saleID); err != nil {
		return nil, err
	} else if sale != nil {
		return &domain.SaleResult{Status: domain.SaleStatusAlreadyApplied, Sale: *sale}, nil
	}

	ts, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	token, ok, err := s.cache.AcquireSaleLock(ctx, saleID, s.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("idempotency lock failed: %w", err)
	}
	if !ok {
		return nil, domain.ErrSaleInFlight
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := s.cache.ReleaseSaleLock(releaseCtx, saleID, token); err != nil {
			s.logger.Warn("failed to release sale lock", zap.String("sale_id", saleID), zap.Error(err))
		}
	}()

	total := domain.SaleTotal(req.Items)

	var sale domain.Sale
	for attempt := 0; ; attempt++ {
		sale, err = s.applyOnce(ctx, saleID, ts, total, req.Items)
		if err == nil {
			break
		}
		if errors.Is(err, domain.ErrSaleExists) {
			existing, getErr := s.db.GetSale(ctx, saleID)
			if getErr != nil {
				return nil, fmt.Errorf("load existing sale: %w", getErr)
			}
			return &domain.SaleResult{Status: domain.SaleStatusAlreadyApplied, Sale: *existing}, nil
		}
		if domain.IsRetryable(err) && attempt < s.cfg.MaxConflictRetries {
			s.logger.Info("retrying sale after conflict",
				zap.String("sale_id", saleID), zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}
		s.logger.Info("sale aborted", zap.String("sale_id", saleID), zap.Error(err))
		return nil, err
	}

	if err := s.cache.SetSaleResult(ctx, sale, s.cfg.ResultTTL); err != nil {
		s.logger.Warn("failed to cache sale result", zap.String("sale_id", saleID), zap.Error(err))
	}
	s.events.Enqueue(ctx, domain.NewSaleCommittedEvent(sale, s.now().UTC()))

	s.logger.Info("sale committed",
		zap.String("sale_id", saleID),
		zap.String("total", sale.Total.String()),
		zap.Int("lines", len(sale.Items)))

	return &domain.SaleResult{Status: domain.SaleStatusCreated, Sale: sale}, nil
}

// applyOnce is one read-decide-write cycle inside a single transaction.
func (s *SaleService) applyOnce(ctx context.Context, saleID string, ts time.Time, total decimal.Decimal, lines []domain.LineRequest) (domain.Sale, error) {
	sale := domain.Sale{
		SaleID:    saleID,
		Timestamp: ts.UTC(),
		Total:     total,
	}

	err := s.db.WithinTx(ctx, func(r port.TxRepos) error {
		if err := r.Sales().InsertSale(ctx, sale); err != nil {
			return err
		}

		items := make([]domain.SaleLineItem, 0, len(lines))
		for i, line := range lines {
			product, err := r.Ledger().GetProduct(ctx, line.ProductID)
			if err != nil {
				return &domain.LineError{LineNo: i + 1, ProductID: line.ProductID, Err: err}
			}

			immediate := min(product.QuantityOnHand, line.Quantity)
			deliveries := s.scheduler.Schedule(line.Quantity-immediate, ts)

			if err := r.Ledger().ConditionalDecrement(ctx, product.ID, immediate, product.Version); err != nil {
				return &domain.LineError{LineNo: i + 1, ProductID: line.ProductID, Err: err}
			}

			items = append(items, domain.SaleLineItem{
				LineNo:            i + 1,
				ProductID:         line.ProductID,
				Quantity:          line.Quantity,
				Price:             line.Price,
				ImmediateQuantity: immediate,
				FutureDeliveries:  deliveries,
			})
		}

		if err := r.Sales().InsertLineItems(ctx, saleID, items); err != nil {
			return err
		}
		sale.Items = items
		return nil
	})
	if err != nil {
		return domain.Sale{}, err
	}
	return sale, nil
}

// findApplied returns the committed sale for saleID, or nil if there is none.
func (s *SaleService) findApplied(ctx context.Context, saleID string) (*domain.Sale, error) {
	if sale, ok, err := s.cache.GetSaleResult(ctx, saleID); err != nil {
		s.logger.Warn("sale result cache lookup failed", zap.String("sale_id", saleID), zap.Error(err))
	} else if ok {
		return sale, nil
	}

	exists, err := s.db.SaleExists(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !exists {
		return nil, nil
	}

	sale, err := s.db.GetSale(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("load existing sale: %w", err)
	}
	return sale, nil
}

func (s *SaleService) validate(req SaleRequest) (time.Time, error) {
	if len(req.Items) == 0 {
		return time.Time{}, &domain.ValidationError{Field: "items", Message: "at least one item is required"}
	}
	for i, item := range req.Items {
		field := fmt.Sprintf("items[%d]", i)
		if item.ProductID <= 0 {
			return time.Time{}, &domain.ValidationError{Field: field + ".product_id", Message: "must be positive"}
		}
		if item.Quantity <= 0 {
			return time.Time{}, &domain.ValidationError{Field: field + ".quantity", Message: "must be positive"}
		}
		if item.Quantity > domain.MaxLineQuantity {
			return time.Time{}, &domain.ValidationError{
				Field:   field + ".quantity",
				Message: fmt.Sprintf("must not exceed %d", domain.MaxLineQuantity),
			}
		}
		if item.Price.IsNegative() {
			return time.Time{}, &domain.ValidationError{Field: field + ".price", Message: "must not be negative"}
		}
	}
	return s.parseTimestamp(req.Timestamp)
}

func (s *SaleService) parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.now().UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, &domain.ValidationError{Field: "timestamp", Message: fmt.Sprintf("unrecognized format %q", raw)}
}

func (s *SaleService) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	return s.db.GetSale(ctx, saleID)
}

// ListPendingSales returns every committed sale with its fulfillment detail.
func (s *SaleService) ListPendingSales(ctx context.Context) ([]domain.Sale, error) {
	return s.db.ListSales(ctx)
}
