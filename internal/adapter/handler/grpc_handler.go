package handler

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/order-intake/internal/adapter/dto"
	"github.com/rl1809/order-intake/internal/core/domain"
	"github.com/rl1809/order-intake/internal/core/service"
)

type GRPCHandler struct {
	sales  *service.SaleService
	stock  *service.StockService
	logger *zap.Logger
}

var _ SaleServiceServer = (*GRPCHandler)(nil)

func NewGRPCHandler(sales *service.SaleService, stock *service.StockService, logger *zap.Logger) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCHandler{sales: sales, stock: stock, logger: logger}
}

func (h *GRPCHandler) CreateSale(ctx context.Context, req *CreateSaleRequest) (*SaleResponse, error) {
	items := make([]domain.LineRequest, len(req.Items))
	for i, item := range req.Items {
		items[i] = domain.LineRequest{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price}
	}

	result, err := h.sales.ApplySale(ctx, service.SaleRequest{
		SaleID:    req.SaleID,
		Timestamp: req.Timestamp,
		Items:     items,
	})
	if err != nil {
		return nil, h.toStatus(err)
	}

	message := "sale recorded"
	if result.Status == domain.SaleStatusAlreadyApplied {
		message = "sale already recorded"
	}
	return &SaleResponse{
		Status:  result.Status,
		Message: message,
		SaleDTO: dto.FromSale(result.Sale),
	}, nil
}

func (h *GRPCHandler) GetStock(ctx context.Context, req *GetStockRequest) (*dto.ProductDTO, error) {
	product, err := h.stock.GetStock(ctx, req.ProductID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	resp := dto.FromProduct(*product)
	return &resp, nil
}

func (h *GRPCHandler) AdjustStock(ctx context.Context, req *AdjustStockRequest) (*dto.AdjustmentDTO, error) {
	if req.ProductID == nil || req.Adjustment == nil {
		return nil, status.Error(codes.InvalidArgument, "product_id and adjustment are required")
	}

	adj, err := h.stock.AdjustStock(ctx, *req.ProductID, *req.Adjustment, req.Reason)
	if err != nil {
		return nil, h.toStatus(err)
	}
	resp := dto.FromAdjustment(*adj)
	return &resp, nil
}

func (h *GRPCHandler) ListPendingSales(ctx context.Context, _ *ListPendingSalesRequest) (*PendingSalesResponse, error) {
	sales, err := h.sales.ListPendingSales(ctx)
	if err != nil {
		return nil, h.toStatus(err)
	}

	resp := &PendingSalesResponse{Sales: make([]dto.SaleDTO, len(sales))}
	for i, s := range sales {
		resp.Sales[i] = dto.FromSale(s)
	}
	return resp, nil
}

func (h *GRPCHandler) toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrProductNotFound), errors.Is(err, domain.ErrSaleNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrStockConflict), errors.Is(err, domain.ErrSaleInFlight):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		h.logger.Error("grpc request failed", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
}
