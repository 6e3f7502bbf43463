package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/rl1809/order-intake/internal/adapter/dto"
)

// The SaleService messages are plain JSON documents, the same shapes the HTTP
// API uses. Clients select the codec with grpc.CallContentSubtype(CodecName).
const (
	CodecName         = "json"
	SaleServiceName   = "orderintake.v1.SaleService"
	createSaleMethod  = "/" + SaleServiceName + "/CreateSale"
	getStockMethod    = "/" + SaleServiceName + "/GetStock"
	adjustStockMethod = "/" + SaleServiceName + "/AdjustStock"
	listPendingMethod = "/" + SaleServiceName + "/ListPendingSales"
)

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type GetStockRequest struct {
	ProductID int64 `json:"product_id"`
}

type ListPendingSalesRequest struct{}

type PendingSalesResponse struct {
	Sales []dto.SaleDTO `json:"sales"`
}

type SaleServiceServer interface {
	CreateSale(context.Context, *CreateSaleRequest) (*SaleResponse, error)
	GetStock(context.Context, *GetStockRequest) (*dto.ProductDTO, error)
	AdjustStock(context.Context, *AdjustStockRequest) (*dto.AdjustmentDTO, error)
	ListPendingSales(context.Context, *ListPendingSalesRequest) (*PendingSalesResponse, error)
}

func RegisterSaleServiceServer(s grpc.ServiceRegistrar, srv SaleServiceServer) {
	s.RegisterService(&saleServiceDesc, srv)
}

// unaryHandler adapts one typed method to the grpc.MethodDesc handler shape.
func unaryHandler[Req any, Resp any](fullMethod string, call func(SaleServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SaleServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(SaleServiceServer), ctx, req.(*Req))
		})
	}
}

var saleServiceDesc = grpc.ServiceDesc{
	ServiceName: SaleServiceName,
	HandlerType: (*SaleServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateSale", Handler: unaryHandler(createSaleMethod, SaleServiceServer.CreateSale)},
		{MethodName: "GetStock", Handler: unaryHandler(getStockMethod, SaleServiceServer.GetStock)},
		{MethodName: "AdjustStock", Handler: unaryHandler(adjustStockMethod, SaleServiceServer.AdjustStock)},
		{MethodName: "ListPendingSales", Handler: unaryHandler(listPendingMethod, SaleServiceServer.ListPendingSales)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "orderintake/v1/sale_service",
}

// SaleServiceClient calls a SaleService over any client connection.
type SaleServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSaleServiceClient(cc grpc.ClientConnInterface) *SaleServiceClient {
	return &SaleServiceClient{cc: cc}
}

func (c *SaleServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *SaleServiceClient) CreateSale(ctx context.Context, in *CreateSaleRequest, opts ...grpc.CallOption) (*SaleResponse, error) {
	out := new(SaleResponse)
	if err := c.invoke(ctx, createSaleMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SaleServiceClient) GetStock(ctx context.Context, in *GetStockRequest, opts ...grpc.CallOption) (*dto.ProductDTO, error) {
	out := new(dto.ProductDTO)
	if err := c.invoke(ctx, getStockMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SaleServiceClient) AdjustStock(ctx context.Context, in *AdjustStockRequest, opts ...grpc.CallOption) (*dto.AdjustmentDTO, error) {
	out := new(dto.AdjustmentDTO)
	if err := c.invoke(ctx, adjustStockMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SaleServiceClient) ListPendingSales(ctx context.Context, in *ListPendingSalesRequest, opts ...grpc.CallOption) (*PendingSalesResponse, error) {
	out := new(PendingSalesResponse)
	if err := c.invoke(ctx, listPendingMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// NewGRPCServer builds a server whose unary calls are logged and never crash
// the process on a handler panic.
func NewGRPCServer(logger *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = append(opts, grpc.ChainUnaryInterceptor(
		LoggingInterceptor(logger),
		RecoveryInterceptor(logger),
	))
	return grpc.NewServer(opts...)
}

// RecoveryInterceptor turns a handler panic into codes.Internal.
func RecoveryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return recovery.UnaryServerInterceptor(recovery.WithRecoveryHandlerContext(
		func(ctx context.Context, p any) error {
			logger.Error("grpc handler panicked", zap.Any("panic", p), zap.Stack("stack"))
			return status.Error(codes.Internal, "internal error")
		},
	))
}

// LoggingInterceptor logs every unary call with its outcome code.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)))
		return resp, err
	}
}
