package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/order-intake/internal/adapter/dto"
	"github.com/rl1809/order-intake/internal/core/domain"
	"github.com/rl1809/order-intake/internal/core/service"
)

type HTTPHandler struct {
	sales  *service.SaleService
	stock  *service.StockService
	logger *zap.Logger
}

type SaleItemRequest struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type CreateSaleRequest struct {
	SaleID    string            `json:"sale_id"`
	Timestamp string            `json:"timestamp"`
	Items     []SaleItemRequest `json:"items"`
}

type SaleResponse struct {
	Status  domain.SaleStatus `json:"status"`
	Message string            `json:"message"`
	dto.SaleDTO
}

type RejectedSaleResponse struct {
	Status domain.SaleStatus `json:"status"`
	SaleID string            `json:"sale_id"`
	Reason string            `json:"reason"`
}

type AdjustStockRequest struct {
	ProductID  *int64 `json:"product_id"`
	Adjustment *int   `json:"adjustment"`
	Reason     string `json:"reason"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func NewHTTPHandler(sales *service.SaleService, stock *service.StockService, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{sales: sales, stock: stock, logger: logger}
}

// NewRouter wires the handler behind the standard middleware stack.
func NewRouter(h *HTTPHandler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/sales", func(r chi.Router) {
			r.Post("/", h.CreateSale)
			r.Get("/pending", h.ListPendingSales)
			r.Get("/{saleID}", h.GetSale)
		})

		r.Route("/stock", func(r chi.Router) {
			r.Post("/adjust", h.AdjustStock)
			r.Get("/{productID}", h.GetStock)
		})
	})

	return r
}

func (h *HTTPHandler) CreateSale(w http.ResponseWriter, r *http.Request) {
	var req CreateSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	items := make([]domain.LineRequest, len(req.Items))
	for i, item := range req.Items {
		items[i] = domain.LineRequest{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price}
	}

	result, err := h.sales.ApplySale(r.Context(), service.SaleRequest{
		SaleID:    req.SaleID,
		Timestamp: req.Timestamp,
		Items:     items,
	})
	if err != nil {
		status := statusFromError(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("create sale failed", zap.String("sale_id", req.SaleID), zap.Error(err))
		}
		writeJSON(w, status, RejectedSaleResponse{
			Status: domain.SaleStatusRejected,
			SaleID: req.SaleID,
			Reason: reasonFromError(err),
		})
		return
	}

	status, message := http.StatusCreated, "sale recorded"
	if result.Status == domain.SaleStatusAlreadyApplied {
		status, message = http.StatusOK, "sale already recorded"
	}
	writeJSON(w, status, SaleResponse{
		Status:  result.Status,
		Message: message,
		SaleDTO: dto.FromSale(result.Sale),
	})
}

func (h *HTTPHandler) GetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := h.sales.GetSale(r.Context(), chi.URLParam(r, "saleID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromSale(*sale))
}

func (h *HTTPHandler) ListPendingSales(w http.ResponseWriter, r *http.Request) {
	sales, err := h.sales.ListPendingSales(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := make([]dto.SaleDTO, len(sales))
	for i, s := range sales {
		resp[i] = dto.FromSale(s)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) GetStock(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid product id", err)
		return
	}

	product, err := h.stock.GetStock(r.Context(), productID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromProduct(*product))
}

func (h *HTTPHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req AdjustStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ProductID == nil || req.Adjustment == nil {
		writeError(w, http.StatusBadRequest, "product_id and adjustment are required", nil)
		return
	}

	adj, err := h.stock.AdjustStock(r.Context(), *req.ProductID, *req.Adjustment, req.Reason)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromAdjustment(*adj))
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeServiceError(w http.ResponseWriter, err error) {
	status := statusFromError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	writeError(w, status, reasonFromError(err), err)
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrProductNotFound), errors.Is(err, domain.ErrSaleNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrStockConflict), errors.Is(err, domain.ErrSaleInFlight):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// reasonFromError keeps internal failure detail out of responses.
func reasonFromError(err error) string {
	if statusFromError(err) == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil && status != http.StatusInternalServerError && err.Error() != message {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
