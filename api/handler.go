package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pdv_backend/internal/sales"
)

// salesHandler holds the sales service and implements HTTP handlers for sales operations.
type salesHandler struct {
	salesService *sales.Service
	logger       *zap.Logger
}

// NewSalesHandler creates a new sales handler.
func NewSalesHandler(salesService *sales.Service, logger *zap.Logger) *salesHandler {
	return &salesHandler{
		salesService: salesService,
		logger:       logger,
	}
}

type saleItemPayload struct {
	Codigo     string          `json:"codigo"`
	Nome       string          `json:"nome"`
	Quantidade decimal.Decimal `json:"quantidade"`
	Preco      decimal.Decimal `json:"preco"`
}

type createSaleRequest struct {
	Total          *decimal.Decimal  `json:"total"`
	ValorPago      *decimal.Decimal  `json:"valorPago"`
	Troco          *decimal.Decimal  `json:"troco"`
	FormaPagamento string            `json:"formaPagamento"`
	Itens          []saleItemPayload `json:"itens"`
}

// handleCreateSale handles the POST /api/sales endpoint.
func (h *salesHandler) handleCreateSale(ctx *gin.Context) {
	var req createSaleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("failed to bind JSON request", zap.Error(err))
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if len(req.Itens) == 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "itens must not be empty"})
		return
	}
	if req.ValorPago == nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "valorPago is required"})
		return
	}

	items := make([]sales.LineItem, 0, len(req.Itens))
	for _, it := range req.Itens {
		items = append(items, sales.LineItem{
			ProductCode: it.Codigo,
			ProductName: it.Nome,
			Quantity:    it.Quantidade,
			UnitPrice:   it.Preco,
		})
	}

	sale, err := h.salesService.RecordSale(ctx.Request.Context(), sales.NewSale{
		Items:          items,
		AmountTendered: *req.ValorPago,
		PaymentMethod:  req.FormaPagamento,
		ClientTotal:    req.Total,
		ClientChange:   req.Troco,
	})
	if err != nil {
		if errors.Is(err, sales.ErrValidation) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		requestLogger(ctx, h.logger).Error("failed to create sale", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create sale"})
		return
	}

	ctx.JSON(http.StatusCreated, sale)
}

// handleListSales handles GET /api/sales, optionally filtered by ?status=.
func (h *salesHandler) handleListSales(ctx *gin.Context) {
	status := ctx.Query("status")

	results, err := h.salesService.ListSales(ctx.Request.Context(), status)
	if err != nil {
		if errors.Is(err, sales.ErrInvalidStatus) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		requestLogger(ctx, h.logger).Error("error listing sales", zap.String("status_filter", status), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sales"})
		return
	}

	ctx.JSON(http.StatusOK, results)
}

func (h *salesHandler) handleSummary(ctx *gin.Context) {
	metadata, err := h.salesService.Summary(ctx.Request.Context())
	if err != nil {
		requestLogger(ctx, h.logger).Error("error computing sales summary", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute summary"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"metadata": metadata})
}

func (h *salesHandler) handleGetSale(ctx *gin.Context) {
	id, ok := saleIDParam(ctx)
	if !ok {
		return
	}

	sale, err := h.salesService.GetSale(ctx.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, sales.ErrNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": "sale not found"})
		default:
			requestLogger(ctx, h.logger).Error("error reading sale", zap.Int64("sale_id", id), zap.Error(err))
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	ctx.JSON(http.StatusOK, sale)
}

// saleIDParam parses the :id path parameter and answers 400 when it is not a
// positive integer.
func saleIDParam(ctx *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid sale id"})
		return 0, false
	}
	return id, true
}
