package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pdv_backend/internal/fiscal"
	"pdv_backend/internal/sales"
)

type nfceHandler struct {
	fiscal *fiscal.Service
	logger *zap.Logger
}

// NewNFCeHandler creates the handler that triggers fiscal submissions.
func NewNFCeHandler(fiscalService *fiscal.Service, logger *zap.Logger) *nfceHandler {
	return &nfceHandler{fiscal: fiscalService, logger: logger}
}

// emitRequest is the body of POST /api/emitir-nfce. Only sale_id is used; the
// invoice is built from the persisted sale.
type emitRequest struct {
	SaleID json.Number `json:"sale_id"`
}

// handleEmit handles POST /api/emitir-nfce.
func (h *nfceHandler) handleEmit(ctx *gin.Context) {
	var req emitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("failed to bind JSON request", zap.Error(err))
		ctx.JSON(http.StatusBadRequest, gin.H{"status": "erro", "error": "invalid request payload"})
		return
	}
	if req.SaleID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"status": "erro", "error": "sale_id is required"})
		return
	}
	id, err := strconv.ParseInt(req.SaleID.String(), 10, 64)
	if err != nil || id <= 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"status": "erro", "error": "invalid sale_id"})
		return
	}

	h.emit(ctx, id)
}

// handleEmitForSale handles POST /api/sales/:id/nfce.
func (h *nfceHandler) handleEmitForSale(ctx *gin.Context) {
	id, ok := saleIDParam(ctx)
	if !ok {
		return
	}
	h.emit(ctx, id)
}

func (h *nfceHandler) emit(ctx *gin.Context, saleID int64) {
	receipt, err := h.fiscal.Submit(ctx.Request.Context(), saleID)
	if err == nil {
		ctx.JSON(http.StatusOK, gin.H{
			"status":    "autorizada",
			"message":   "NFC-e emitida!",
			"protocolo": receipt.Protocol,
			"numero":    receipt.Number,
		})
		return
	}

	var rejection *fiscal.RejectionError
	switch {
	case errors.Is(err, sales.ErrNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"status": "erro", "error": "sale not found"})
	case errors.Is(err, sales.ErrSubmissionInProgress):
		ctx.JSON(http.StatusConflict, gin.H{
			"status":  "processando",
			"message": "Emissão da NFC-e já em andamento para esta venda.",
		})
	case errors.As(err, &rejection):
		ctx.JSON(http.StatusBadRequest, gin.H{
			"status":   "rejeitada",
			"message":  "NFC-e rejeitada pela SEFAZ.",
			"detalhes": rejection.Error(),
		})
	default:
		requestLogger(ctx, h.logger).Error("nfce emission failed", zap.Int64("sale_id", saleID), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"status":   "erro",
			"message":  "Falha crítica no servidor ao tentar emitir NFC-e.",
			"detalhes": err.Error(),
		})
	}
}
