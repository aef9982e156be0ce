package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pdv_backend/internal/catalog"
)

type productsHandler struct {
	catalog *catalog.Service
	logger  *zap.Logger
}

// NewProductsHandler creates the catalog handler.
func NewProductsHandler(catalogService *catalog.Service, logger *zap.Logger) *productsHandler {
	return &productsHandler{catalog: catalogService, logger: logger}
}

type productPayload struct {
	Codigo string          `json:"codigo"`
	Nome   string          `json:"nome"`
	Preco  decimal.Decimal `json:"preco"`
}

func (h *productsHandler) handleListProducts(ctx *gin.Context) {
	products, err := h.catalog.List(ctx.Request.Context())
	if err != nil {
		requestLogger(ctx, h.logger).Error("error listing products", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list products"})
		return
	}
	ctx.JSON(http.StatusOK, products)
}

func (h *productsHandler) handleGetProduct(ctx *gin.Context) {
	product, err := h.catalog.Get(ctx.Request.Context(), ctx.Param("codigo"))
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, product)
}

func (h *productsHandler) handleCreateProduct(ctx *gin.Context) {
	var req productPayload
	if err := ctx.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("failed to bind JSON request", zap.Error(err))
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	product, err := h.catalog.Create(ctx.Request.Context(), catalog.Product{Code: req.Codigo, Name: req.Nome, UnitPrice: req.Preco})
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, product)
}

func (h *productsHandler) handleUpdateProduct(ctx *gin.Context) {
	var req productPayload
	if err := ctx.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("failed to bind JSON request", zap.Error(err))
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	product, err := h.catalog.Update(ctx.Request.Context(), catalog.Product{Code: ctx.Param("codigo"), Name: req.Nome, UnitPrice: req.Preco})
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, product)
}

func (h *productsHandler) handleDeleteProduct(ctx *gin.Context) {
	if err := h.catalog.Delete(ctx.Request.Context(), ctx.Param("codigo")); err != nil {
		h.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "product deleted"})
}

func (h *productsHandler) respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, catalog.ErrValidation):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, catalog.ErrNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
	case errors.Is(err, catalog.ErrDuplicateKey):
		ctx.JSON(http.StatusConflict, gin.H{"error": "product code already exists"})
	default:
		requestLogger(ctx, h.logger).Error("catalog operation failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
