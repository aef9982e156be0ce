package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pdv_backend/internal/catalog"
	"pdv_backend/internal/fiscal"
	"pdv_backend/internal/sales"
)

// Services groups the domain services exposed over HTTP.
type Services struct {
	Catalog *catalog.Service
	Sales   *sales.Service
	Fiscal  *fiscal.Service
}

// NewRouter builds a gin engine with request ids, access logging and panic
// recovery, and registers every route.
func NewRouter(services Services, logger *zap.Logger) *gin.Engine {
	e := gin.New()
	e.Use(RequestID(), AccessLog(logger), gin.Recovery())
	InitRoutes(e, services, logger)
	return e
}

// InitRoutes registers the catalog, sales and NFC-e endpoints on the given Gin
// engine.
func InitRoutes(e *gin.Engine, services Services, logger *zap.Logger) {
	productsHandler := NewProductsHandler(services.Catalog, logger)
	salesHandler := NewSalesHandler(services.Sales, logger)
	nfceHandler := NewNFCeHandler(services.Fiscal, logger)

	e.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Servidor do PDV está a funcionar!")
	})
	e.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	products := e.Group("/api/products")
	products.GET("", productsHandler.handleListProducts)
	products.POST("", productsHandler.handleCreateProduct)
	products.GET("/:codigo", productsHandler.handleGetProduct)
	products.PUT("/:codigo", productsHandler.handleUpdateProduct)
	products.DELETE("/:codigo", productsHandler.handleDeleteProduct)

	salesGroup := e.Group("/api/sales")
	salesGroup.POST("", salesHandler.handleCreateSale)
	salesGroup.GET("", salesHandler.handleListSales)
	salesGroup.GET("/summary", salesHandler.handleSummary)
	salesGroup.GET("/:id", salesHandler.handleGetSale)
	salesGroup.POST("/:id/nfce", nfceHandler.handleEmitForSale)

	e.POST("/api/emitir-nfce", nfceHandler.handleEmit)
}
