package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ksred/daigou-api/internal/orders"
	"github.com/ksred/daigou-api/pkg/middleware"
)

// NewRouter builds the gin engine with middleware and every API route
func NewRouter(handlers *orders.GinHandlers, limiter *middleware.RateLimiter) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(limiter.Middleware())

	setupRoutes(router, handlers)
	return router
}

// setupRoutes configures all API endpoints and their handlers:
// - Order routes: order entry and lookup
// - Buyer and summary routes: derived per-buyer figures
// - Rate routes: the session's default exchange rate
// - Export routes: spreadsheet download and saved exports
func setupRoutes(router *gin.Engine, handlers *orders.GinHandlers) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		orderRoutes := v1.Group("/orders")
		{
			orderRoutes.POST("", handlers.CreateOrderHandler())
			orderRoutes.GET("", handlers.ListOrdersHandler())
			orderRoutes.GET("/:order_id", handlers.GetOrderHandler())
		}

		v1.GET("/buyers/:buyer", handlers.BuyerTotalHandler())
		v1.GET("/summary", handlers.SummaryHandler())

		v1.GET("/rate", handlers.GetRateHandler())
		v1.PUT("/rate", handlers.SetRateHandler())

		v1.GET("/export", handlers.DownloadExportHandler())
		v1.POST("/exports", handlers.SaveExportHandler())
		v1.GET("/exports", handlers.ListExportsHandler())
	}
}
