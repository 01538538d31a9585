package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"stock_monitor/controllers"
	"stock_monitor/middleware"
	"stock_monitor/services/monitor"
)

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, db *gorm.DB, orch *monitor.Orchestrator, rec *monitor.RecommendationUpdater) {
	stockController := controllers.NewStockController(db)
	monitorController := controllers.NewMonitorController(db, orch, rec)

	// API v1 group
	api := router.Group("/api/v1")
	{
		// Universe management
		stocks := api.Group("/stocks")
		{
			stocks.GET("", stockController.GetStocks)
			stocks.POST("", stockController.CreateStock)
			stocks.PATCH("/:symbol", stockController.UpdateStock)
			stocks.GET("/:symbol/history", stockController.GetStockHistory)
			stocks.GET("/:symbol/snapshot", monitorController.GetSnapshot)
		}

		// Pipeline control. Manual runs hit the provider for the whole
		// universe, so triggers are rate limited per client.
		runLimiter := middleware.NewRateLimiter(5, 15*time.Minute)
		mon := api.Group("/monitor")
		{
			mon.POST("/run", middleware.TriggerRateLimit(runLimiter), monitorController.RunMonitoring)
			mon.GET("/progress", monitorController.GetProgress)
		}

		// Alert log
		api.GET("/alerts", monitorController.GetAlerts)

		// Analyst recommendations
		api.POST("/recommendations/refresh", monitorController.RefreshRecommendations)
	}
}
