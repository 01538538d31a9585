package controllers

import (
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"stock_monitor/models"
	"stock_monitor/services/monitor"
)

// MonitorController handles monitoring pipeline requests
type MonitorController struct {
	db           *gorm.DB
	orchestrator *monitor.Orchestrator
	recommender  *monitor.RecommendationUpdater
	running      atomic.Bool
}

// NewMonitorController creates a new monitor controller
func NewMonitorController(db *gorm.DB, orch *monitor.Orchestrator, rec *monitor.RecommendationUpdater) *MonitorController {
	return &MonitorController{db: db, orchestrator: orch, recommender: rec}
}

// RunMonitoring triggers one full monitoring pass
// POST /api/v1/monitor/run
func (mc *MonitorController) RunMonitoring(c *gin.Context) {
	var opts monitor.RunOptions
	if err := c.ShouldBindJSON(&opts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	// One run at a time; the pipeline writes snapshots the alert stage reads
	if !mc.running.CompareAndSwap(false, true) {
		c.JSON(http.StatusConflict, gin.H{"error": "A monitoring run is already in progress"})
		return
	}
	defer mc.running.Store(false)

	stats, err := mc.orchestrator.Run(c.Request.Context(), opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}

// GetProgress reports snapshot-stage batch progress of the current run
// GET /api/v1/monitor/progress
func (mc *MonitorController) GetProgress(c *gin.Context) {
	completed, total := mc.orchestrator.Progress()
	c.JSON(http.StatusOK, gin.H{
		"running":           mc.running.Load(),
		"batches_completed": completed,
		"batches_total":     total,
	})
}

// GetSnapshot returns the latest snapshot for a symbol
// GET /api/v1/stocks/:symbol/snapshot
func (mc *MonitorController) GetSnapshot(c *gin.Context) {
	symbol := c.Param("symbol")

	var snap models.StockSnapshot
	if err := mc.db.Where("symbol = ?", symbol).First(&snap).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Snapshot not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch snapshot"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": snap})
}

// GetAlerts returns the alert log, newest first
// GET /api/v1/alerts
func (mc *MonitorController) GetAlerts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset := (page - 1) * limit

	query := mc.db.Model(&models.AlertLog{})
	if alertType := c.Query("type"); alertType != "" {
		query = query.Where("alert_type = ?", alertType)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("sent_status = ?", status)
	}
	if symbol := c.Query("symbol"); symbol != "" {
		query = query.Where("symbol = ?", symbol)
	}

	var total int64
	query.Count(&total)

	var alerts []models.AlertLog
	if err := query.Order("alert_timestamp DESC").Limit(limit).Offset(offset).Find(&alerts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch alerts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": alerts,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// RefreshRecommendations triggers an analyst recommendation refresh
// POST /api/v1/recommendations/refresh
func (mc *MonitorController) RefreshRecommendations(c *gin.Context) {
	frequency := c.DefaultQuery("frequency", models.FrequencyDaily)

	stats, err := mc.recommender.Refresh(c.Request.Context(), frequency)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}
