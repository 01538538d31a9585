package controllers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"stock_monitor/models"
)

// StockController handles monitored-universe requests
type StockController struct {
	db *gorm.DB
}

// NewStockController creates a new stock controller
func NewStockController(db *gorm.DB) *StockController {
	return &StockController{db: db}
}

// GetStocks returns the monitored universe
// GET /api/v1/stocks
func (sc *StockController) GetStocks(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset := (page - 1) * limit

	query := sc.db.Model(&models.Stock{})
	if frequency := c.Query("frequency"); frequency != "" {
		query = query.Where("frequency = ?", frequency)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	query.Count(&total)

	var stocks []models.Stock
	if err := query.Order("symbol ASC").Limit(limit).Offset(offset).Find(&stocks).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stocks"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": stocks,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// CreateStock adds a symbol to the monitored universe
// POST /api/v1/stocks
func (sc *StockController) CreateStock(c *gin.Context) {
	var req struct {
		Symbol    string `json:"symbol" binding:"required"`
		Name      string `json:"name"`
		Frequency string `json:"frequency"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Symbol is required"})
		return
	}

	if req.Frequency == "" {
		req.Frequency = models.FrequencyDaily
	}
	switch req.Frequency {
	case models.FrequencyDaily, models.FrequencyWeekly, models.FrequencyMonthly:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid frequency"})
		return
	}

	stock := models.Stock{
		Symbol:    strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Name:      req.Name,
		Frequency: req.Frequency,
		Status:    "active",
	}
	if stock.Symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Symbol is required"})
		return
	}

	if err := sc.db.Create(&stock).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Stock already exists"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": stock})
}

// UpdateStock changes a symbol's monitoring frequency or status
// PATCH /api/v1/stocks/:symbol
func (sc *StockController) UpdateStock(c *gin.Context) {
	symbol := c.Param("symbol")

	var req struct {
		Frequency string `json:"frequency"`
		Status    string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	updates := map[string]interface{}{}
	if req.Frequency != "" {
		updates["frequency"] = req.Frequency
	}
	if req.Status != "" {
		updates["status"] = req.Status
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nothing to update"})
		return
	}

	result := sc.db.Model(&models.Stock{}).Where("symbol = ?", symbol).Updates(updates)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update stock"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Stock not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Stock updated"})
}

// GetStockHistory returns stored history rows for a symbol
// GET /api/v1/stocks/:symbol/history
func (sc *StockController) GetStockHistory(c *gin.Context) {
	symbol := c.Param("symbol")
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	if days <= 0 {
		days = 30
	}

	since := time.Now().UTC().AddDate(0, 0, -days)

	var history []models.StockHistory
	if err := sc.db.Where("symbol = ? AND date >= ?", symbol, since).
		Order("date ASC").Find(&history).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": history, "count": len(history)})
}
