package store

import (
	"context"
	"time"

	"stock_monitor/models"
)

// Store is the durable-store collaborator consumed by the monitoring
// pipeline. Each pipeline stage owns its writes: the history fetcher writes
// StockHistory, the real-time updater writes StockSnapshot, the alert
// detector appends AlertLog. All stages share read access.
type Store interface {
	// Universe
	ListSymbols(ctx context.Context, frequency string) ([]string, error)
	GetRecommendations(ctx context.Context, symbols []string) (map[string]string, error)
	UpdateRecommendation(ctx context.Context, symbol, recommendation string) error

	// History
	LatestDates(ctx context.Context, symbols []string) (map[string]time.Time, error)
	UpsertHistory(ctx context.Context, records []models.StockHistory) (int64, error)

	// Snapshots
	UpsertSnapshot(ctx context.Context, snap *models.StockSnapshot) error
	GetSnapshots(ctx context.Context, symbols []string) (map[string]models.StockSnapshot, error)

	// Alert log (append-only)
	AppendAlert(ctx context.Context, alert *models.AlertLog) error
	HasRecentAlert(ctx context.Context, dedupHash string, since time.Time) (bool, error)
	PendingAlerts(ctx context.Context, limit int) ([]models.AlertLog, error)
	UpdateAlertStatus(ctx context.Context, id uint, status, errorMessage string, retryCount int) error
}
