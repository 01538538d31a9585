package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stock_monitor/models"
)

// upsertChunkSize bounds a single multi-row INSERT against Postgres.
const upsertChunkSize = 500

// GormStore is the PostgreSQL-backed Store implementation.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store backed by the given gorm connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// ListSymbols returns the active universe for a monitoring frequency.
func (s *GormStore) ListSymbols(ctx context.Context, frequency string) ([]string, error) {
	var symbols []string
	err := s.db.WithContext(ctx).
		Model(&models.Stock{}).
		Where("frequency = ? AND status = ?", frequency, "active").
		Order("symbol ASC").
		Pluck("symbol", &symbols).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}
	return symbols, nil
}

// GetRecommendations returns the stored analyst recommendation per symbol.
func (s *GormStore) GetRecommendations(ctx context.Context, symbols []string) (map[string]string, error) {
	var rows []models.Stock
	err := s.db.WithContext(ctx).
		Select("symbol", "recommendation").
		Where("symbol IN ?", symbols).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recommendations: %w", err)
	}

	recs := make(map[string]string, len(rows))
	for _, row := range rows {
		recs[row.Symbol] = row.Recommendation
	}
	return recs, nil
}

// UpdateRecommendation stores a new analyst recommendation for a symbol.
func (s *GormStore) UpdateRecommendation(ctx context.Context, symbol, recommendation string) error {
	err := s.db.WithContext(ctx).
		Model(&models.Stock{}).
		Where("symbol = ?", symbol).
		Update("recommendation", recommendation).Error
	if err != nil {
		return fmt.Errorf("failed to update recommendation for %s: %w", symbol, err)
	}
	return nil
}

// LatestDates returns the most recent history date on file per symbol,
// in a single grouped query. Symbols with no history are absent from
// the result.
func (s *GormStore) LatestDates(ctx context.Context, symbols []string) (map[string]time.Time, error) {
	var rows []struct {
		Symbol     string
		LatestDate time.Time
	}

	err := s.db.WithContext(ctx).
		Model(&models.StockHistory{}).
		Select("symbol, MAX(date) AS latest_date").
		Where("symbol IN ?", symbols).
		Group("symbol").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read freshness index: %w", err)
	}

	latest := make(map[string]time.Time, len(rows))
	for _, row := range rows {
		latest[row.Symbol] = row.LatestDate
	}
	return latest, nil
}

// UpsertHistory inserts bars keyed by (symbol, date), overwriting rows that
// already exist. Re-applying the same provider response is a no-op.
func (s *GormStore) UpsertHistory(ctx context.Context, records []models.StockHistory) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "symbol"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"open", "high", "low", "close", "volume", "updated_at",
			}),
		}).
		CreateInBatches(records, upsertChunkSize)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to upsert history: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// UpsertSnapshot replaces the live snapshot for a symbol.
func (s *GormStore) UpsertSnapshot(ctx context.Context, snap *models.StockSnapshot) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "symbol"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"current_price", "previous_close", "change_percent",
				"short_ma", "long_ma", "crossover_state", "updated_at",
			}),
		}).
		Create(snap).Error
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot for %s: %w", snap.Symbol, err)
	}
	return nil
}

// GetSnapshots returns the live snapshot per symbol.
func (s *GormStore) GetSnapshots(ctx context.Context, symbols []string) (map[string]models.StockSnapshot, error) {
	var rows []models.StockSnapshot
	err := s.db.WithContext(ctx).
		Where("symbol IN ?", symbols).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshots: %w", err)
	}

	snaps := make(map[string]models.StockSnapshot, len(rows))
	for _, row := range rows {
		snaps[row.Symbol] = row
	}
	return snaps, nil
}

// AppendAlert adds a row to the append-only alert log.
func (s *GormStore) AppendAlert(ctx context.Context, alert *models.AlertLog) error {
	if err := s.db.WithContext(ctx).Create(alert).Error; err != nil {
		return fmt.Errorf("failed to append alert for %s: %w", alert.Symbol, err)
	}
	return nil
}

// HasRecentAlert reports whether an alert with the same dedup hash was
// logged since the given time and is not dead-lettered.
func (s *GormStore) HasRecentAlert(ctx context.Context, dedupHash string, since time.Time) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.AlertLog{}).
		Where("dedup_hash = ? AND alert_timestamp >= ? AND sent_status IN ?",
			dedupHash, since,
			[]string{models.AlertStatusSent, models.AlertStatusPending, models.AlertStatusFailed}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate alert: %w", err)
	}
	return count > 0, nil
}

// PendingAlerts returns undelivered alerts ready for a retry, highest
// priority first.
func (s *GormStore) PendingAlerts(ctx context.Context, limit int) ([]models.AlertLog, error) {
	var alerts []models.AlertLog
	err := s.db.WithContext(ctx).
		Where("sent_status IN ? AND scheduled_for <= ?",
			[]string{models.AlertStatusPending, models.AlertStatusFailed}, time.Now().UTC()).
		Order("priority ASC, scheduled_for ASC").
		Limit(limit).
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load pending alerts: %w", err)
	}
	return alerts, nil
}

// UpdateAlertStatus records a delivery outcome on an alert log row.
func (s *GormStore) UpdateAlertStatus(ctx context.Context, id uint, status, errorMessage string, retryCount int) error {
	err := s.db.WithContext(ctx).
		Model(&models.AlertLog{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sent_status":   status,
			"error_message": errorMessage,
			"retry_count":   retryCount,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update alert %d: %w", id, err)
	}
	return nil
}
