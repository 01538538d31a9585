package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Alert types
const (
	AlertTypePriceChange      = "price_change"
	AlertTypeBullishCrossover = "bullish_crossover"
)

// Alert delivery statuses
const (
	AlertStatusPending    = "Pending"
	AlertStatusSent       = "Sent"
	AlertStatusFailed     = "Failed"
	AlertStatusSkipped    = "Skipped" // sending disabled for the run, logged for audit only
	AlertStatusDeadLetter = "DeadLetter"
)

// Alert priorities, lower number = higher priority
const (
	PriorityCritical = 1
	PriorityHigh     = 2
	PriorityMedium   = 3
	PriorityLow      = 4
)

// AlertLog is the append-only record of every alert the detector surfaced.
// Rows are never mutated after delivery settles; failed deliveries only
// advance SentStatus/RetryCount.
type AlertLog struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	Symbol         string          `gorm:"index;not null" json:"symbol"`
	AlertType      string          `gorm:"index" json:"alert_type"`
	Message        string          `json:"message"`
	Magnitude      decimal.Decimal `gorm:"type:decimal(10,4)" json:"magnitude"`
	Priority       int             `json:"priority"`
	DedupHash      string          `gorm:"index" json:"dedup_hash"`
	SentStatus     string          `gorm:"index" json:"sent_status"`
	RetryCount     int             `json:"retry_count"`
	ErrorMessage   string          `json:"error_message"`
	AlertTimestamp time.Time       `gorm:"index" json:"alert_timestamp"`
	ScheduledFor   time.Time       `json:"scheduled_for"`
	CreatedAt      time.Time       `json:"created_at"`
}

// AlertDedupHash builds the deduplication key for an alert. Context narrows
// the window: an hour bucket for price changes (several alerts per day are
// fine, spam within the hour is not), the calendar date for crossovers.
func AlertDedupHash(alertType, symbol, context string) string {
	input := strings.Join([]string{alertType, strings.ToUpper(symbol), context}, "|")
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])[:16]
}

// DedupWindow returns how long a duplicate of the given alert type is
// suppressed after a prior occurrence.
func DedupWindow(alertType string) time.Duration {
	switch alertType {
	case AlertTypeBullishCrossover:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

// PriorityFromChange maps a percent change magnitude to an alert priority.
func PriorityFromChange(changePercent float64) int {
	abs := changePercent
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 10.0:
		return PriorityCritical
	case abs >= 5.0:
		return PriorityHigh
	case abs >= 2.0:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// MigrateAlertModels runs database migrations for alert models
func MigrateAlertModels(db *gorm.DB) error {
	return db.AutoMigrate(&AlertLog{})
}
