package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Monitoring frequency values for Stock.Frequency
const (
	FrequencyDaily   = "Daily"
	FrequencyWeekly  = "Weekly"
	FrequencyMonthly = "Monthly"
)

// Crossover states for StockSnapshot.CrossoverState
const (
	CrossoverAbove       = "short_above_long"
	CrossoverBelow       = "short_below_long"
	CrossoverUnavailable = "unavailable"
)

// Stock represents one symbol in the monitored universe. The universe itself
// is populated by a separate monthly refresh job; the monitor only reads it.
type Stock struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Symbol         string    `gorm:"uniqueIndex;not null" json:"symbol"`
	Name           string    `json:"name"`
	Sector         string    `json:"sector"`
	Industry       string    `json:"industry"`
	Frequency      string    `gorm:"index" json:"frequency"` // Daily, Weekly, Monthly
	Recommendation string    `json:"recommendation"`         // latest analyst consensus, e.g. "buy"
	Status         string    `json:"status"`                 // active, delisted, suspended
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// StockHistory represents one daily OHLCV bar. (Symbol, Date) is unique;
// re-applying the same provider response is a no-op.
type StockHistory struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Symbol    string          `gorm:"uniqueIndex:idx_symbol_date;not null" json:"symbol"`
	Date      time.Time       `gorm:"uniqueIndex:idx_symbol_date;not null" json:"date"`
	Open      decimal.Decimal `gorm:"type:decimal(15,4)" json:"open"`
	High      decimal.Decimal `gorm:"type:decimal(15,4)" json:"high"`
	Low       decimal.Decimal `gorm:"type:decimal(15,4)" json:"low"`
	Close     decimal.Decimal `gorm:"type:decimal(15,4)" json:"close"`
	Volume    int64           `json:"volume"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// StockSnapshot is the per-symbol derived row recomputed on each run.
// At most one live row per symbol; each run replaces the previous one.
// ShortMA/LongMA are NULL when fewer periods than the window are available,
// never zero-filled, so a missing average cannot fake a crossover.
type StockSnapshot struct {
	ID             uint                `gorm:"primaryKey" json:"id"`
	Symbol         string              `gorm:"uniqueIndex;not null" json:"symbol"`
	CurrentPrice   decimal.Decimal     `gorm:"type:decimal(15,4)" json:"current_price"`
	PreviousClose  decimal.Decimal     `gorm:"type:decimal(15,4)" json:"previous_close"`
	ChangePercent  decimal.Decimal     `gorm:"type:decimal(10,4)" json:"change_percent"`
	ShortMA        decimal.NullDecimal `gorm:"type:decimal(15,4)" json:"short_ma"`
	LongMA         decimal.NullDecimal `gorm:"type:decimal(15,4)" json:"long_ma"`
	CrossoverState string              `json:"crossover_state"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// MigrateStockModels runs database migrations for stock-related models
func MigrateStockModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&Stock{},
		&StockHistory{},
		&StockSnapshot{},
	)
}
