package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAlertDedupHash(t *testing.T) {
	h := AlertDedupHash(AlertTypePriceChange, "AAPL", "2026-08-23-14")
	assert.Len(t, h, 16)
	assert.Equal(t, h, AlertDedupHash(AlertTypePriceChange, "AAPL", "2026-08-23-14"), "hash is stable")
	assert.Equal(t, h, AlertDedupHash(AlertTypePriceChange, "aapl", "2026-08-23-14"), "symbol is case-insensitive")

	assert.NotEqual(t, h, AlertDedupHash(AlertTypePriceChange, "AAPL", "2026-08-23-15"), "next hour is a new alert")
	assert.NotEqual(t, h, AlertDedupHash(AlertTypeBullishCrossover, "AAPL", "2026-08-23-14"), "type is part of the key")
	assert.NotEqual(t, h, AlertDedupHash(AlertTypePriceChange, "MSFT", "2026-08-23-14"))
}

func TestDedupWindow(t *testing.T) {
	assert.Equal(t, 24*time.Hour, DedupWindow(AlertTypeBullishCrossover))
	assert.Equal(t, time.Hour, DedupWindow(AlertTypePriceChange))
}

func TestPriorityFromChange(t *testing.T) {
	assert.Equal(t, PriorityCritical, PriorityFromChange(12.5))
	assert.Equal(t, PriorityCritical, PriorityFromChange(-10.0))
	assert.Equal(t, PriorityHigh, PriorityFromChange(6.0))
	assert.Equal(t, PriorityHigh, PriorityFromChange(-5.0))
	assert.Equal(t, PriorityMedium, PriorityFromChange(2.0))
	assert.Equal(t, PriorityLow, PriorityFromChange(1.9))
	assert.Equal(t, PriorityLow, PriorityFromChange(-0.5))
}
