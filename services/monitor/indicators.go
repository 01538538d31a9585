package monitor

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"stock_monitor/models"
	"stock_monitor/services/datafetcher"
)

// CalculateMA computes the simple moving average over the last `period`
// closes. The second return value is false when fewer than `period` values
// are available; callers must treat that as "unavailable", never as zero,
// so a short series cannot fake a crossover.
func CalculateMA(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period {
		return 0, false
	}
	sum := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(period), true
}

// BuildSnapshot derives the per-symbol snapshot from an ordered series of
// bars (oldest first). Pure computation, no I/O.
func BuildSnapshot(symbol string, bars []datafetcher.PriceBar, shortWindow, longWindow int, now time.Time) *models.StockSnapshot {
	if len(bars) == 0 {
		return nil
	}

	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
	}

	current := closes[len(closes)-1]
	previous := current
	if len(closes) >= 2 {
		previous = closes[len(closes)-2]
	}

	changePercent := 0.0
	if previous != 0 && len(closes) >= 2 {
		changePercent = round2((current - previous) / previous * 100)
	}

	snap := &models.StockSnapshot{
		Symbol:         symbol,
		CurrentPrice:   decimal.NewFromFloat(current),
		PreviousClose:  decimal.NewFromFloat(previous),
		ChangePercent:  decimal.NewFromFloat(changePercent),
		CrossoverState: models.CrossoverUnavailable,
		UpdatedAt:      now,
	}

	shortMA, shortOK := CalculateMA(closes, shortWindow)
	longMA, longOK := CalculateMA(closes, longWindow)

	if shortOK {
		snap.ShortMA = decimal.NewNullDecimal(decimal.NewFromFloat(round2(shortMA)))
	}
	if longOK {
		snap.LongMA = decimal.NewNullDecimal(decimal.NewFromFloat(round2(longMA)))
	}

	// Crossover state only exists when both averages do
	if shortOK && longOK {
		if shortMA > longMA {
			snap.CrossoverState = models.CrossoverAbove
		} else {
			snap.CrossoverState = models.CrossoverBelow
		}
	}

	return snap
}

// CrossoverMagnitude returns the separation of the short average from the
// long one, as a percent of the long average. Zero when either is missing.
func CrossoverMagnitude(snap models.StockSnapshot) float64 {
	if !snap.ShortMA.Valid || !snap.LongMA.Valid {
		return 0
	}
	long := snap.LongMA.Decimal.InexactFloat64()
	if long == 0 {
		return 0
	}
	short := snap.ShortMA.Decimal.InexactFloat64()
	return round2((short - long) / long * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
