package monitor

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"stock_monitor/models"
	"stock_monitor/services/notifier"
)

// AlertStats reports the outcome of one alerting stage.
type AlertStats struct {
	StocksProcessed   int
	AlertsDetected    int // all rule hits, before the per-type cap
	AlertsSent        int
	DuplicatesSkipped int
	DeliveryFailed    bool
}

// candidate is a rule hit before filtering.
type candidate struct {
	symbol    string
	alertType string
	magnitude float64 // signed; ranked by absolute value
	message   string
}

// AlertDetector evaluates alert rules over the run's snapshots, caps the
// result per type, and hands the final list to the notifier.
type AlertDetector struct {
	queue    *AlertQueue
	notifier notifier.Notifier
	topN     int
}

// NewAlertDetector creates a new alert detector.
func NewAlertDetector(queue *AlertQueue, n notifier.Notifier, topN int) *AlertDetector {
	if topN <= 0 {
		topN = 10
	}
	return &AlertDetector{queue: queue, notifier: n, topN: topN}
}

// ProcessAlerts evaluates both rule types over the snapshots produced by
// this run, using the prior snapshots (captured before the updater's
// overwrite) for transition detection. Delivery failure never blocks
// persistence; every filtered alert lands in the append-only log.
func (d *AlertDetector) ProcessAlerts(ctx context.Context, snapshots, prior map[string]models.StockSnapshot, threshold float64, sendEnabled bool) *AlertStats {
	stats := &AlertStats{StocksProcessed: len(snapshots)}

	candidates := d.collect(snapshots, prior, threshold)
	stats.AlertsDetected = len(candidates)

	top := filterTop(candidates, d.topN)
	log.Printf("Alerts: %d detected, %d kept after per-type cap", len(candidates), len(top))

	// Persist first, delivery second: the log is the source of truth
	now := time.Now().UTC()
	var toSend []models.AlertLog
	for _, c := range top {
		alert := d.buildAlert(c, now, sendEnabled)

		enqueued, err := d.queue.Enqueue(ctx, alert)
		if err != nil {
			log.Printf("Error enqueueing alert for %s: %v", c.symbol, err)
			continue
		}
		if !enqueued {
			stats.DuplicatesSkipped++
			continue
		}
		if sendEnabled {
			toSend = append(toSend, *alert)
		}
	}

	if len(toSend) > 0 {
		if err := d.notifier.SendBatch(ctx, toSend); err != nil {
			log.Printf("Error delivering alert batch: %v", err)
			stats.DeliveryFailed = true
			for i := range toSend {
				d.queue.MarkFailed(ctx, &toSend[i], err)
			}
		} else {
			stats.AlertsSent = len(toSend)
			for i := range toSend {
				d.queue.MarkSent(ctx, &toSend[i])
			}
		}
	}

	return stats
}

// collect evaluates the rules per symbol, in symbol order for determinism.
// A symbol can produce zero, one, or both alert types in the same run.
func (d *AlertDetector) collect(snapshots, prior map[string]models.StockSnapshot, threshold float64) []candidate {
	symbols := make([]string, 0, len(snapshots))
	for symbol := range snapshots {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	var candidates []candidate
	for _, symbol := range symbols {
		snap := snapshots[symbol]

		// Bullish crossover fires on the below -> above transition only.
		// A snapshot already above from the previous run does not re-fire.
		if snap.CrossoverState == models.CrossoverAbove {
			if prev, ok := prior[symbol]; ok && prev.CrossoverState == models.CrossoverBelow {
				candidates = append(candidates, candidate{
					symbol:    symbol,
					alertType: models.AlertTypeBullishCrossover,
					magnitude: CrossoverMagnitude(snap),
					message: fmt.Sprintf("Current: $%s\nShort MA: %s  Long MA: %s",
						snap.CurrentPrice.StringFixed(2),
						snap.ShortMA.Decimal.StringFixed(2),
						snap.LongMA.Decimal.StringFixed(2)),
				})
			}
		}

		change := snap.ChangePercent.InexactFloat64()
		if math.Abs(change) >= threshold {
			candidates = append(candidates, candidate{
				symbol:    symbol,
				alertType: models.AlertTypePriceChange,
				magnitude: change,
				message: fmt.Sprintf("Previous close: $%s\nCurrent: $%s (%+.2f%%)",
					snap.PreviousClose.StringFixed(2),
					snap.CurrentPrice.StringFixed(2), change),
			})
		}
	}
	return candidates
}

// filterTop keeps the top N candidates per alert type by magnitude,
// breaking ties by symbol for reproducibility.
func filterTop(candidates []candidate, topN int) []candidate {
	byType := map[string][]candidate{}
	for _, c := range candidates {
		byType[c.alertType] = append(byType[c.alertType], c)
	}

	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	var top []candidate
	for _, t := range types {
		group := byType[t]
		sort.Slice(group, func(i, j int) bool {
			mi, mj := math.Abs(group[i].magnitude), math.Abs(group[j].magnitude)
			if mi != mj {
				return mi > mj
			}
			return group[i].symbol < group[j].symbol
		})
		if len(group) > topN {
			group = group[:topN]
		}
		top = append(top, group...)
	}
	return top
}

func (d *AlertDetector) buildAlert(c candidate, now time.Time, sendEnabled bool) *models.AlertLog {
	var context string
	var priority int
	switch c.alertType {
	case models.AlertTypeBullishCrossover:
		context = now.Format("2006-01-02") // one crossover alert per day
		priority = models.PriorityHigh
	default:
		context = now.Format("2006-01-02-15") // hour bucket
		priority = models.PriorityFromChange(c.magnitude)
	}

	status := models.AlertStatusPending
	if !sendEnabled {
		status = models.AlertStatusSkipped
	}

	return &models.AlertLog{
		Symbol:         c.symbol,
		AlertType:      c.alertType,
		Message:        c.message,
		Magnitude:      decimal.NewFromFloat(c.magnitude),
		Priority:       priority,
		DedupHash:      models.AlertDedupHash(c.alertType, c.symbol, context),
		SentStatus:     status,
		AlertTimestamp: now,
		ScheduledFor:   now,
	}
}
