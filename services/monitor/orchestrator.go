package monitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"stock_monitor/config"
	"stock_monitor/models"
	"stock_monitor/services/datafetcher"
	"stock_monitor/services/notifier"
	"stock_monitor/services/store"
)

// RunState is the orchestrator's position in the pipeline state machine.
type RunState string

const (
	StateInit              RunState = "Init"
	StateFetchingHistory   RunState = "FetchingHistory"
	StateUpdatingSnapshots RunState = "UpdatingSnapshots"
	StateDetectingAlerts   RunState = "DetectingAlerts"
	StateDone              RunState = "Done"
	StatePartiallyFailed   RunState = "PartiallyFailed"
)

// RunOptions are the caller-facing knobs for one monitoring run.
type RunOptions struct {
	AlertThreshold float64 `json:"alert_threshold"`
	AlertsEnabled  bool    `json:"alerts_enabled"`
	Frequency      string  `json:"frequency"` // Daily, Weekly, Monthly
}

// RunStats is the structured result of one monitoring run.
type RunStats struct {
	SymbolsProcessed       int           `json:"symbols_processed"`
	HistoryRecordsUpserted int64         `json:"history_records_upserted"`
	SnapshotsUpdated       int           `json:"snapshots_updated"`
	AlertsDetected         int           `json:"alerts_detected"`
	AlertsSent             int           `json:"alerts_sent"`
	StageFailures          []string      `json:"stage_failures"`
	State                  RunState      `json:"state"`
	StartedAt              time.Time     `json:"started_at"`
	ElapsedTime            time.Duration `json:"elapsed_time"`
}

// Orchestrator drives the three pipeline stages in sequence. Stages never
// retry within a run; the next scheduled run is the retry boundary.
type Orchestrator struct {
	store    store.Store
	provider datafetcher.MarketDataProvider
	notifier notifier.Notifier
	mirror   *store.MongoMirror // optional, may be nil
	cfg      config.MonitorConfig

	fetcher  *HistoryFetcher
	updater  *RealTimeUpdater
	detector *AlertDetector
}

// NewOrchestrator wires the pipeline stages against the given collaborators.
func NewOrchestrator(st store.Store, provider datafetcher.MarketDataProvider, n notifier.Notifier, mirror *store.MongoMirror, cfg config.MonitorConfig) *Orchestrator {
	queue := NewAlertQueue(st, cfg.MaxAlertRetries)
	return &Orchestrator{
		store:    st,
		provider: provider,
		notifier: n,
		mirror:   mirror,
		cfg:      cfg,
		fetcher:  NewHistoryFetcher(st, provider, cfg),
		updater:  NewRealTimeUpdater(st, provider, cfg),
		detector: NewAlertDetector(queue, n, cfg.TopAlertsPerType),
	}
}

// Queue exposes the alert queue for the scheduler's retry job.
func (o *Orchestrator) Queue() *AlertQueue {
	return NewAlertQueue(o.store, o.cfg.MaxAlertRetries)
}

// Progress reports the snapshot stage's batch progress.
func (o *Orchestrator) Progress() (completed, total int64) {
	return o.updater.Progress()
}

// Run executes one full monitoring pass: history backfill, snapshot
// refresh, alert detection. Fatal errors (universe load, freshness index,
// store unreachable) abort with no partial stats; batch-level failures
// degrade the stats and the run continues.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*RunStats, error) {
	if opts.Frequency == "" {
		opts.Frequency = models.FrequencyDaily
	}
	if opts.AlertThreshold <= 0 {
		opts.AlertThreshold = o.cfg.AlertThreshold
	}

	stats := &RunStats{State: StateInit, StartedAt: time.Now().UTC()}

	symbols, err := o.store.ListSymbols(ctx, opts.Frequency)
	if err != nil {
		return nil, fmt.Errorf("universe load failed: %w", err)
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no active symbols with frequency %q", opts.Frequency)
	}
	stats.SymbolsProcessed = len(symbols)
	log.Printf("Monitoring %d %s symbols (threshold %.2f%%, alerts enabled: %t)",
		len(symbols), opts.Frequency, opts.AlertThreshold, opts.AlertsEnabled)

	// Capture the prior snapshots before the updater overwrites them; the
	// crossover rule needs the previous state to detect a transition.
	prior, err := o.store.GetSnapshots(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("prior snapshot read failed: %w", err)
	}

	// Stage 1: history backfill
	stats.State = StateFetchingHistory
	fetchStats, err := o.fetcher.FetchAndStore(ctx, symbols, 0)
	if err != nil {
		return nil, fmt.Errorf("history stage failed: %w", err)
	}
	stats.HistoryRecordsUpserted = fetchStats.RecordsUpserted
	stats.StageFailures = append(stats.StageFailures, fetchStats.FailedBatches...)

	// Stage 2: snapshot refresh
	stats.State = StateUpdatingSnapshots
	snapshots, updateStats, err := o.updater.FetchAndUpdate(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("snapshot stage failed: %w", err)
	}
	stats.SnapshotsUpdated = updateStats.SnapshotsUpdated
	stats.StageFailures = append(stats.StageFailures, updateStats.FailedBatches...)

	if err := o.mirror.MirrorSnapshots(ctx, snapshots); err != nil {
		// Mirror is best-effort and must not degrade the run
		log.Printf("Snapshot mirror failed: %v", err)
	}

	// Stage 3: alert detection and delivery
	stats.State = StateDetectingAlerts
	alertStats := o.detector.ProcessAlerts(ctx, snapshots, prior, opts.AlertThreshold, opts.AlertsEnabled)
	stats.AlertsDetected = alertStats.AlertsDetected
	stats.AlertsSent = alertStats.AlertsSent
	if alertStats.DeliveryFailed {
		stats.StageFailures = append(stats.StageFailures, "alert delivery failed")
	}

	stats.State = StateDone
	if len(stats.StageFailures) > 0 {
		stats.State = StatePartiallyFailed
	}
	stats.ElapsedTime = time.Since(stats.StartedAt)

	log.Printf("Run %s: %d symbols, %d records, %d snapshots, %d/%d alerts sent, %d stage failures (%.1fs)",
		stats.State, stats.SymbolsProcessed, stats.HistoryRecordsUpserted, stats.SnapshotsUpdated,
		stats.AlertsSent, stats.AlertsDetected, len(stats.StageFailures), stats.ElapsedTime.Seconds())
	return stats, nil
}
