package monitor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"stock_monitor/config"
	"stock_monitor/models"
	"stock_monitor/services/datafetcher"
	"stock_monitor/services/store"
)

// UpdateStats reports the outcome of one snapshot stage.
type UpdateStats struct {
	SymbolsAttempted int
	SnapshotsUpdated int
	SymbolsSkipped   int // no data returned by the provider
	BatchesFailed    int
	FailedBatches    []string
}

// RealTimeUpdater refreshes the per-symbol snapshot rows from a short
// trailing window of provider data.
type RealTimeUpdater struct {
	store    store.Store
	provider datafetcher.MarketDataProvider
	cfg      config.MonitorConfig

	// Progress is tracked per batch through atomic counters so callers can
	// poll it without locks and without the updater holding ambient state.
	completedBatches atomic.Int64
	totalBatches     atomic.Int64
}

// NewRealTimeUpdater creates a new real-time updater.
func NewRealTimeUpdater(st store.Store, provider datafetcher.MarketDataProvider, cfg config.MonitorConfig) *RealTimeUpdater {
	return &RealTimeUpdater{store: st, provider: provider, cfg: cfg}
}

// Progress returns completed and total batch counts for the current (or
// last) FetchAndUpdate pass.
func (u *RealTimeUpdater) Progress() (completed, total int64) {
	return u.completedBatches.Load(), u.totalBatches.Load()
}

// FetchAndUpdate fetches the trailing window for all symbols in provider
// batches, builds one snapshot per symbol that returned data, and replaces
// the stored snapshot by symbol key. Symbols without data are skipped; their
// previous snapshot remains untouched.
func (u *RealTimeUpdater) FetchAndUpdate(ctx context.Context, symbols []string) (map[string]models.StockSnapshot, *UpdateStats, error) {
	stats := &UpdateStats{SymbolsAttempted: len(symbols)}
	snapshots := make(map[string]models.StockSnapshot, len(symbols))
	if len(symbols) == 0 {
		return snapshots, stats, nil
	}

	batchSize := u.cfg.RealtimeBatchSize
	if batchSize <= 0 {
		batchSize = 200
	}

	var batches [][]string
	for i := 0; i < len(symbols); i += batchSize {
		end := i + batchSize
		if end > len(symbols) {
			end = len(symbols)
		}
		batches = append(batches, symbols[i:end])
	}

	u.completedBatches.Store(0)
	u.totalBatches.Store(int64(len(batches)))

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, u.workers())
	)

	for _, batch := range batches {
		if ctx.Err() != nil {
			mu.Lock()
			stats.BatchesFailed++
			stats.FailedBatches = append(stats.FailedBatches,
				fmt.Sprintf("snapshot batch skipped: %v", ctx.Err()))
			mu.Unlock()
			u.completedBatches.Add(1)
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(batch []string) {
			defer wg.Done()
			defer func() { <-sem }()
			defer u.completedBatches.Add(1)

			updated, skipped, batchSnaps, err := u.updateBatch(ctx, batch)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.BatchesFailed++
				stats.FailedBatches = append(stats.FailedBatches,
					fmt.Sprintf("snapshot batch (%d symbols): %v", len(batch), err))
				return
			}
			stats.SnapshotsUpdated += updated
			stats.SymbolsSkipped += skipped
			for symbol, snap := range batchSnaps {
				snapshots[symbol] = snap
			}
		}(batch)
	}

	wg.Wait()

	log.Printf("Snapshot stage: %d updated, %d skipped, %d batches failed",
		stats.SnapshotsUpdated, stats.SymbolsSkipped, stats.BatchesFailed)
	return snapshots, stats, nil
}

func (u *RealTimeUpdater) updateBatch(ctx context.Context, batch []string) (updated, skipped int, snaps map[string]models.StockSnapshot, err error) {
	callCtx, cancel := context.WithTimeout(ctx, u.batchTimeout())
	defer cancel()

	recent, err := u.provider.FetchRecent(callCtx, batch, u.fetchPeriods())
	if err != nil {
		return 0, 0, nil, fmt.Errorf("provider call failed: %w", err)
	}

	now := time.Now().UTC()
	snaps = make(map[string]models.StockSnapshot, len(batch))

	for _, symbol := range batch {
		bars, ok := recent[symbol]
		if !ok || len(bars) == 0 {
			skipped++
			continue
		}

		snap := BuildSnapshot(symbol, bars, u.cfg.ShortMAWindow, u.cfg.LongMAWindow, now)
		if snap == nil {
			skipped++
			continue
		}

		if err := u.store.UpsertSnapshot(ctx, snap); err != nil {
			return 0, 0, nil, err
		}
		snaps[symbol] = *snap
		updated++
	}

	return updated, skipped, snaps, nil
}

// fetchPeriods is the trailing window requested from the provider. It is at
// least the configured recent window, widened to cover the long moving
// average so snapshots can be built without rereading the history table.
func (u *RealTimeUpdater) fetchPeriods() int {
	periods := u.cfg.RecentPeriods
	if periods <= 0 {
		periods = 7
	}
	if u.cfg.LongMAWindow+1 > periods {
		periods = u.cfg.LongMAWindow + 1
	}
	return periods
}

func (u *RealTimeUpdater) workers() int {
	if u.cfg.FetchWorkers > 0 {
		return u.cfg.FetchWorkers
	}
	return 4
}

func (u *RealTimeUpdater) batchTimeout() time.Duration {
	if u.cfg.BatchTimeoutSeconds > 0 {
		return time.Duration(u.cfg.BatchTimeoutSeconds) * time.Second
	}
	return 30 * time.Second
}
