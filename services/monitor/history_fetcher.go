package monitor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stock_monitor/config"
	"stock_monitor/models"
	"stock_monitor/services/datafetcher"
	"stock_monitor/services/store"
)

// FetchTier classifies a symbol by how stale its stored history is.
// Staler symbols need wider lookback windows, so they go in smaller
// provider batches to bound a single call's payload and retry cost.
type FetchTier int

const (
	TierRecent FetchTier = iota // fresh, small top-up fetch
	TierMedium
	TierStale // wide lookback, includes never-fetched symbols
)

func (t FetchTier) String() string {
	switch t {
	case TierRecent:
		return "recent"
	case TierMedium:
		return "medium"
	default:
		return "stale"
	}
}

// FetchStats reports the outcome of one history stage.
type FetchStats struct {
	SymbolsAttempted int
	SymbolsUpdated   int
	RecordsUpserted  int64
	BatchesFailed    int
	FailedBatches    []string
}

// fetchBatch is one provider call: a group of same-tier symbols and the
// lookback window to request for them.
type fetchBatch struct {
	tier         FetchTier
	symbols      []string
	lookbackDays int
}

// HistoryFetcher backfills missing or stale daily history for the universe.
type HistoryFetcher struct {
	store    store.Store
	provider datafetcher.MarketDataProvider
	cfg      config.MonitorConfig
}

// NewHistoryFetcher creates a new history fetcher.
func NewHistoryFetcher(st store.Store, provider datafetcher.MarketDataProvider, cfg config.MonitorConfig) *HistoryFetcher {
	return &HistoryFetcher{store: st, provider: provider, cfg: cfg}
}

// FetchAndStore backfills history for the given symbols. maxBatchSize caps
// the per-call batch size on top of the tier defaults.
//
// Only the initial freshness-index read is fatal. A failed provider call or
// upsert for one batch is recorded in the stats and the other batches
// continue. Cancellation is honored between batches; an in-flight batch is
// allowed to finish.
func (f *HistoryFetcher) FetchAndStore(ctx context.Context, symbols []string, maxBatchSize int) (*FetchStats, error) {
	stats := &FetchStats{SymbolsAttempted: len(symbols)}
	if len(symbols) == 0 {
		return stats, nil
	}

	// Freshness index: one grouped query for all symbols. This must finish
	// before any batch worker starts, since batch membership depends on it.
	latest, err := f.store.LatestDates(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("freshness index read failed: %w", err)
	}

	groups := f.groupByTier(symbols, latest, time.Now().UTC())
	log.Printf("History tiers: recent=%d medium=%d stale=%d",
		len(groups[TierRecent]), len(groups[TierMedium]), len(groups[TierStale]))

	batches := f.buildBatches(groups, maxBatchSize)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, f.workers())
	)

	for _, batch := range batches {
		// Cooperative cancellation between batches
		if ctx.Err() != nil {
			mu.Lock()
			stats.BatchesFailed++
			stats.FailedBatches = append(stats.FailedBatches,
				fmt.Sprintf("history %s batch skipped: %v", batch.tier, ctx.Err()))
			mu.Unlock()
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(b fetchBatch) {
			defer wg.Done()
			defer func() { <-sem }()

			updated, records, err := f.fetchBatch(ctx, b)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.BatchesFailed++
				stats.FailedBatches = append(stats.FailedBatches,
					fmt.Sprintf("history %s batch (%d symbols): %v", b.tier, len(b.symbols), err))
				return
			}
			stats.SymbolsUpdated += updated
			stats.RecordsUpserted += records
		}(batch)
	}

	wg.Wait()

	log.Printf("History stage: %d/%d symbols updated, %d records upserted, %d batches failed",
		stats.SymbolsUpdated, stats.SymbolsAttempted, stats.RecordsUpserted, stats.BatchesFailed)
	return stats, nil
}

// fetchBatch performs one provider call and upserts the result.
func (f *HistoryFetcher) fetchBatch(ctx context.Context, b fetchBatch) (int, int64, error) {
	callCtx, cancel := context.WithTimeout(ctx, f.batchTimeout())
	defer cancel()

	history, err := f.provider.FetchHistory(callCtx, b.symbols, b.lookbackDays)
	if err != nil {
		return 0, 0, fmt.Errorf("provider call failed: %w", err)
	}

	records := make([]models.StockHistory, 0, len(history)*b.lookbackDays)
	updated := 0
	for _, symbol := range b.symbols {
		bars, ok := history[symbol]
		if !ok || len(bars) == 0 {
			// Symbol returned no data: skipped, not an error
			continue
		}
		updated++
		for _, bar := range bars {
			records = append(records, models.StockHistory{
				Symbol: symbol,
				Date:   bar.Date,
				Open:   decimal.NewFromFloat(bar.Open),
				High:   decimal.NewFromFloat(bar.High),
				Low:    decimal.NewFromFloat(bar.Low),
				Close:  decimal.NewFromFloat(bar.Close),
				Volume: bar.Volume,
			})
		}
	}

	upserted, err := f.store.UpsertHistory(ctx, records)
	if err != nil {
		return 0, 0, fmt.Errorf("upsert failed: %w", err)
	}
	return updated, upserted, nil
}

// groupByTier classifies each symbol by its data freshness. Symbols never
// fetched before are STALE.
func (f *HistoryFetcher) groupByTier(symbols []string, latest map[string]time.Time, today time.Time) map[FetchTier][]string {
	groups := map[FetchTier][]string{}
	for _, symbol := range symbols {
		tier := f.tierFor(symbol, latest, today)
		groups[tier] = append(groups[tier], symbol)
	}
	return groups
}

func (f *HistoryFetcher) tierFor(symbol string, latest map[string]time.Time, today time.Time) FetchTier {
	latestDate, ok := latest[symbol]
	if !ok {
		return TierStale
	}
	daysStale := int(today.Sub(latestDate).Hours() / 24)
	switch {
	case daysStale < f.cfg.RecentMaxDays:
		return TierRecent
	case daysStale <= f.cfg.MediumMaxDays:
		return TierMedium
	default:
		return TierStale
	}
}

// buildBatches chunks each tier group into provider batches with the
// tier's batch size and lookback window.
func (f *HistoryFetcher) buildBatches(groups map[FetchTier][]string, maxBatchSize int) []fetchBatch {
	type tierSpec struct {
		tier     FetchTier
		size     int
		lookback int
	}
	specs := []tierSpec{
		{TierRecent, f.cfg.RecentBatchSize, f.cfg.RecentLookbackDays},
		{TierMedium, f.cfg.MediumBatchSize, f.cfg.MediumLookbackDays},
		{TierStale, f.cfg.StaleBatchSize, f.cfg.StaleLookbackDays},
	}

	var batches []fetchBatch
	for _, spec := range specs {
		size := spec.size
		if maxBatchSize > 0 && maxBatchSize < size {
			size = maxBatchSize
		}
		group := groups[spec.tier]
		for i := 0; i < len(group); i += size {
			end := i + size
			if end > len(group) {
				end = len(group)
			}
			batches = append(batches, fetchBatch{
				tier:         spec.tier,
				symbols:      group[i:end],
				lookbackDays: spec.lookback,
			})
		}
	}
	return batches
}

func (f *HistoryFetcher) workers() int {
	if f.cfg.FetchWorkers > 0 {
		return f.cfg.FetchWorkers
	}
	return 4
}

func (f *HistoryFetcher) batchTimeout() time.Duration {
	if f.cfg.BatchTimeoutSeconds > 0 {
		return time.Duration(f.cfg.BatchTimeoutSeconds) * time.Second
	}
	return 30 * time.Second
}
