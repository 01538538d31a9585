package monitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"stock_monitor/config"
	"stock_monitor/services/datafetcher"
	"stock_monitor/services/store"
)

// recommendationBatchSize keeps info calls small; the provider's info
// endpoint is rate-limited upstream, unlike the bulk price endpoints.
const recommendationBatchSize = 50

// RecommendationStats reports the outcome of one recommendation refresh.
type RecommendationStats struct {
	SymbolsAttempted int
	Updated          int
	Changed          int
	BatchesFailed    int
}

// RecommendationUpdater refreshes analyst recommendations from the
// provider's info endpoint. Runs as its own scheduled job during off-market
// hours, outside the main monitoring pipeline.
type RecommendationUpdater struct {
	store    store.Store
	provider datafetcher.MarketDataProvider
	cfg      config.MonitorConfig
}

// NewRecommendationUpdater creates a new recommendation updater.
func NewRecommendationUpdater(st store.Store, provider datafetcher.MarketDataProvider, cfg config.MonitorConfig) *RecommendationUpdater {
	return &RecommendationUpdater{store: st, provider: provider, cfg: cfg}
}

// Refresh fetches current recommendations for the universe and stores the
// ones that changed. Batches run sequentially to respect the upstream rate
// limit; a failed batch is logged and the rest continue.
func (r *RecommendationUpdater) Refresh(ctx context.Context, frequency string) (*RecommendationStats, error) {
	symbols, err := r.store.ListSymbols(ctx, frequency)
	if err != nil {
		return nil, fmt.Errorf("universe load failed: %w", err)
	}

	stats := &RecommendationStats{SymbolsAttempted: len(symbols)}
	if len(symbols) == 0 {
		return stats, nil
	}

	current, err := r.store.GetRecommendations(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("recommendation read failed: %w", err)
	}

	for i := 0; i < len(symbols); i += recommendationBatchSize {
		if ctx.Err() != nil {
			stats.BatchesFailed++
			break
		}

		end := i + recommendationBatchSize
		if end > len(symbols) {
			end = len(symbols)
		}
		batch := symbols[i:end]

		callCtx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.BatchTimeoutSeconds)*time.Second)
		info, err := r.provider.FetchInfo(callCtx, batch)
		cancel()
		if err != nil {
			log.Printf("Recommendation batch failed (%d symbols): %v", len(batch), err)
			stats.BatchesFailed++
			continue
		}

		for _, symbol := range batch {
			si, ok := info[symbol]
			if !ok || si.Recommendation == "" {
				continue
			}
			if si.Recommendation != current[symbol] {
				if current[symbol] != "" {
					log.Printf("Recommendation change: %s %s -> %s", symbol, current[symbol], si.Recommendation)
				}
				stats.Changed++
			}
			if err := r.store.UpdateRecommendation(ctx, symbol, si.Recommendation); err != nil {
				log.Printf("Error updating recommendation for %s: %v", symbol, err)
				continue
			}
			stats.Updated++
		}
	}

	log.Printf("Recommendations: %d/%d updated, %d changed, %d batches failed",
		stats.Updated, stats.SymbolsAttempted, stats.Changed, stats.BatchesFailed)
	return stats, nil
}
