package monitor

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock_monitor/services/datafetcher"
)

func TestHistoryFetcherTiersByStaleness(t *testing.T) {
	st := newFakeStore()
	// MSFT was fetched 3 days ago, AAPL never
	st.latest["MSFT"] = time.Now().UTC().AddDate(0, 0, -3)

	provider := &fakeProvider{
		historyFn: func(symbols []string, lookback int) (map[string][]datafetcher.PriceBar, error) {
			out := map[string][]datafetcher.PriceBar{}
			for _, s := range symbols {
				out[s] = bars(100, 101, 102)
			}
			return out, nil
		},
	}

	f := NewHistoryFetcher(st, provider, testConfig())
	stats, err := f.FetchAndStore(context.Background(), []string{"AAPL", "MSFT"}, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.SymbolsAttempted)
	assert.Equal(t, 2, stats.SymbolsUpdated)
	assert.Equal(t, 0, stats.BatchesFailed)

	// One recent batch for MSFT, one stale batch for AAPL
	require.Len(t, provider.historyCalls, 2)
	lookbacks := map[string]int{}
	for _, call := range provider.historyCalls {
		for _, s := range call.symbols {
			lookbacks[s] = call.lookback
		}
	}
	assert.Equal(t, 7, lookbacks["MSFT"], "fresh symbol gets the top-up window")
	assert.Equal(t, 365, lookbacks["AAPL"], "never-fetched symbol gets the full window")
}

func TestHistoryFetcherMediumTier(t *testing.T) {
	st := newFakeStore()
	st.latest["IBM"] = time.Now().UTC().AddDate(0, 0, -14)

	provider := &fakeProvider{}
	f := NewHistoryFetcher(st, provider, testConfig())

	_, err := f.FetchAndStore(context.Background(), []string{"IBM"}, 0)
	require.NoError(t, err)

	require.Len(t, provider.historyCalls, 1)
	assert.Equal(t, 30, provider.historyCalls[0].lookback)
}

func TestHistoryFetcherBatchChunking(t *testing.T) {
	st := newFakeStore()
	symbols := make([]string, 120)
	for i := range symbols {
		symbols[i] = string(rune('A'+i/26)) + string(rune('A'+i%26))
	}

	provider := &fakeProvider{}
	cfg := testConfig()
	cfg.StaleBatchSize = 50
	f := NewHistoryFetcher(st, provider, cfg)

	_, err := f.FetchAndStore(context.Background(), symbols, 0)
	require.NoError(t, err)

	require.Len(t, provider.historyCalls, 3)
	var sizes []int
	for _, call := range provider.historyCalls {
		sizes = append(sizes, len(call.symbols))
	}
	sort.Ints(sizes)
	assert.Equal(t, []int{20, 50, 50}, sizes)
}

func TestHistoryFetcherBatchFailureIsolated(t *testing.T) {
	st := newFakeStore()
	st.latest["GOOD"] = time.Now().UTC().AddDate(0, 0, -14)

	provider := &fakeProvider{
		historyFn: func(symbols []string, lookback int) (map[string][]datafetcher.PriceBar, error) {
			if lookback == 365 {
				return nil, errors.New("provider timeout")
			}
			out := map[string][]datafetcher.PriceBar{}
			for _, s := range symbols {
				out[s] = bars(50, 51)
			}
			return out, nil
		},
	}

	f := NewHistoryFetcher(st, provider, testConfig())
	stats, err := f.FetchAndStore(context.Background(), []string{"BAD", "GOOD"}, 0)
	require.NoError(t, err, "a failed batch must not abort the stage")

	assert.Equal(t, 1, stats.BatchesFailed)
	require.Len(t, stats.FailedBatches, 1)
	assert.Contains(t, stats.FailedBatches[0], "stale")
	assert.Equal(t, 1, stats.SymbolsUpdated, "the other tier still lands")
}

func TestHistoryFetcherFreshnessReadFatal(t *testing.T) {
	st := newFakeStore()
	st.latestErr = errors.New("connection refused")

	f := NewHistoryFetcher(st, &fakeProvider{}, testConfig())
	_, err := f.FetchAndStore(context.Background(), []string{"AAPL"}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "freshness index")
}

func TestHistoryFetcherIdempotentUpsert(t *testing.T) {
	st := newFakeStore()
	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	provider := &fakeProvider{
		historyFn: func(symbols []string, lookback int) (map[string][]datafetcher.PriceBar, error) {
			return map[string][]datafetcher.PriceBar{
				"AAPL": {
					{Date: day, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 10},
					{Date: day.AddDate(0, 0, 1), Open: 100.5, High: 102, Low: 100, Close: 101, Volume: 12},
				},
			}, nil
		},
	}

	f := NewHistoryFetcher(st, provider, testConfig())
	_, err := f.FetchAndStore(context.Background(), []string{"AAPL"}, 0)
	require.NoError(t, err)
	require.Len(t, st.history, 2)

	// Re-applying the same provider response changes nothing
	_, err = f.FetchAndStore(context.Background(), []string{"AAPL"}, 0)
	require.NoError(t, err)
	assert.Len(t, st.history, 2)
}

func TestHistoryFetcherCancellationSkipsBatches(t *testing.T) {
	st := newFakeStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := &fakeProvider{}
	f := NewHistoryFetcher(st, provider, testConfig())

	stats, err := f.FetchAndStore(ctx, []string{"AAPL", "MSFT"}, 1)
	require.NoError(t, err)

	assert.Empty(t, provider.historyCalls, "no provider calls after cancellation")
	assert.Equal(t, 2, stats.BatchesFailed)
	for _, msg := range stats.FailedBatches {
		assert.Contains(t, msg, "skipped")
	}
}

func TestHistoryFetcherEmptyUniverse(t *testing.T) {
	f := NewHistoryFetcher(newFakeStore(), &fakeProvider{}, testConfig())
	stats, err := f.FetchAndStore(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.SymbolsAttempted)
}

func TestHistoryFetcherSymbolWithoutDataSkipped(t *testing.T) {
	st := newFakeStore()
	provider := &fakeProvider{
		historyFn: func(symbols []string, lookback int) (map[string][]datafetcher.PriceBar, error) {
			return map[string][]datafetcher.PriceBar{"AAPL": bars(100, 101)}, nil
		},
	}

	f := NewHistoryFetcher(st, provider, testConfig())
	stats, err := f.FetchAndStore(context.Background(), []string{"AAPL", "NODATA"}, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.SymbolsUpdated, "missing symbol is a skip, not a failure")
	assert.Equal(t, 0, stats.BatchesFailed)
}
