package datafetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// PriceBar is a single OHLCV period returned by the provider.
type PriceBar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// SymbolInfo holds slow-moving per-symbol metadata from the provider's
// info endpoint. Info calls are rate-limited upstream, so they are only
// made in small batches by the recommendation updater.
type SymbolInfo struct {
	Symbol         string
	Recommendation string
	TargetLow      float64
	TargetHigh     float64
}

// MarketDataProvider is the upstream market-data collaborator.
// Implementations batch at the transport level: one call covers all the
// symbols passed in, and a call may fail as a whole (the batch is the
// retry unit, not the symbol).
type MarketDataProvider interface {
	// FetchHistory returns up to lookbackDays of daily bars per symbol,
	// oldest first. Symbols with no data are simply absent from the map.
	FetchHistory(ctx context.Context, symbols []string, lookbackDays int) (map[string][]PriceBar, error)

	// FetchRecent returns the last `periods` trading bars per symbol,
	// oldest first.
	FetchRecent(ctx context.Context, symbols []string, periods int) (map[string][]PriceBar, error)

	// FetchInfo returns analyst metadata per symbol.
	FetchInfo(ctx context.Context, symbols []string) (map[string]SymbolInfo, error)
}

// DataFetcher fetches market data from the configured HTTP gateway.
type DataFetcher struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewDataFetcher creates a new data fetcher instance
func NewDataFetcher(baseURL, apiKey string) *DataFetcher {
	return &DataFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// historyResponse is the gateway's batch history payload.
type historyResponse struct {
	Data map[string][]struct {
		Date   string  `json:"date"`
		Open   float64 `json:"open"`
		High   float64 `json:"high"`
		Low    float64 `json:"low"`
		Close  float64 `json:"close"`
		Volume int64   `json:"volume"`
	} `json:"data"`
}

// infoResponse is the gateway's symbol info payload.
type infoResponse struct {
	Data []struct {
		Symbol         string  `json:"symbol"`
		Recommendation string  `json:"recommendation"`
		TargetLow      float64 `json:"target_low"`
		TargetHigh     float64 `json:"target_high"`
	} `json:"data"`
}

// FetchHistory fetches daily bars for a batch of symbols in one call.
func (df *DataFetcher) FetchHistory(ctx context.Context, symbols []string, lookbackDays int) (map[string][]PriceBar, error) {
	params := url.Values{}
	params.Set("symbols", strings.Join(symbols, ","))
	params.Set("days", strconv.Itoa(lookbackDays))
	return df.fetchBars(ctx, "/v1/history", params)
}

// FetchRecent fetches the trailing bars for a batch of symbols in one call.
func (df *DataFetcher) FetchRecent(ctx context.Context, symbols []string, periods int) (map[string][]PriceBar, error) {
	params := url.Values{}
	params.Set("symbols", strings.Join(symbols, ","))
	params.Set("periods", strconv.Itoa(periods))
	return df.fetchBars(ctx, "/v1/recent", params)
}

func (df *DataFetcher) fetchBars(ctx context.Context, path string, params url.Values) (map[string][]PriceBar, error) {
	body, err := df.get(ctx, path, params)
	if err != nil {
		return nil, err
	}

	var resp historyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	bars := make(map[string][]PriceBar, len(resp.Data))
	for symbol, rows := range resp.Data {
		series := make([]PriceBar, 0, len(rows))
		for _, row := range rows {
			date, err := time.Parse("2006-01-02", row.Date)
			if err != nil {
				// One malformed row should not sink the whole symbol
				continue
			}
			series = append(series, PriceBar{
				Date:   date,
				Open:   row.Open,
				High:   row.High,
				Low:    row.Low,
				Close:  row.Close,
				Volume: row.Volume,
			})
		}
		if len(series) > 0 {
			bars[symbol] = series
		}
	}

	return bars, nil
}

// FetchInfo fetches analyst metadata for a batch of symbols.
func (df *DataFetcher) FetchInfo(ctx context.Context, symbols []string) (map[string]SymbolInfo, error) {
	params := url.Values{}
	params.Set("symbols", strings.Join(symbols, ","))

	body, err := df.get(ctx, "/v1/info", params)
	if err != nil {
		return nil, err
	}

	var resp infoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	info := make(map[string]SymbolInfo, len(resp.Data))
	for _, row := range resp.Data {
		info[row.Symbol] = SymbolInfo{
			Symbol:         row.Symbol,
			Recommendation: row.Recommendation,
			TargetLow:      row.TargetLow,
			TargetHigh:     row.TargetHigh,
		}
	}

	return info, nil
}

func (df *DataFetcher) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	reqURL := fmt.Sprintf("%s%s?%s", df.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if df.apiKey != "" {
		req.Header.Set("X-Api-Key", df.apiKey)
	}

	resp, err := df.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d for %s", resp.StatusCode, path)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return body, nil
}
