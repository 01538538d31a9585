package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stock_monitor/config"
	"stock_monitor/models"
	"stock_monitor/services/datafetcher"
)

// fakeStore is an in-memory store for pipeline tests. History rows are
// keyed by (symbol, date) to mirror the database's unique index.
type fakeStore struct {
	mu sync.Mutex

	symbols         []string
	symbolsErr      error
	recommendations map[string]string
	latest          map[string]time.Time
	latestErr       error
	history         map[string]models.StockHistory
	snapshots       map[string]models.StockSnapshot
	snapshotsErr    error
	alerts          []models.AlertLog
	upsertErr       error
	appendErr       error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		recommendations: map[string]string{},
		latest:          map[string]time.Time{},
		history:         map[string]models.StockHistory{},
		snapshots:       map[string]models.StockSnapshot{},
	}
}

func historyKey(symbol string, date time.Time) string {
	return fmt.Sprintf("%s|%s", symbol, date.Format("2006-01-02"))
}

func (s *fakeStore) ListSymbols(ctx context.Context, frequency string) ([]string, error) {
	if s.symbolsErr != nil {
		return nil, s.symbolsErr
	}
	return s.symbols, nil
}

func (s *fakeStore) GetRecommendations(ctx context.Context, symbols []string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]string{}
	for _, symbol := range symbols {
		if rec, ok := s.recommendations[symbol]; ok {
			out[symbol] = rec
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateRecommendation(ctx context.Context, symbol, recommendation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recommendations[symbol] = recommendation
	return nil
}

func (s *fakeStore) LatestDates(ctx context.Context, symbols []string) (map[string]time.Time, error) {
	if s.latestErr != nil {
		return nil, s.latestErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]time.Time{}
	for _, symbol := range symbols {
		if d, ok := s.latest[symbol]; ok {
			out[symbol] = d
		}
	}
	return out, nil
}

func (s *fakeStore) UpsertHistory(ctx context.Context, records []models.StockHistory) (int64, error) {
	if s.upsertErr != nil {
		return 0, s.upsertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		s.history[historyKey(rec.Symbol, rec.Date)] = rec
	}
	return int64(len(records)), nil
}

func (s *fakeStore) UpsertSnapshot(ctx context.Context, snap *models.StockSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.Symbol] = *snap
	return nil
}

func (s *fakeStore) GetSnapshots(ctx context.Context, symbols []string) (map[string]models.StockSnapshot, error) {
	if s.snapshotsErr != nil {
		return nil, s.snapshotsErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]models.StockSnapshot{}
	for _, symbol := range symbols {
		if snap, ok := s.snapshots[symbol]; ok {
			out[symbol] = snap
		}
	}
	return out, nil
}

func (s *fakeStore) AppendAlert(ctx context.Context, alert *models.AlertLog) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	alert.ID = uint(len(s.alerts) + 1)
	s.alerts = append(s.alerts, *alert)
	return nil
}

func (s *fakeStore) HasRecentAlert(ctx context.Context, dedupHash string, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.alerts {
		if a.DedupHash != dedupHash || a.AlertTimestamp.Before(since) {
			continue
		}
		switch a.SentStatus {
		case models.AlertStatusSent, models.AlertStatusPending, models.AlertStatusFailed:
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) PendingAlerts(ctx context.Context, limit int) ([]models.AlertLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AlertLog
	for _, a := range s.alerts {
		if a.SentStatus == models.AlertStatusPending || a.SentStatus == models.AlertStatusFailed {
			out = append(out, a)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateAlertStatus(ctx context.Context, id uint, status, errorMessage string, retryCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.alerts {
		if s.alerts[i].ID == id {
			s.alerts[i].SentStatus = status
			s.alerts[i].ErrorMessage = errorMessage
			s.alerts[i].RetryCount = retryCount
			return nil
		}
	}
	return fmt.Errorf("alert %d not found", id)
}

func (s *fakeStore) alertByID(id uint) (models.AlertLog, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.alerts {
		if a.ID == id {
			return a, true
		}
	}
	return models.AlertLog{}, false
}

// historyCall records one FetchHistory invocation.
type historyCall struct {
	symbols  []string
	lookback int
}

// recentCall records one FetchRecent invocation.
type recentCall struct {
	symbols []string
	periods int
}

// fakeProvider is a scriptable market data provider.
type fakeProvider struct {
	mu sync.Mutex

	historyCalls []historyCall
	recentCalls  []recentCall
	infoCalls    [][]string

	historyFn func(symbols []string, lookbackDays int) (map[string][]datafetcher.PriceBar, error)
	recentFn  func(symbols []string, periods int) (map[string][]datafetcher.PriceBar, error)
	infoFn    func(symbols []string) (map[string]datafetcher.SymbolInfo, error)
}

func (p *fakeProvider) FetchHistory(ctx context.Context, symbols []string, lookbackDays int) (map[string][]datafetcher.PriceBar, error) {
	p.mu.Lock()
	p.historyCalls = append(p.historyCalls, historyCall{symbols: append([]string{}, symbols...), lookback: lookbackDays})
	p.mu.Unlock()
	if p.historyFn == nil {
		return map[string][]datafetcher.PriceBar{}, nil
	}
	return p.historyFn(symbols, lookbackDays)
}

func (p *fakeProvider) FetchRecent(ctx context.Context, symbols []string, periods int) (map[string][]datafetcher.PriceBar, error) {
	p.mu.Lock()
	p.recentCalls = append(p.recentCalls, recentCall{symbols: append([]string{}, symbols...), periods: periods})
	p.mu.Unlock()
	if p.recentFn == nil {
		return map[string][]datafetcher.PriceBar{}, nil
	}
	return p.recentFn(symbols, periods)
}

func (p *fakeProvider) FetchInfo(ctx context.Context, symbols []string) (map[string]datafetcher.SymbolInfo, error) {
	p.mu.Lock()
	p.infoCalls = append(p.infoCalls, append([]string{}, symbols...))
	p.mu.Unlock()
	if p.infoFn == nil {
		return map[string]datafetcher.SymbolInfo{}, nil
	}
	return p.infoFn(symbols)
}

// fakeNotifier records delivered batches and can be forced to fail.
type fakeNotifier struct {
	mu      sync.Mutex
	batches [][]models.AlertLog
	err     error
}

func (n *fakeNotifier) SendBatch(ctx context.Context, alerts []models.AlertLog) error {
	if n.err != nil {
		return n.err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, append([]models.AlertLog{}, alerts...))
	return nil
}

// bars builds an ascending daily series ending today with the given closes.
func bars(closes ...float64) []datafetcher.PriceBar {
	out := make([]datafetcher.PriceBar, len(closes))
	start := time.Now().UTC().AddDate(0, 0, -len(closes))
	for i, c := range closes {
		out[i] = datafetcher.PriceBar{
			Date:   start.AddDate(0, 0, i+1),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: 1000,
		}
	}
	return out
}

// testConfig is a pipeline config with small windows suitable for tests.
func testConfig() config.MonitorConfig {
	return config.MonitorConfig{
		RecentMaxDays:       7,
		MediumMaxDays:       30,
		RecentLookbackDays:  7,
		MediumLookbackDays:  30,
		StaleLookbackDays:   365,
		RecentBatchSize:     200,
		MediumBatchSize:     100,
		StaleBatchSize:      50,
		RealtimeBatchSize:   200,
		RecentPeriods:       7,
		ShortMAWindow:       2,
		LongMAWindow:        3,
		AlertThreshold:      2.0,
		TopAlertsPerType:    10,
		MaxAlertRetries:     5,
		FetchWorkers:        2,
		BatchTimeoutSeconds: 5,
	}
}
