package di

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/optiwealth/internal/clients/yahoo"
	"github.com/aristath/optiwealth/internal/config"
	"github.com/aristath/optiwealth/internal/domain"
	"github.com/aristath/optiwealth/internal/modules/report"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nullSource struct{}

func (nullSource) FetchQuote(context.Context, string) (*domain.Quote, error) {
	return nil, errors.New("offline")
}

func (nullSource) FetchHistory(context.Context, string, time.Time, time.Time) ([]domain.PriceBar, error) {
	return nil, errors.New("offline")
}

func (nullSource) DownloadCloses(context.Context, []string, string) (map[string][]domain.PriceBar, error) {
	return nil, errors.New("offline")
}

func (nullSource) FetchMetadata(context.Context, string) (*yahoo.SecurityMetadata, error) {
	return nil, errors.New("offline")
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir: t.TempDir(),
		Port:    8000,
		Analytics: config.AnalyticsConfig{
			SymbolSuffix:        ".NS",
			BenchmarkSymbol:     "^NSEI",
			HistoryWindowDays:   365,
			RiskFreeRate:        0.06,
			ForecastSteps:       30,
			ForecastSimulations: 100,
			FrontierSimulations: 5000,
			CVaRSimulations:     10000,
			RequestBudget:       25 * time.Second,
			RequestTimeout:      30 * time.Second,
		},
		MarketData: config.MarketDataConfig{
			Workers:    4,
			RateLimit:  5,
			MaxRetries: 3,
			Timeout:    10 * time.Second,
			CacheTTL:   6 * time.Hour,
		},
		TopPicks: config.TopPicksConfig{
			Enabled:   true,
			Schedule:  "@every 24h",
			BatchSize: 150,
		},
	}
}

func TestWireWith(t *testing.T) {
	cfg := testConfig(t)
	container, err := WireWith(context.Background(), cfg, Sources{
		MarketData: nullSource{},
		TopPicks:   nullSource{},
		Summarizer: report.NoopSummarizer{},
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	assert.NotNil(t, container.DB)
	assert.NotNil(t, container.ClientData)
	assert.NotNil(t, container.Provider)
	assert.NotNil(t, container.TopPicksRepo)
	assert.NotNil(t, container.TopPicksJob)
	require.NotNil(t, container.Aggregator)
	assert.Equal(t, 25*time.Second, container.Aggregator.Budget())
	assert.Equal(t, 2, container.Scheduler.Entries(), "cleanup and top picks")

	require.NoError(t, container.DB.HealthCheck(context.Background()))
}

func TestWireWith_TopPicksDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.TopPicks.Enabled = false

	container, err := WireWith(context.Background(), cfg, Sources{MarketData: nullSource{}, TopPicks: nullSource{}}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	assert.Equal(t, 1, container.Scheduler.Entries())
	assert.NotNil(t, container.TopPicksJob, "job stays available for manual runs")
}

func TestWireWith_InvalidSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.TopPicks.Schedule = "sometimes"

	_, err := WireWith(context.Background(), cfg, Sources{MarketData: nullSource{}, TopPicks: nullSource{}}, zerolog.Nop())
	assert.Error(t, err)
}

func TestProviderConfig(t *testing.T) {
	pc := ProviderConfig(config.MarketDataConfig{Workers: 8, RateLimit: 2, MaxRetries: 1, Timeout: time.Second})
	assert.Equal(t, 8, pc.Workers)
	assert.Equal(t, 2.0, pc.RateLimit)
	assert.Equal(t, 1, pc.MaxRetries)
	assert.Equal(t, time.Second, pc.Timeout)
	assert.Positive(t, pc.CacheTTL, "zero TTL keeps the default")
}
