package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ".NS", cfg.Analytics.SymbolSuffix)
	assert.Equal(t, "^NSEI", cfg.Analytics.BenchmarkSymbol)
	assert.Equal(t, 365, cfg.Analytics.HistoryWindowDays)
	assert.Equal(t, 0.06, cfg.Analytics.RiskFreeRate)
	assert.Equal(t, 30, cfg.Analytics.ForecastSteps)
	assert.Equal(t, 100, cfg.Analytics.ForecastSimulations)
	assert.Equal(t, 5000, cfg.Analytics.FrontierSimulations)
	assert.Equal(t, 10000, cfg.Analytics.CVaRSimulations)
	assert.Equal(t, 25*time.Second, cfg.Analytics.RequestBudget)
	assert.Equal(t, 30*time.Second, cfg.Analytics.RequestTimeout)
	assert.Equal(t, 150, cfg.TopPicks.BatchSize)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Contains(t, cfg.DatabasePath(), "optiwealth.db")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("GO_PORT", "9100")
	t.Setenv("FETCH_WORKERS", "8")
	t.Setenv("REQUEST_BUDGET", "10s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test,")
	t.Setenv("MONTE_CARLO_SEED", "42")
	t.Setenv("RISK_FREE_RATE", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, 8, cfg.MarketData.Workers)
	assert.Equal(t, 10*time.Second, cfg.Analytics.RequestBudget)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, uint64(42), cfg.Analytics.Seed)
	assert.Equal(t, 0.06, cfg.Analytics.RiskFreeRate, "invalid values fall back to the default")
}

func TestLoad_RejectsInvalid(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("FRONTIER_SIMULATIONS", "0")
	t.Setenv("REQUEST_BUDGET", "40s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FRONTIER_SIMULATIONS")
	assert.Contains(t, err.Error(), "REQUEST_BUDGET")
}
