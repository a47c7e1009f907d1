// Package config provides configuration management functionality.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir            string // Base directory for the sqlite database (always absolute)
	LogLevel           string
	CORSAllowedOrigins []string
	Port               int
	DevMode            bool

	Analytics  AnalyticsConfig
	MarketData MarketDataConfig
	Summary    SummaryConfig
	TopPicks   TopPicksConfig
}

// AnalyticsConfig controls the report pipeline
type AnalyticsConfig struct {
	SymbolSuffix        string  // Exchange suffix appended to bare symbols (".NS")
	BenchmarkSymbol     string  // Index used for beta
	HistoryWindowDays   int     // Trailing window for descriptive and risk history
	RiskFreeRate        float64 // Annual, converted to daily for Sharpe
	ForecastSteps       int
	ForecastSimulations int
	FrontierSimulations int
	CVaRSimulations     int
	Seed                uint64 // 0 means a fresh seed per request
	RequestBudget       time.Duration
	RequestTimeout      time.Duration
}

// MarketDataConfig controls vendor access
type MarketDataConfig struct {
	Workers    int
	RateLimit  float64 // requests per second
	MaxRetries int
	Timeout    time.Duration
	CacheTTL   time.Duration
}

// SummaryConfig controls the natural-language summary client
type SummaryConfig struct {
	APIKey string
	Model  string
}

// TopPicksConfig controls the periodic ranking job
type TopPicksConfig struct {
	Enabled     bool
	Schedule    string
	SymbolsFile string
	BatchSize   int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:            absDataDir,
		Port:               getEnvAsInt("GO_PORT", 8000),
		DevMode:            getEnvAsBool("DEV_MODE", false),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		Analytics: AnalyticsConfig{
			SymbolSuffix:        getEnv("SYMBOL_SUFFIX", ".NS"),
			BenchmarkSymbol:     getEnv("BENCHMARK_SYMBOL", "^NSEI"),
			HistoryWindowDays:   getEnvAsInt("HISTORY_WINDOW_DAYS", 365),
			RiskFreeRate:        getEnvAsFloat("RISK_FREE_RATE", 0.06),
			ForecastSteps:       getEnvAsInt("FORECAST_STEPS", 30),
			ForecastSimulations: getEnvAsInt("FORECAST_SIMULATIONS", 100),
			FrontierSimulations: getEnvAsInt("FRONTIER_SIMULATIONS", 5000),
			CVaRSimulations:     getEnvAsInt("CVAR_SIMULATIONS", 10000),
			Seed:                uint64(getEnvAsInt("MONTE_CARLO_SEED", 0)),
			RequestBudget:       getEnvAsDuration("REQUEST_BUDGET", 25*time.Second),
			RequestTimeout:      getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),
		},
		MarketData: MarketDataConfig{
			Workers:    getEnvAsInt("FETCH_WORKERS", 4),
			RateLimit:  getEnvAsFloat("FETCH_RATE_LIMIT", 5),
			MaxRetries: getEnvAsInt("FETCH_MAX_RETRIES", 3),
			Timeout:    getEnvAsDuration("FETCH_TIMEOUT", 10*time.Second),
			CacheTTL:   getEnvAsDuration("CACHE_TTL", 6*time.Hour),
		},
		Summary: SummaryConfig{
			APIKey: getEnv("GOOGLE_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		},
		TopPicks: TopPicksConfig{
			Enabled:     getEnvAsBool("TOP_PICKS_ENABLED", true),
			Schedule:    getEnv("TOP_PICKS_SCHEDULE", "@every 24h"),
			SymbolsFile: getEnv("TOP_PICKS_SYMBOLS_FILE", filepath.Join(absDataDir, "EQUITY_L.csv")),
			BatchSize:   getEnvAsInt("TOP_PICKS_BATCH_SIZE", 150),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DatabasePath returns the sqlite file location inside DataDir
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "optiwealth.db")
}

// Validate checks if the configuration is usable
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("GO_PORT out of range: %d", c.Port))
	}
	if c.Analytics.HistoryWindowDays <= 0 {
		errs = append(errs, errors.New("HISTORY_WINDOW_DAYS must be positive"))
	}
	if c.Analytics.ForecastSteps <= 0 || c.Analytics.ForecastSimulations <= 0 {
		errs = append(errs, errors.New("FORECAST_STEPS and FORECAST_SIMULATIONS must be positive"))
	}
	if c.Analytics.FrontierSimulations <= 0 || c.Analytics.CVaRSimulations <= 0 {
		errs = append(errs, errors.New("FRONTIER_SIMULATIONS and CVAR_SIMULATIONS must be positive"))
	}
	if c.Analytics.RequestBudget <= 0 || c.Analytics.RequestTimeout < c.Analytics.RequestBudget {
		errs = append(errs, errors.New("REQUEST_BUDGET must be positive and not exceed REQUEST_TIMEOUT"))
	}
	if c.MarketData.Workers <= 0 || c.MarketData.RateLimit <= 0 {
		errs = append(errs, errors.New("FETCH_WORKERS and FETCH_RATE_LIMIT must be positive"))
	}
	if c.MarketData.MaxRetries < 0 {
		errs = append(errs, errors.New("FETCH_MAX_RETRIES must not be negative"))
	}
	if c.TopPicks.BatchSize <= 0 {
		errs = append(errs, errors.New("TOP_PICKS_BATCH_SIZE must be positive"))
	}

	return errors.Join(errs...)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
