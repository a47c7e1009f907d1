package di

import (
	"context"
	"fmt"

	"github.com/aristath/optiwealth/internal/clientdata"
	"github.com/aristath/optiwealth/internal/clients/gemini"
	"github.com/aristath/optiwealth/internal/clients/yahoo"
	"github.com/aristath/optiwealth/internal/config"
	"github.com/aristath/optiwealth/internal/database"
	"github.com/aristath/optiwealth/internal/domain"
	"github.com/aristath/optiwealth/internal/modules/descriptive"
	"github.com/aristath/optiwealth/internal/modules/forecast"
	"github.com/aristath/optiwealth/internal/modules/marketdata"
	"github.com/aristath/optiwealth/internal/modules/optimization"
	"github.com/aristath/optiwealth/internal/modules/report"
	"github.com/aristath/optiwealth/internal/modules/risk"
	"github.com/aristath/optiwealth/internal/modules/toppicks"
	"github.com/aristath/optiwealth/internal/scheduler"
	"github.com/rs/zerolog"
)

// Sources are the external collaborators; Wire fills in the real ones
type Sources struct {
	MarketData domain.MarketDataSource
	TopPicks   toppicks.Source
	Summarizer domain.SummaryGenerator
}

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations:
// 1. Build the vendor clients
// 2. Open and migrate the database
// 3. Build the analytics pipeline
// 4. Register jobs
func Wire(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, error) {
	yahooClient := yahoo.NewNativeClient(log)

	summarizer, err := newSummarizer(ctx, cfg.Summary, log)
	if err != nil {
		return nil, err
	}

	return WireWith(ctx, cfg, Sources{
		MarketData: yahooClient,
		TopPicks:   yahooClient,
		Summarizer: summarizer,
	}, log)
}

// WireWith builds the container around the given sources
func WireWith(ctx context.Context, cfg *config.Config, sources Sources, log zerolog.Logger) (*Container, error) {
	container, err := InitializeDatabase(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	InitializeServices(container, cfg, sources, log)

	if err := RegisterJobs(container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")
	return container, nil
}

// InitializeDatabase opens the sqlite database and applies migrations
func InitializeDatabase(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, error) {
	db, err := database.New(database.Config{
		Path:    cfg.DatabasePath(),
		Profile: database.ProfileStandard,
		Name:    "optiwealth",
	})
	if err != nil {
		return nil, err
	}

	applied, err := db.Migrate(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Info().Str("path", db.Path()).Int64("version", applied).Msg("Database ready")

	return &Container{
		DB:         db,
		ClientData: clientdata.NewRepository(db.Conn()),
	}, nil
}

// InitializeServices builds the analytics pipeline and the top picks components
func InitializeServices(c *Container, cfg *config.Config, sources Sources, log zerolog.Logger) {
	a := cfg.Analytics

	c.Provider = marketdata.NewProvider(sources.MarketData, c.ClientData, ProviderConfig(cfg.MarketData), log)

	stages := report.Stages{
		Descriptive: descriptive.NewAnalyzer(descriptive.Config{
			RiskFreeRate:      a.RiskFreeRate,
			HistoryWindowDays: a.HistoryWindowDays,
		}, log),
		Risk: risk.NewDiagnostics(a.BenchmarkSymbol, log),
		Forecast: forecast.NewEngine(forecast.Config{
			Steps:       a.ForecastSteps,
			Simulations: a.ForecastSimulations,
			Seed:        a.Seed,
		}, log),
		Optimization: optimization.NewEngine(optimization.Config{
			FrontierSimulations: a.FrontierSimulations,
			CVaRSimulations:     a.CVaRSimulations,
			Seed:                a.Seed,
		}, log),
	}

	c.Summarizer = sources.Summarizer
	c.Aggregator = report.NewAggregator(c.Provider, stages, sources.Summarizer, a.RequestBudget, log)

	c.TopPicksRepo = toppicks.NewRepository(c.DB.Conn(), log)
	if sources.TopPicks != nil {
		c.TopPicksJob = toppicks.NewJob(sources.TopPicks, c.TopPicksRepo, c.ClientData, toppicks.JobConfig{
			SymbolsFile: cfg.TopPicks.SymbolsFile,
			Suffix:      a.SymbolSuffix,
			BatchSize:   cfg.TopPicks.BatchSize,
		}, log)
	}
	c.CleanupJob = clientdata.NewCleanupJob(c.ClientData, log)
}

// ProviderConfig maps the market data settings onto the provider
func ProviderConfig(m config.MarketDataConfig) marketdata.Config {
	pc := marketdata.DefaultConfig()
	pc.Workers = m.Workers
	pc.RateLimit = m.RateLimit
	pc.MaxRetries = m.MaxRetries
	pc.Timeout = m.Timeout
	if m.CacheTTL > 0 {
		pc.CacheTTL = m.CacheTTL
	}
	return pc
}

// RegisterJobs creates the scheduler and registers the periodic jobs
func RegisterJobs(c *Container, cfg *config.Config, log zerolog.Logger) error {
	c.Scheduler = scheduler.New(log)

	if err := c.Scheduler.AddJob("@hourly", c.CleanupJob); err != nil {
		return err
	}
	if cfg.TopPicks.Enabled && c.TopPicksJob != nil {
		if err := c.Scheduler.AddJob(cfg.TopPicks.Schedule, c.TopPicksJob); err != nil {
			return err
		}
	}
	return nil
}

func newSummarizer(ctx context.Context, cfg config.SummaryConfig, log zerolog.Logger) (domain.SummaryGenerator, error) {
	if cfg.APIKey == "" {
		log.Warn().Msg("GOOGLE_API_KEY not set, AI summaries disabled")
		return report.NoopSummarizer{}, nil
	}

	client, err := gemini.NewClient(ctx, cfg.APIKey, gemini.WithModel(cfg.Model), gemini.WithLogger(log))
	if err != nil {
		return nil, err
	}
	return client, nil
}
