// Package report runs the analytics stages and assembles the portfolio report.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/aristath/optiwealth/internal/domain"
	"github.com/aristath/optiwealth/internal/modules/descriptive"
	"github.com/aristath/optiwealth/internal/modules/forecast"
	"github.com/aristath/optiwealth/internal/modules/marketdata"
	"github.com/aristath/optiwealth/internal/modules/optimization"
	"github.com/aristath/optiwealth/internal/modules/risk"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	stageSummary = "summary"

	// DefaultBudget is the point after which the summary is skipped
	DefaultBudget = 25 * time.Second

	budgetNote = "AI summary skipped due to processing time constraints"
)

// ErrNoHoldings is returned for a request without holdings
var ErrNoHoldings = errors.New("no holdings provided")

// Request is one analysis request. Symbols must already be exchange-qualified.
type Request struct {
	PortfolioID string
	Holdings    []domain.Holding
	SkipSummary bool
}

// Stages bundles the analytics stages used by the aggregator
type Stages struct {
	Descriptive  *descriptive.Analyzer
	Risk         *risk.Diagnostics
	Forecast     *forecast.Engine
	Optimization *optimization.Engine
}

// Aggregator produces portfolio reports. Each report gets its own market
// data session; the aggregator itself holds no per-request state.
type Aggregator struct {
	provider   *marketdata.Provider
	stages     Stages
	summarizer domain.SummaryGenerator
	budget     time.Duration
	now        func() time.Time
	log        zerolog.Logger
}

// NewAggregator creates an aggregator. A nil summarizer disables summaries.
func NewAggregator(provider *marketdata.Provider, stages Stages, summarizer domain.SummaryGenerator, budget time.Duration, log zerolog.Logger) *Aggregator {
	if summarizer == nil {
		summarizer = NoopSummarizer{}
	}
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Aggregator{
		provider:   provider,
		stages:     stages,
		summarizer: summarizer,
		budget:     budget,
		now:        time.Now,
		log:        log.With().Str("component", "report").Logger(),
	}
}

// Budget returns the time after which optional work is skipped
func (a *Aggregator) Budget() time.Duration {
	return a.budget
}

// Generate builds the report. Only a request with no priceable holding is an
// error; every later stage degrades to an empty section plus warnings.
func (a *Aggregator) Generate(ctx context.Context, req Request) (*domain.PortfolioReport, error) {
	if len(req.Holdings) == 0 {
		return nil, ErrNoHoldings
	}

	started := a.now()
	elapsed := func() time.Duration { return a.now().Sub(started) }
	overBudget := false
	checkBudget := func(stage string) {
		if !overBudget && elapsed() > a.budget {
			overBudget = true
			a.log.Warn().Str("stage", stage).Dur("elapsed", elapsed()).Msg("Time budget exceeded")
		}
	}

	log := a.log.With().Int("holdings", len(req.Holdings)).Logger()
	session := a.provider.Session()

	start, end := a.stages.Descriptive.Window()
	symbols := make([]string, 0, len(req.Holdings)+1)
	for _, h := range req.Holdings {
		symbols = append(symbols, h.Symbol)
	}
	prefetchFailures := session.Prefetch(ctx, append(symbols, a.stages.Risk.Benchmark()), start, end)
	log.Debug().Int("failed", len(prefetchFailures)).Msg("History prefetched")

	desc, err := a.stages.Descriptive.AnalyzePortfolio(ctx, session, req.Holdings)
	if err != nil {
		return nil, fmt.Errorf("descriptive analysis: %w", err)
	}

	report := &domain.PortfolioReport{
		GeneratedAt:  started.UTC(),
		ReportID:     uuid.NewString(),
		PortfolioID:  req.PortfolioID,
		Portfolio:    desc.Summary,
		Forecasts:    map[string]domain.ForecastResult{},
		Optimization: domain.EmptyOptimization(),
		Warnings:     append([]domain.Warning{}, desc.Warnings...),
	}
	checkBudget("descriptive")

	analysed := desc.Symbols()

	if w := runStage(log, "risk", func() error {
		report.RiskMetrics = a.stages.Risk.Compute(ctx, session, risk.Input{
			Symbols:    analysed,
			Series:     desc.Series,
			Volatility: desc.Summary.Volatility,
			Start:      desc.Start,
			End:        desc.End,
		})
		return nil
	}); w != nil {
		report.RiskMetrics = domain.RiskSection{Warnings: []domain.Warning{*w}}
	}
	checkBudget("risk")

	if w := runStage(log, "forecast", func() error {
		forecasts, warnings := a.stages.Forecast.ForecastAll(ctx, analysed, desc.Series)
		report.Forecasts = forecasts
		report.Warnings = append(report.Warnings, warnings...)
		return nil
	}); w != nil {
		report.Forecasts = map[string]domain.ForecastResult{}
		report.Warnings = append(report.Warnings, *w)
	}
	checkBudget("forecast")

	if w := runStage(log, "optimization", func() error {
		result, warnings := a.stages.Optimization.Optimize(ctx, report.Forecasts, analysed)
		report.Optimization = result
		report.Warnings = append(report.Warnings, warnings...)
		return nil
	}); w != nil {
		report.Optimization = domain.EmptyOptimization()
		report.Warnings = append(report.Warnings, *w)
	}
	checkBudget("optimization")

	switch {
	case req.SkipSummary:
	case overBudget:
		report.AISummary = map[string]string{"note": budgetNote}
		report.Warnings = append(report.Warnings, domain.NewWarning(domain.WarningBudgetExceeded, stageSummary, "",
			"elapsed %.2fs exceeds %.0fs budget, summary skipped", elapsed().Seconds(), a.budget.Seconds()))
	default:
		report.AISummary = a.summarize(ctx, report)
	}

	report.ProcessingTime = roundSeconds(elapsed())

	log.Info().
		Str("report_id", report.ReportID).
		Int("warnings", len(report.Warnings)).
		Float64("processing_time", report.ProcessingTime).
		Msg("Report generated")

	return report, nil
}

func (a *Aggregator) summarize(ctx context.Context, report *domain.PortfolioReport) any {
	var raw json.RawMessage
	if w := runStage(a.log, stageSummary, func() error {
		var err error
		raw, err = a.summarizer.Summarize(ctx, report)
		return err
	}); w != nil {
		report.Warnings = append(report.Warnings, *w)
		return map[string]string{
			"error":   "Failed to generate AI summary",
			"details": w.Message,
		}
	}
	return raw
}

// runStage runs fn as an isolated failure domain: a returned error or a
// panic becomes a stage_failure warning.
func runStage(log zerolog.Logger, stage string, fn func() error) (warning *domain.Warning) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("stage", stage).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Stage panicked")
			w := domain.NewWarning(domain.WarningStageFailure, stage, "", "panic: %v", r)
			warning = &w
		}
	}()

	if err := fn(); err != nil {
		log.Error().Err(err).Str("stage", stage).Msg("Stage failed")
		w := domain.NewWarning(domain.WarningStageFailure, stage, "", "%v", err)
		return &w
	}
	return nil
}

func roundSeconds(d time.Duration) float64 {
	return float64(d.Round(10*time.Millisecond)) / float64(time.Second)
}
