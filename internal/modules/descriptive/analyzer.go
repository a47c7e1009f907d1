// Package descriptive computes per-holding P&L and return statistics.
package descriptive

import (
	"context"
	"errors"
	"time"

	"github.com/aristath/optiwealth/internal/domain"
	"github.com/aristath/optiwealth/internal/modules/marketdata"
	"github.com/aristath/optiwealth/pkg/formulas"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrAllHoldingsInvalid is returned when no holding could be priced
var ErrAllHoldingsInvalid = errors.New("all holdings invalid: no current quote for any symbol")

// Config controls the analyzer
type Config struct {
	RiskFreeRate      float64 // annual
	HistoryWindowDays int
}

// Analyzer computes descriptive statistics for holdings
type Analyzer struct {
	cfg Config
	now func() time.Time
	log zerolog.Logger
}

// NewAnalyzer creates a descriptive analyzer
func NewAnalyzer(cfg Config, log zerolog.Logger) *Analyzer {
	if cfg.HistoryWindowDays <= 0 {
		cfg.HistoryWindowDays = 365
	}
	return &Analyzer{
		cfg: cfg,
		now: time.Now,
		log: log.With().Str("component", "descriptive").Logger(),
	}
}

// Result is the descriptive section plus the data later stages reuse
type Result struct {
	Summary  domain.PortfolioSummary
	Series   map[string]domain.HistoricalSeries
	Warnings []domain.Warning
	Start    time.Time
	End      time.Time
}

// Symbols returns the analysed symbols in holding order
func (r *Result) Symbols() []string {
	symbols := make([]string, len(r.Summary.Holdings))
	for i, h := range r.Summary.Holdings {
		symbols[i] = h.Symbol
	}
	return symbols
}

// Window returns the trailing history window used by the analyzer
func (a *Analyzer) Window() (time.Time, time.Time) {
	return marketdata.TrailingWindow(a.now(), a.cfg.HistoryWindowDays)
}

// ComputeMetrics derives return statistics from a price series.
// Fields stay nil when they cannot be computed.
func (a *Analyzer) ComputeMetrics(series domain.HistoricalSeries) domain.DerivedMetrics {
	var m domain.DerivedMetrics

	closes := series.Closes()
	if len(closes) == 0 {
		return m
	}
	m.CumulativeReturn = domain.Float(formulas.CumulativeReturn(closes))

	returns := formulas.CalculateReturns(closes)
	if len(returns) == 0 {
		return m
	}

	avg := formulas.Mean(returns)
	m.AverageDailyReturn = domain.Float(avg)

	vol, ok := formulas.SampleStdDev(returns)
	if !ok {
		return m
	}
	m.Volatility = domain.Float(vol)

	if vol > 0 {
		dailyRiskFree := a.cfg.RiskFreeRate / formulas.TradingDaysPerYear
		m.SharpeRatio = domain.Float((avg - dailyRiskFree) / vol)
	}

	return m
}

// AnalyzeHolding prices one holding. Returns nil when no quote is available;
// missing history only leaves the derived metrics unset.
func (a *Analyzer) AnalyzeHolding(ctx context.Context, provider domain.SeriesProvider, h domain.Holding) (*domain.HoldingAnalysis, domain.HistoricalSeries, []domain.Warning) {
	var warnings []domain.Warning

	quote, w := provider.Quote(ctx, h.Symbol)
	if w != nil {
		warnings = append(warnings, *w)
	}
	if quote == nil {
		return nil, domain.EmptySeries(h.Symbol), warnings
	}

	start, end := a.Window()
	series, w := provider.Fetch(ctx, h.Symbol, start, end)
	if w != nil {
		warnings = append(warnings, *w)
	}

	price := decimal.NewFromFloat(quote.CurrentPrice)
	qty := decimal.NewFromFloat(h.Quantity)
	cost := decimal.NewFromFloat(h.AvgCost).Mul(qty)
	value := price.Mul(qty)
	profit := value.Sub(cost)

	analysis := &domain.HoldingAnalysis{
		Timestamp:      quote.Timestamp,
		Holding:        h,
		DerivedMetrics: a.ComputeMetrics(series),
		CurrentPrice:   quote.CurrentPrice,
		CurrentValue:   money(value),
		Profit:         money(profit),
		ProfitPercent:  percentOf(profit, cost),
	}
	if analysis.Timestamp.IsZero() {
		analysis.Timestamp = a.now()
	}

	return analysis, series, warnings
}

// AnalyzePortfolio analyses every holding and aggregates the portfolio.
// Repeated symbols are merged into one position first.
// Returns ErrAllHoldingsInvalid when no holding could be priced.
func (a *Analyzer) AnalyzePortfolio(ctx context.Context, provider domain.SeriesProvider, holdings []domain.Holding) (*Result, error) {
	holdings = domain.MergeHoldings(holdings)
	start, end := a.Window()
	result := &Result{
		Series: make(map[string]domain.HistoricalSeries, len(holdings)),
		Start:  start,
		End:    end,
	}

	analyses := make([]domain.HoldingAnalysis, 0, len(holdings))
	totalValue := decimal.Zero
	totalCost := decimal.Zero

	for _, h := range holdings {
		analysis, series, warnings := a.AnalyzeHolding(ctx, provider, h)
		result.Warnings = append(result.Warnings, warnings...)
		if analysis == nil {
			a.log.Warn().Str("symbol", h.Symbol).Msg("Dropping holding without quote")
			continue
		}

		qty := decimal.NewFromFloat(h.Quantity)
		totalValue = totalValue.Add(decimal.NewFromFloat(analysis.CurrentPrice).Mul(qty))
		totalCost = totalCost.Add(decimal.NewFromFloat(h.AvgCost).Mul(qty))

		analyses = append(analyses, *analysis)
		result.Series[h.Symbol] = series
	}

	if len(analyses) == 0 {
		return nil, ErrAllHoldingsInvalid
	}

	if totalValue.IsPositive() {
		for i := range analyses {
			v := decimal.NewFromFloat(analyses[i].CurrentPrice).Mul(decimal.NewFromFloat(analyses[i].Quantity))
			analyses[i].CurrentPercent = v.Div(totalValue).Mul(decimal.NewFromInt(100)).InexactFloat64()
		}
	}

	profit := totalValue.Sub(totalCost)
	summary := domain.PortfolioSummary{
		Holdings:       analyses,
		PortfolioValue: money(totalValue),
		TotalCost:      money(totalCost),
		Profit:         money(profit),
		ProfitPercent:  percentOf(profit, totalCost),
	}

	var avgReturns, vols, sharpes []float64
	for _, h := range analyses {
		avgReturns = appendPresent(avgReturns, h.AverageDailyReturn)
		vols = appendPresent(vols, h.Volatility)
		sharpes = appendPresent(sharpes, h.SharpeRatio)
	}
	summary.AverageDailyReturn = meanOfPresent(avgReturns)
	summary.Volatility = meanOfPresent(vols)
	summary.SharpeRatio = meanOfPresent(sharpes)

	result.Summary = summary

	a.log.Debug().
		Int("holdings", len(analyses)).
		Int("dropped", len(holdings)-len(analyses)).
		Float64("portfolio_value", summary.PortfolioValue).
		Msg("Portfolio analysed")

	return result, nil
}

// money rounds half away from zero to two decimals
func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// percentOf returns part/whole*100 rounded to two decimals, 0 when whole is not positive
func percentOf(part, whole decimal.Decimal) float64 {
	if !whole.IsPositive() {
		return 0
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
}

func appendPresent(values []float64, v *float64) []float64 {
	if v == nil {
		return values
	}
	return append(values, *v)
}

func meanOfPresent(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	return domain.Float(formulas.Mean(values))
}
