// Package risk computes historical risk diagnostics for a priced portfolio.
package risk

import (
	"context"
	"math"
	"time"

	"github.com/aristath/optiwealth/internal/domain"
	"github.com/aristath/optiwealth/pkg/formulas"
	"github.com/rs/zerolog"
)

const (
	stage = "risk"

	// DefaultBenchmark is the NIFTY 50 index
	DefaultBenchmark = "^NSEI"

	confidence = 0.95
)

// Input is what the risk stage needs from the descriptive stage
type Input struct {
	Symbols []string
	Series  map[string]domain.HistoricalSeries
	// Volatility is the descriptive aggregate volatility, nil when absent
	Volatility *float64
	Start      time.Time
	End        time.Time
}

// Diagnostics computes risk metrics
type Diagnostics struct {
	benchmark string
	log       zerolog.Logger
}

// NewDiagnostics creates the risk stage. An empty benchmark uses DefaultBenchmark.
func NewDiagnostics(benchmark string, log zerolog.Logger) *Diagnostics {
	if benchmark == "" {
		benchmark = DefaultBenchmark
	}
	return &Diagnostics{
		benchmark: benchmark,
		log:       log.With().Str("component", "risk").Logger(),
	}
}

// Benchmark returns the benchmark index symbol
func (d *Diagnostics) Benchmark() string {
	return d.benchmark
}

// Compute builds the risk section. Missing or too-short history produces a
// section without metrics and an insufficient_data warning, never an error.
func (d *Diagnostics) Compute(ctx context.Context, provider domain.SeriesProvider, in Input) domain.RiskSection {
	var section domain.RiskSection

	matrix := BuildPriceMatrix(in.Series, in.Symbols)
	for _, symbol := range matrix.Dropped {
		section.Warnings = append(section.Warnings, domain.NewWarning(
			domain.WarningDataUnavailable, stage, symbol, "excluded from risk metrics: no price history"))
	}

	returns := matrix.Returns()
	if len(returns) == 0 {
		d.log.Warn().
			Int("symbols", len(matrix.Symbols)).
			Int("rows", len(matrix.Rows)).
			Msg("Not enough overlapping history for risk metrics")
		section.Warnings = append(section.Warnings, domain.NewWarning(
			domain.WarningInsufficientData, stage, "",
			"need at least 2 common dates across holdings, have %d", len(matrix.Rows)))
		return section
	}

	metrics := &domain.RiskMetrics{
		Symbols:      matrix.Symbols,
		Observations: len(returns),
	}

	corr, flat := correlationMatrix(matrix.Symbols, returns)
	metrics.CorrelationMatrix = corr
	metrics.DiversificationScore = diversificationScore(matrix.Symbols, corr)
	for _, symbol := range flat {
		section.Warnings = append(section.Warnings, domain.NewWarning(
			domain.WarningInsufficientData, stage, symbol, "zero return variance, correlation set to 0"))
	}

	if in.Volatility != nil {
		metrics.PortfolioVolatility = domain.Float(math.Sqrt(*in.Volatility * *in.Volatility))
	}

	portfolio := equalWeightReturns(returns)
	metrics.ValueAtRisk95 = domain.Float(formulas.ValueAtRisk(portfolio, confidence))
	metrics.ConditionalVaR95 = domain.Float(formulas.ConditionalVaR(portfolio, confidence))
	metrics.MaxDrawdown = domain.Float(formulas.MaxDrawdown(portfolio))

	betas, w := d.betas(ctx, provider, matrix, in.Start, in.End)
	metrics.Betas = betas
	if w != nil {
		section.Warnings = append(section.Warnings, *w)
	}

	section.Metrics = metrics

	d.log.Debug().
		Int("symbols", len(matrix.Symbols)).
		Int("observations", metrics.Observations).
		Float64("diversification_score", metrics.DiversificationScore).
		Msg("Risk metrics computed")

	return section
}

// correlationMatrix returns pairwise Pearson correlations with a unit diagonal.
// Symbols whose returns have no variance are reported in flat.
func correlationMatrix(symbols []string, returns [][]float64) (map[string]map[string]float64, []string) {
	n := len(symbols)
	cols := make([][]float64, n)
	constant := make([]bool, n)
	var flat []string
	for c := 0; c < n; c++ {
		cols[c] = Column(returns, c)
		if v, ok := formulas.SampleVariance(cols[c]); !ok || v == 0 {
			constant[c] = true
			flat = append(flat, symbols[c])
		}
	}

	corr := make(map[string]map[string]float64, n)
	for _, s := range symbols {
		corr[s] = make(map[string]float64, n)
	}
	for i := 0; i < n; i++ {
		corr[symbols[i]][symbols[i]] = 1
		for j := i + 1; j < n; j++ {
			var c float64
			if !constant[i] && !constant[j] {
				c = formulas.Correlation(cols[i], cols[j])
			}
			corr[symbols[i]][symbols[j]] = c
			corr[symbols[j]][symbols[i]] = c
		}
	}
	return corr, flat
}

// diversificationScore is (1 - mean |corr|) * 100 over the full matrix, diagonal included
func diversificationScore(symbols []string, corr map[string]map[string]float64) float64 {
	n := len(symbols)
	if n == 0 {
		return 0
	}
	var sum float64
	for _, a := range symbols {
		for _, b := range symbols {
			sum += math.Abs(corr[a][b])
		}
	}
	return (1 - sum/float64(n*n)) * 100
}

func equalWeightReturns(returns [][]float64) []float64 {
	out := make([]float64, len(returns))
	for i, row := range returns {
		out[i] = formulas.Mean(row)
	}
	return out
}

// betas computes each symbol's beta against the benchmark on common dates.
// A missing or constant benchmark leaves every beta nil.
func (d *Diagnostics) betas(ctx context.Context, provider domain.SeriesProvider, matrix PriceMatrix, start, end time.Time) (map[string]*float64, *domain.Warning) {
	betas := make(map[string]*float64, len(matrix.Symbols))
	for _, symbol := range matrix.Symbols {
		betas[symbol] = nil
	}

	bench, w := provider.Fetch(ctx, d.benchmark, start, end)
	if w != nil || len(bench.Bars) < 2 {
		warning := domain.NewWarning(domain.WarningDataUnavailable, stage, d.benchmark,
			"benchmark history unavailable, betas omitted")
		return betas, &warning
	}
	benchReturns := datedReturns(bench.Dates(), bench.Closes())

	for c, symbol := range matrix.Symbols {
		asset := datedReturns(matrix.Dates, Column(matrix.Rows, c))
		x, y := alignReturns(asset, benchReturns)
		variance, ok := formulas.SampleVariance(y)
		if !ok || variance == 0 {
			continue
		}
		betas[symbol] = domain.Float(formulas.Covariance(x, y) / variance)
	}

	return betas, nil
}
