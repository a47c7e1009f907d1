// Package forecast produces per-symbol return, volatility and price range forecasts.
package forecast

import (
	"context"
	"errors"
	"hash/fnv"
	"math/rand/v2"
	"runtime"
	"sort"
	"sync"

	"github.com/aristath/optiwealth/internal/domain"
	"github.com/aristath/optiwealth/pkg/formulas"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const stage = "forecast"

// ErrNoValidReturns is reported for series with fewer than two closes
var ErrNoValidReturns = errors.New("no valid returns")

// Config controls the forecast horizon and Monte Carlo size
type Config struct {
	Steps       int
	Simulations int
	// Seed fixes the Monte Carlo streams; 0 draws a fresh seed per run
	Seed    uint64
	Workers int
}

// Engine runs the forecasting models
type Engine struct {
	cfg Config
	log zerolog.Logger
}

// NewEngine creates a forecast engine
func NewEngine(cfg Config, log zerolog.Logger) *Engine {
	if cfg.Steps <= 0 {
		cfg.Steps = 30
	}
	if cfg.Simulations <= 0 {
		cfg.Simulations = 100
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Engine{
		cfg: cfg,
		log: log.With().Str("component", "forecast").Logger(),
	}
}

// Summarize runs ARIMA, GARCH and Monte Carlo for one series
func (e *Engine) Summarize(symbol string, series domain.HistoricalSeries, seed uint64) (domain.ForecastResult, []domain.Warning) {
	result := domain.ForecastResult{Symbol: symbol}
	var warnings []domain.Warning

	closes := series.Closes()
	returns := formulas.CalculateReturns(closes)
	if len(returns) == 0 {
		result.Error = ErrNoValidReturns.Error()
		warnings = append(warnings, domain.NewWarning(domain.WarningInsufficientData, stage, symbol, "%s", result.Error))
		return result, warnings
	}

	current, _ := series.LastClose()
	result.CurrentPrice = domain.Float(current)

	arima, err := ForecastARIMA(returns, e.cfg.Steps)
	if err != nil {
		warnings = append(warnings, modelWarning(symbol, "arima", err))
	}
	garch, err := ForecastGARCH(returns, e.cfg.Steps)
	if err != nil {
		warnings = append(warnings, modelWarning(symbol, "garch", err))
	}

	result.ExpectedReturn = finiteMean(arima)
	result.TrendDirection = trendOf(result.ExpectedReturn)
	result.VolatilityForecast = &domain.VolatilityForecast{
		Average: finiteMean(garch),
		Trend:   volatilityTrend(garch),
	}

	mu := formulas.Mean(returns)
	sigma, _ := formulas.SampleStdDev(returns)
	paths := SimulatePaths(current, mu, sigma, e.cfg.Steps, e.cfg.Simulations, seed)
	result.PriceRange = priceRange(current, terminalPrices(paths))

	return result, warnings
}

// ForecastAll forecasts every symbol concurrently. Symbols without history
// are skipped with a warning.
func (e *Engine) ForecastAll(ctx context.Context, symbols []string, series map[string]domain.HistoricalSeries) (map[string]domain.ForecastResult, []domain.Warning) {
	var (
		mu       sync.Mutex
		results  = make(map[string]domain.ForecastResult, len(symbols))
		warnings []domain.Warning
	)

	base := e.cfg.Seed
	if base == 0 {
		base = rand.Uint64()
	}

	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Workers)
	for _, symbol := range symbols {
		s, ok := series[symbol]
		if !ok || s.IsEmpty() {
			mu.Lock()
			warnings = append(warnings, domain.NewWarning(domain.WarningDataUnavailable, stage, symbol,
				"no price history, forecast skipped"))
			mu.Unlock()
			continue
		}
		if canceled(ctx) {
			mu.Lock()
			warnings = append(warnings, domain.NewWarning(domain.WarningBudgetExceeded, stage, symbol,
				"forecast skipped: %v", ctx.Err()))
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			result, ws := e.Summarize(symbol, s, symbolSeed(base, symbol))
			mu.Lock()
			results[symbol] = result
			warnings = append(warnings, ws...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(warnings, func(i, j int) bool {
		return warnings[i].Symbol < warnings[j].Symbol
	})

	e.log.Debug().
		Int("symbols", len(results)).
		Int("warnings", len(warnings)).
		Msg("Forecasts generated")

	return results, warnings
}

// symbolSeed gives every symbol its own stream family under one base seed
func symbolSeed(base uint64, symbol string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	return base ^ h.Sum64()
}

func modelWarning(symbol, model string, err error) domain.Warning {
	kind := domain.WarningModelFitting
	if errors.Is(err, ErrInsufficientData) {
		kind = domain.WarningInsufficientData
	}
	return domain.NewWarning(kind, stage, symbol, "%s: %v", model, err)
}

func finiteMean(values []float64) *float64 {
	finite := formulas.FiniteValues(values)
	if len(finite) == 0 {
		return nil
	}
	return domain.Float(formulas.Mean(finite))
}

func trendOf(expected *float64) string {
	switch {
	case expected == nil:
		return domain.TrendFlat
	case *expected > 0:
		return domain.TrendUp
	case *expected < 0:
		return domain.TrendDown
	default:
		return domain.TrendFlat
	}
}

func volatilityTrend(path []float64) string {
	if len(path) == 0 || !formulas.AllFinite(path) {
		return domain.VolatilityUnknown
	}
	first, last := path[0], path[len(path)-1]
	switch {
	case last > first:
		return domain.VolatilityIncreasing
	case last < first:
		return domain.VolatilityDecreasing
	default:
		return domain.VolatilityStable
	}
}

func priceRange(current float64, terminal []float64) *domain.PriceRange {
	if len(terminal) == 0 || current <= 0 {
		return nil
	}

	lo, hi := terminal[0], terminal[0]
	for _, p := range terminal[1:] {
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}

	return &domain.PriceRange{
		Expected: formulas.Round(formulas.Mean(terminal), 2),
		Min:      formulas.Round(lo, 2),
		Max:      formulas.Round(hi, 2),
		PctChangeRange: [2]float64{
			formulas.Round((lo-current)/current*100, 2),
			formulas.Round((hi-current)/current*100, 2),
		},
	}
}
