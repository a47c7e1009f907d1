package optimization

import (
	"context"
	"math"
	"testing"

	"github.com/aristath/optiwealth/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usableForecast(symbol string, ret, vol float64) domain.ForecastResult {
	return domain.ForecastResult{
		Symbol:             symbol,
		ExpectedReturn:     &ret,
		TrendDirection:     domain.TrendUp,
		VolatilityForecast: &domain.VolatilityForecast{Average: &vol, Trend: domain.VolatilityStable},
	}
}

func testEngine(workers int) *Engine {
	return NewEngine(Config{FrontierSimulations: 5000, CVaRSimulations: 10000, Seed: 42, Workers: workers}, zerolog.Nop())
}

func sumWeights(p domain.PortfolioCandidate) float64 {
	var s float64
	for _, w := range p.Weights {
		s += w
	}
	return s
}

func TestInputs_ExcludesUnusable(t *testing.T) {
	forecasts := map[string]domain.ForecastResult{
		"A.NS": usableForecast("A.NS", 0.001, 0.02),
		"B.NS": {Symbol: "B.NS", Error: "no valid returns"},
		"C.NS": {Symbol: "C.NS", VolatilityForecast: &domain.VolatilityForecast{Trend: domain.VolatilityUnknown}},
	}

	inputs, warnings := Inputs(forecasts, []string{"A.NS", "B.NS", "C.NS", "D.NS"})

	require.Len(t, inputs, 1)
	assert.Equal(t, "A.NS", inputs[0].Symbol)
	assert.Len(t, warnings, 2)
}

func TestOptimize_RepeatedSymbol(t *testing.T) {
	forecasts := map[string]domain.ForecastResult{
		"A.NS": usableForecast("A.NS", 0.002, 0.03),
		"B.NS": usableForecast("B.NS", 0.001, 0.015),
	}

	inputs, _ := Inputs(forecasts, []string{"A.NS", "A.NS", "B.NS"})
	require.Len(t, inputs, 2)

	result, _ := testEngine(2).Optimize(context.Background(), forecasts, []string{"A.NS", "A.NS", "B.NS"})
	for _, p := range []domain.PortfolioCandidate{result.MaxSharpe, result.MinVolatility} {
		require.Len(t, p.Weights, 2)
		assert.InDelta(t, 1.0, sumWeights(p), 1e-6)
	}
}

func TestOptimize(t *testing.T) {
	forecasts := map[string]domain.ForecastResult{
		"RVNL.NS": usableForecast("RVNL.NS", 0.002, 0.03),
		"BEL.NS":  usableForecast("BEL.NS", 0.001, 0.015),
		"ITC.NS":  usableForecast("ITC.NS", 0.0005, 0.01),
	}
	symbols := []string{"RVNL.NS", "BEL.NS", "ITC.NS"}

	result, warnings := testEngine(4).Optimize(context.Background(), forecasts, symbols)
	assert.Empty(t, warnings)

	for _, p := range []domain.PortfolioCandidate{result.MaxSharpe, result.MinVolatility} {
		require.Len(t, p.Weights, 3)
		assert.InDelta(t, 1.0, sumWeights(p), 1e-6)
		for _, w := range p.Weights {
			assert.GreaterOrEqual(t, w, 0.0)
		}
	}

	assert.GreaterOrEqual(t, result.MaxSharpe.SharpeRatio, result.MinVolatility.SharpeRatio)
	assert.LessOrEqual(t, result.MinVolatility.Volatility, result.MaxSharpe.Volatility)

	// inverse-variance weights are the true minimum, the search should lean on ITC
	assert.Greater(t, result.MinVolatility.Weights["ITC.NS"], result.MinVolatility.Weights["RVNL.NS"])

	require.NotNil(t, result.PortfolioCVaR95)
	assert.Less(t, *result.PortfolioCVaR95, 0.0)
}

func TestOptimize_DeterministicAcrossWorkers(t *testing.T) {
	forecasts := map[string]domain.ForecastResult{
		"A.NS": usableForecast("A.NS", 0.002, 0.03),
		"B.NS": usableForecast("B.NS", -0.001, 0.02),
	}
	symbols := []string{"A.NS", "B.NS"}

	one, _ := testEngine(1).Optimize(context.Background(), forecasts, symbols)
	many, _ := testEngine(8).Optimize(context.Background(), forecasts, symbols)

	assert.Equal(t, one, many)
}

func TestOptimize_Empty(t *testing.T) {
	result, _ := testEngine(2).Optimize(context.Background(), map[string]domain.ForecastResult{}, []string{"A.NS"})

	assert.NotNil(t, result.MaxSharpe.Weights)
	assert.Empty(t, result.MaxSharpe.Weights)
	assert.Empty(t, result.MinVolatility.Weights)
	assert.Nil(t, result.PortfolioCVaR95)
}

func TestEfficientFrontier_SingleAsset(t *testing.T) {
	maxSharpe, minVol := testEngine(2).EfficientFrontier(context.Background(), []Input{{Symbol: "A.NS", ExpectedReturn: 0.01, Volatility: 0.02}}, 1)

	assert.InDelta(t, 1.0, maxSharpe.Weights["A.NS"], 1e-12)
	assert.InDelta(t, 0.5, maxSharpe.SharpeRatio, 1e-9)
	assert.InDelta(t, 0.02, minVol.Volatility, 1e-12)
}

func TestEfficientFrontier_ZeroVolatility(t *testing.T) {
	inputs := []Input{{Symbol: "A.NS", ExpectedReturn: 0.01}, {Symbol: "B.NS", ExpectedReturn: 0.02}}
	maxSharpe, minVol := testEngine(2).EfficientFrontier(context.Background(), inputs, 3)

	assert.InDelta(t, 1.0, sumWeights(maxSharpe), 1e-9)
	assert.Equal(t, minVol, maxSharpe)
	assert.False(t, math.IsNaN(maxSharpe.SharpeRatio))
}

func TestPortfolioCVaR(t *testing.T) {
	e := testEngine(4)
	inputs := []Input{{Symbol: "A.NS", ExpectedReturn: 0, Volatility: 0.02}}

	cvar := e.PortfolioCVaR(context.Background(), inputs, 7)
	require.NotNil(t, cvar)
	// E[X | X <= q05] for N(0, 0.02) is about -2.063 sigma
	assert.InDelta(t, -0.04126, *cvar, 0.003)

	again := e.PortfolioCVaR(context.Background(), inputs, 7)
	assert.Equal(t, *cvar, *again)
}

func TestBetter_TieBreaksOnIndex(t *testing.T) {
	a := &candidate{idx: 3, sharpe: 1, scored: true}
	b := &candidate{idx: 7, sharpe: 1, scored: true}

	assert.True(t, better(a, b, bySharpe))
	assert.False(t, better(b, a, bySharpe))
	assert.True(t, better(b, nil, byVolatility))
}
