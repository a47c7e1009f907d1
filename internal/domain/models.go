// Package domain provides core domain models and types.
package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrInvalidHolding is returned when a holding fails input validation
var ErrInvalidHolding = errors.New("invalid holding")

// Holding is one position of the analysed portfolio
type Holding struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	AvgCost  float64 `json:"avgCost"`
}

// Validate checks that the holding can be analysed
func (h Holding) Validate() error {
	if strings.TrimSpace(h.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidHolding)
	}
	if !(h.Quantity > 0) {
		return fmt.Errorf("%w: %s quantity must be positive", ErrInvalidHolding, h.Symbol)
	}
	if !(h.AvgCost > 0) {
		return fmt.Errorf("%w: %s avgCost must be positive", ErrInvalidHolding, h.Symbol)
	}
	return nil
}

// MergeHoldings folds repeated symbols into one position in first-seen
// order. Quantities add up and AvgCost becomes the quantity-weighted mean.
func MergeHoldings(holdings []Holding) []Holding {
	merged := make([]Holding, 0, len(holdings))
	index := make(map[string]int, len(holdings))
	for _, h := range holdings {
		i, ok := index[h.Symbol]
		if !ok {
			index[h.Symbol] = len(merged)
			merged = append(merged, h)
			continue
		}
		prev := merged[i]
		qty := prev.Quantity + h.Quantity
		merged[i].AvgCost = (prev.AvgCost*prev.Quantity + h.AvgCost*h.Quantity) / qty
		merged[i].Quantity = qty
	}
	return merged
}

// Quote is a point-in-time market quote
type Quote struct {
	Timestamp     time.Time `json:"timestamp"`
	Symbol        string    `json:"symbol"`
	CurrentPrice  float64   `json:"currentPrice"`
	PreviousClose *float64  `json:"previousClose,omitempty"`
}

// PriceBar is one daily OHLCV observation
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// HistoricalSeries is an ascending, date-unique sequence of bars.
// An empty Bars slice means the provider could not supply data.
type HistoricalSeries struct {
	Symbol string     `json:"symbol"`
	Bars   []PriceBar `json:"bars"`
}

// EmptySeries returns a non-nil series with no bars
func EmptySeries(symbol string) HistoricalSeries {
	return HistoricalSeries{Symbol: symbol, Bars: []PriceBar{}}
}

// IsEmpty reports whether the series carries no bars
func (s HistoricalSeries) IsEmpty() bool {
	return len(s.Bars) == 0
}

// Closes returns the close prices in date order
func (s HistoricalSeries) Closes() []float64 {
	closes := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		closes[i] = b.Close
	}
	return closes
}

// Dates returns the bar dates in order
func (s HistoricalSeries) Dates() []time.Time {
	dates := make([]time.Time, len(s.Bars))
	for i, b := range s.Bars {
		dates[i] = b.Date
	}
	return dates
}

// LastClose returns the most recent close, if any
func (s HistoricalSeries) LastClose() (float64, bool) {
	if len(s.Bars) == 0 {
		return 0, false
	}
	return s.Bars[len(s.Bars)-1].Close, true
}

// DerivedMetrics are the per-holding statistics computed from a series.
// A nil field means the value could not be computed.
type DerivedMetrics struct {
	AverageDailyReturn *float64 `json:"averageDailyReturn"`
	Volatility         *float64 `json:"volatility"`
	SharpeRatio        *float64 `json:"sharpeRatio"`
	CumulativeReturn   *float64 `json:"cumulativeReturn"`
}

// HoldingAnalysis combines a holding, its quote and its metrics
type HoldingAnalysis struct {
	Timestamp time.Time `json:"timestamp"`
	Holding
	DerivedMetrics
	CurrentPrice   float64 `json:"currentPrice"`
	CurrentValue   float64 `json:"currentValue"`
	Profit         float64 `json:"profit"`
	ProfitPercent  float64 `json:"profitPercent"`
	CurrentPercent float64 `json:"currentPercent"`
}

// PortfolioSummary is the descriptive section of the report
type PortfolioSummary struct {
	Holdings           []HoldingAnalysis `json:"holdings"`
	PortfolioValue     float64           `json:"portfolioValue"`
	TotalCost          float64           `json:"totalCost"`
	Profit             float64           `json:"profit"`
	ProfitPercent      float64           `json:"profitPercent"`
	AverageDailyReturn *float64          `json:"averageDailyReturn"`
	Volatility         *float64          `json:"volatility"`
	SharpeRatio        *float64          `json:"sharpeRatio"`
}

// RiskMetrics holds the historical risk diagnostics of the portfolio
type RiskMetrics struct {
	CorrelationMatrix    map[string]map[string]float64 `json:"correlationMatrix"`
	Betas                map[string]*float64           `json:"betas"`
	PortfolioVolatility  *float64                      `json:"portfolioVolatility"`
	ValueAtRisk95        *float64                      `json:"valueAtRisk95"`
	ConditionalVaR95     *float64                      `json:"conditionalVaR95"`
	MaxDrawdown          *float64                      `json:"maxDrawdown"`
	Symbols              []string                      `json:"symbols"`
	DiversificationScore float64                       `json:"diversificationScore"`
	Observations         int                           `json:"observations"`
}

// RiskSection is the risk part of the report. Metrics is nil when
// there was not enough overlapping history.
type RiskSection struct {
	Metrics  *RiskMetrics `json:"metrics"`
	Warnings []Warning    `json:"warnings,omitempty"`
}

// Trend directions reported by forecasts
const (
	TrendUp   = "up"
	TrendDown = "down"
	TrendFlat = "flat"

	VolatilityIncreasing = "increasing"
	VolatilityDecreasing = "decreasing"
	VolatilityStable     = "stable"
	VolatilityUnknown    = "unknown"
)

// VolatilityForecast summarises the conditional variance path
type VolatilityForecast struct {
	Average *float64 `json:"average"`
	Trend   string   `json:"trend"`
}

// PriceRange summarises Monte Carlo terminal prices
type PriceRange struct {
	Expected       float64    `json:"expected"`
	Min            float64    `json:"min"`
	Max            float64    `json:"max"`
	PctChangeRange [2]float64 `json:"pctChangeRange"`
}

// ForecastResult is the per-symbol forecast. Error is set when the
// symbol could not be forecast at all.
type ForecastResult struct {
	Symbol             string              `json:"symbol"`
	Error              string              `json:"error,omitempty"`
	CurrentPrice       *float64            `json:"currentPrice,omitempty"`
	ExpectedReturn     *float64            `json:"expectedReturn,omitempty"`
	TrendDirection     string              `json:"trendDirection,omitempty"`
	VolatilityForecast *VolatilityForecast `json:"volatilityForecast,omitempty"`
	PriceRange         *PriceRange         `json:"priceRange,omitempty"`
}

// Usable reports whether the forecast can feed the optimizer
func (f ForecastResult) Usable() bool {
	return f.Error == "" && f.ExpectedReturn != nil &&
		f.VolatilityForecast != nil && f.VolatilityForecast.Average != nil
}

// PortfolioCandidate is one simulated allocation
type PortfolioCandidate struct {
	Weights        map[string]float64 `json:"weights"`
	ExpectedReturn float64            `json:"expectedReturn"`
	Volatility     float64            `json:"volatility"`
	SharpeRatio    float64            `json:"sharpeRatio"`
}

// OptimizationResult is the output of the frontier search
type OptimizationResult struct {
	MaxSharpe       PortfolioCandidate `json:"maxSharpe"`
	MinVolatility   PortfolioCandidate `json:"minVolatility"`
	PortfolioCVaR95 *float64           `json:"portfolioCVaR95"`
}

// EmptyOptimization returns the degenerate optimization result
func EmptyOptimization() OptimizationResult {
	return OptimizationResult{
		MaxSharpe:     PortfolioCandidate{Weights: map[string]float64{}},
		MinVolatility: PortfolioCandidate{Weights: map[string]float64{}},
	}
}

// PortfolioReport is the consolidated analytics output
type PortfolioReport struct {
	GeneratedAt    time.Time                 `json:"generatedAt"`
	ReportID       string                    `json:"reportId"`
	PortfolioID    string                    `json:"portfolioId,omitempty"`
	Portfolio      PortfolioSummary          `json:"portfolio"`
	RiskMetrics    RiskSection               `json:"riskMetrics"`
	Forecasts      map[string]ForecastResult `json:"forecasts"`
	Optimization   OptimizationResult        `json:"optimization"`
	AISummary      any                       `json:"aiSummary,omitempty"`
	Warnings       []Warning                 `json:"warnings"`
	ProcessingTime float64                   `json:"processingTime"`
}

// Float returns a pointer to v, or nil when v is not finite
func Float(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
