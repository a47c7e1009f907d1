// Package toppicks ranks the configured symbol universe by risk-adjusted momentum.
package toppicks

import (
	"math"
	"sort"

	"github.com/aristath/optiwealth/pkg/formulas"
)

// Period is a named ranking window
type Period struct {
	Name string
	Rows int // trailing daily rows; 0 uses the whole download
}

// Periods are ranked on every run, shortest first
var Periods = []Period{
	{Name: "1M", Rows: 22},
	{Name: "3M", Rows: 66},
	{Name: "6M+", Rows: 0},
}

// DefaultTop is the number of picks kept per period
const DefaultTop = 5

// Score is the momentum ranking of one symbol inside a window
type Score struct {
	Symbol     string
	Return     float64 // last/first - 1
	Volatility float64 // sample std-dev of daily returns
	Score      float64 // Return / Volatility
	LastPrice  float64
}

// LookupPeriod finds a period by name
func LookupPeriod(name string) (Period, bool) {
	for _, p := range Periods {
		if p.Name == name {
			return p, true
		}
	}
	return Period{}, false
}

// Window returns the trailing rows of closes covered by the period
func (p Period) Window(closes []float64) []float64 {
	if p.Rows <= 0 || len(closes) <= p.Rows {
		return closes
	}
	return closes[len(closes)-p.Rows:]
}

// Ranker scores closes by return over volatility
type Ranker struct {
	Top int
}

// Score ranks every symbol with a finite score, best first.
// Ties are broken by symbol so the ordering is stable.
func (r Ranker) Score(closes map[string][]float64) []Score {
	scores := make([]Score, 0, len(closes))
	for symbol, series := range closes {
		if len(series) < 3 || series[0] <= 0 {
			continue
		}

		vol, ok := formulas.SampleStdDev(formulas.CalculateReturns(series))
		if !ok {
			continue
		}
		last := series[len(series)-1]
		ret := last/series[0] - 1
		score := ret / vol
		if math.IsNaN(score) || math.IsInf(score, 0) {
			continue
		}

		scores = append(scores, Score{
			Symbol:     symbol,
			Return:     ret,
			Volatility: vol,
			Score:      score,
			LastPrice:  last,
		})
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].Symbol < scores[j].Symbol
	})
	return scores
}

// Rank scores the period window of every series and keeps the best Top
func (r Ranker) Rank(closes map[string][]float64, period Period) []Score {
	windowed := make(map[string][]float64, len(closes))
	for symbol, series := range closes {
		windowed[symbol] = period.Window(series)
	}

	scores := r.Score(windowed)
	top := r.Top
	if top <= 0 {
		top = DefaultTop
	}
	return scores[:min(top, len(scores))]
}
