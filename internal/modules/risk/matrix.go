package risk

import (
	"sort"
	"time"

	"github.com/aristath/optiwealth/internal/domain"
	"github.com/aristath/optiwealth/pkg/formulas"
)

// PriceMatrix is a date-aligned close matrix. Rows are dates present in
// every included symbol, columns follow Symbols.
type PriceMatrix struct {
	Symbols []string
	Dates   []time.Time
	Rows    [][]float64
	// Dropped lists symbols excluded because their series was empty
	Dropped []string
}

// BuildPriceMatrix aligns the series of symbols on their common dates.
// A repeated symbol gets a single column.
func BuildPriceMatrix(series map[string]domain.HistoricalSeries, symbols []string) PriceMatrix {
	var m PriceMatrix

	seen := make(map[string]bool, len(symbols))
	byDay := make([]map[string]float64, 0, len(symbols))
	for _, symbol := range symbols {
		if seen[symbol] {
			continue
		}
		seen[symbol] = true

		s, ok := series[symbol]
		if !ok || s.IsEmpty() {
			m.Dropped = append(m.Dropped, symbol)
			continue
		}
		closes := make(map[string]float64, len(s.Bars))
		for _, b := range s.Bars {
			closes[dayKey(b.Date)] = b.Close
		}
		m.Symbols = append(m.Symbols, symbol)
		byDay = append(byDay, closes)
	}

	if len(m.Symbols) == 0 {
		return m
	}

	// walk the first symbol's dates and keep those every other symbol has
	first := series[m.Symbols[0]]
	for _, b := range first.Bars {
		key := dayKey(b.Date)
		row := make([]float64, len(m.Symbols))
		complete := true
		for i, closes := range byDay {
			v, ok := closes[key]
			if !ok {
				complete = false
				break
			}
			row[i] = v
		}
		if complete {
			m.Dates = append(m.Dates, b.Date)
			m.Rows = append(m.Rows, row)
		}
	}

	return m
}

// Returns computes row-wise percent changes, one row shorter than the matrix
func (m PriceMatrix) Returns() [][]float64 {
	if len(m.Rows) < 2 {
		return nil
	}
	returns := make([][]float64, len(m.Rows)-1)
	for r := 1; r < len(m.Rows); r++ {
		row := make([]float64, len(m.Symbols))
		for c := range m.Symbols {
			prev := m.Rows[r-1][c]
			if prev != 0 {
				row[c] = (m.Rows[r][c] - prev) / prev
			}
		}
		returns[r-1] = row
	}
	return returns
}

// Column extracts one column of a row-major matrix
func Column(rows [][]float64, c int) []float64 {
	col := make([]float64, len(rows))
	for r, row := range rows {
		col[r] = row[c]
	}
	return col
}

// datedReturns maps the date of each return's closing bar to the return
func datedReturns(dates []time.Time, closes []float64) map[string]float64 {
	returns := formulas.CalculateReturns(closes)
	out := make(map[string]float64, len(returns))
	for i, r := range returns {
		out[dayKey(dates[i+1])] = r
	}
	return out
}

// alignReturns pairs two dated return maps on their common days in date order
func alignReturns(a, b map[string]float64) ([]float64, []float64) {
	days := make([]string, 0, len(a))
	for day := range a {
		if _, ok := b[day]; ok {
			days = append(days, day)
		}
	}
	sort.Strings(days)

	x := make([]float64, len(days))
	y := make([]float64, len(days))
	for i, day := range days {
		x[i] = a[day]
		y[i] = b[day]
	}
	return x, y
}

func dayKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
